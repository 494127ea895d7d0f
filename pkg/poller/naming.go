package poller

// LockMetricSuffix is the name of the lock-count gauge below the namespace
const LockMetricSuffix = "query_locks"

// QueueMetricName returns the gauge name for a queue's waiting count:
// "<namespace>.queue.<queue>.waiting".
func QueueMetricName(namespace, queue string) string {
	return qualify(namespace, "queue."+queue+".waiting")
}

// LockMetricName returns the gauge name for the query-lock count
func LockMetricName(namespace string) string {
	return qualify(namespace, LockMetricSuffix)
}

// selfMetricName returns the name of a gauge describing the monitor itself
func selfMetricName(namespace, stat string) string {
	return qualify(namespace, "monitor."+stat)
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}
