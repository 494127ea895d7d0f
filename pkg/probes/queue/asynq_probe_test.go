package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/hibiken/asynq"
	"github.com/redash-ops/queue-monitor/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	queues   []string
	relisted [][]string // returned by calls after the first, then queues
	listErr  error
	pending  map[string]int
	infoErr  map[string]error
	listings int
	closed   bool
}

func (f *fakeInspector) Queues() ([]string, error) {
	f.listings++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listings > 1 && len(f.relisted) > 0 {
		names := f.relisted[0]
		f.relisted = f.relisted[1:]
		return names, nil
	}
	return f.queues, nil
}

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if err := f.infoErr[queue]; err != nil {
		return nil, err
	}
	return &asynq.QueueInfo{Queue: queue, Pending: f.pending[queue]}, nil
}

func (f *fakeInspector) Close() error {
	f.closed = true
	return nil
}

func TestAsynqProbeListQueues(t *testing.T) {
	fake := &fakeInspector{
		queues:  []string{"emails", "default"},
		pending: map[string]int{"default": 3},
	}
	probe := &AsynqProbe{inspector: fake}

	snapshots, err := probe.ListQueues(context.Background())
	require.NoError(t, err)
	require.Equal(t, []types.QueueSnapshot{
		{Name: "default", Driver: types.DriverAsynq, Waiting: 3},
		{Name: "emails", Driver: types.DriverAsynq, Waiting: 0},
	}, snapshots)

	require.NoError(t, probe.Close())
	require.True(t, fake.closed)
}

// queueNotFound returns the error a real inspector gives for a queue that is
// not registered.
func queueNotFound(t *testing.T, name string) error {
	t.Helper()
	mr := miniredis.RunT(t)
	insp := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = insp.Close() })

	_, err := insp.GetQueueInfo(name)
	require.Error(t, err)
	return err
}

func TestAsynqProbeSkipsDeletedQueue(t *testing.T) {
	notFound := queueNotFound(t, "gone")
	require.False(t, errors.Is(notFound, asynq.ErrQueueNotFound))

	fake := &fakeInspector{
		queues:   []string{"default", "gone"},
		relisted: [][]string{{"default"}},
		pending:  map[string]int{"default": 1},
		infoErr:  map[string]error{"gone": notFound},
	}

	snapshots, err := (&AsynqProbe{inspector: fake}).ListQueues(context.Background())
	require.NoError(t, err)
	require.Equal(t, []types.QueueSnapshot{
		{Name: "default", Driver: types.DriverAsynq, Waiting: 1},
	}, snapshots)
	require.Equal(t, 2, fake.listings)
}

func TestAsynqProbeQueueStillListed(t *testing.T) {
	fake := &fakeInspector{
		queues:  []string{"default"},
		infoErr: map[string]error{"default": queueNotFound(t, "default")},
	}

	_, err := (&AsynqProbe{inspector: fake}).ListQueues(context.Background())
	require.Error(t, err)
	require.True(t, types.IsKind(err, types.KindQuery))
}

func TestAsynqProbeErrors(t *testing.T) {
	t.Run("list fails", func(t *testing.T) {
		fake := &fakeInspector{listErr: errors.New("dial tcp: connection refused")}

		_, err := (&AsynqProbe{inspector: fake}).ListQueues(context.Background())
		require.True(t, types.IsKind(err, types.KindConnectivity))
	})

	t.Run("cancelled", func(t *testing.T) {
		fake := &fakeInspector{queues: []string{"default"}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := (&AsynqProbe{inspector: fake}).ListQueues(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestClassifyAsynq(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind types.ErrorKind
	}{
		{"refused dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, types.KindConnectivity},
		{"wrapped net error", fmt.Errorf("UNKNOWN: %w", &net.OpError{Op: "read", Net: "tcp", Err: errors.New("reset")}), types.KindConnectivity},
		{"flattened refused", errors.New("UNKNOWN: redis command error: dial tcp 127.0.0.1:6379: connect: connection refused"), types.KindConnectivity},
		{"deadline", context.DeadlineExceeded, types.KindConnectivity},
		{"script error", errors.New("UNKNOWN: ERR Error compiling script (new function): user_script:1"), types.KindQuery},
		{"not found reply", errors.New(`NOT_FOUND: queue "gone" does not exist`), types.KindQuery},
		{"already classified", types.NewEmissionError("x", errors.New("y")), types.KindEmission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyAsynq("asynq.queue_info", tt.err)
			require.Equal(t, tt.kind, types.KindOf(err))
			require.ErrorIs(t, err, tt.err)
		})
	}

	require.NoError(t, classifyAsynq("asynq.queue_info", nil))
}

func TestNewAsynqProbeFromURI(t *testing.T) {
	probe, err := NewAsynqProbeFromURI("redis://localhost:6379/0")
	require.NoError(t, err)
	require.NoError(t, probe.Close())

	_, err = NewAsynqProbeFromURI("memcached://localhost")
	require.Error(t, err)
}
