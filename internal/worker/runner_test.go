package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/pricebridge/internal/queue"
)

func msg(id string) queue.Message {
	return queue.Message{BatchID: id, DatasetType: "mapping", FilePath: "f.csv", Mapping: map[string]string{"a": "A"}}
}

func TestRunner_ProcessesJobsAndStops(t *testing.T) {
	q := queue.NewInProc(10, zerolog.Nop())
	done := make(chan string, 3)
	r := New(zerolog.Nop(), q, func(_ context.Context, m queue.Message) error {
		defer func() { done <- m.BatchID }()
		switch m.BatchID {
		case "bad":
			return errors.New("boom")
		case "panic":
			panic("kaboom")
		}
		return nil
	})

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()), "second start is a no-op")
	assert.True(t, r.IsRunning())

	ctx := context.Background()
	for _, id := range []string{"ok", "bad", "panic"} {
		require.NoError(t, q.Dispatch(ctx, msg(id)))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}

	assert.Eventually(t, func() bool { return r.Jobs() == 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(2), r.Failed())

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()
}

func TestRunner_StopHandsLeftoverJobsToDropped(t *testing.T) {
	q := queue.NewInProc(10, zerolog.Nop())
	started := make(chan struct{})
	r := New(zerolog.Nop(), q, func(ctx context.Context, m queue.Message) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	var dropped []string
	r.Dropped = func(_ context.Context, m queue.Message) { dropped = append(dropped, m.BatchID) }

	require.NoError(t, r.Start(context.Background()))
	ctx := context.Background()
	for _, id := range []string{"slow", "b2", "b3"} {
		require.NoError(t, q.Dispatch(ctx, msg(id)))
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job not started")
	}

	r.Stop()
	assert.Equal(t, []string{"b2", "b3"}, dropped)
	assert.Zero(t, q.Len())
	assert.Equal(t, uint64(1), r.Failed())
}
