package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueDeliversJobs(t *testing.T) {
	var processed int32
	done := make(chan struct{}, 3)
	queue := NewQueue("test", func(context.Context, Job) error {
		atomic.AddInt32(&processed, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2, BufferSize: 8})

	queue.Start()
	defer queue.Stop()

	for i := 0; i < 3; i++ {
		require.True(t, queue.Enqueue(Job{Type: "notice"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&processed))
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	queue := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.False(t, queue.Enqueue(Job{Type: "notice"}))
}

func TestQueueEnqueueAfterStop(t *testing.T) {
	queue := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{Workers: 1})
	queue.Start()
	queue.Stop()
	require.False(t, queue.Enqueue(Job{Type: "notice"}))
}

// Dispatchers keep offering jobs while the server shuts down; a racing Stop
// must only drop those jobs, never panic the caller.
func TestQueueStopRacingEnqueue(t *testing.T) {
	for i := 0; i < 50; i++ {
		queue := NewQueue("test", func(context.Context, Job) error { return nil },
			QueueConfig{Workers: 2, BufferSize: 1})
		queue.Start()

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					queue.Enqueue(Job{Type: "notice"})
				}
			}()
		}
		queue.Stop()
		wg.Wait()
	}
}
