package mainloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunsInOrder(t *testing.T) {
	l := Start(context.Background(), nil)
	defer l.Stop()

	var got []int
	for i := range 100 {
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Call(context.Background(), func() {}))

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestLoop_SingleGoroutine(t *testing.T) {
	l := Start(context.Background(), nil)
	defer l.Stop()

	var (
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				l.Post(func() {
					active++
					maxSeen = max(maxSeen, active)
					active--
				})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, l.Call(context.Background(), func() {}))
	assert.Equal(t, 1, maxSeen)
}

func TestLoop_PostAfterStop(t *testing.T) {
	l := Start(context.Background(), nil)
	l.Stop()
	l.Stop()

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrStopped)
	select {
	case <-l.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestLoop_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(nil)
	finished := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(finished)
	}()

	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, l.Post(func() {}))
}

func TestLoop_PanicDoesNotStopLoop(t *testing.T) {
	l := Start(context.Background(), nil)
	defer l.Stop()

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoop_CallHonoursContext(t *testing.T) {
	l := Start(context.Background(), nil)
	defer l.Stop()

	release := make(chan struct{})
	l.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Call(ctx, func() {}), context.DeadlineExceeded)
}

func TestLoop_Pending(t *testing.T) {
	l := New(nil)
	l.Post(func() {})
	l.Post(func() {})
	assert.Equal(t, 2, l.Pending())
	l.Stop()
	l.Run(context.Background())
	assert.Equal(t, 0, l.Pending())
}
