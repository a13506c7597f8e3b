package semaphore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSemaphoreCounting(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.False(t, s.TryDown(ctx))
	s.Up(ctx)
	s.Up(ctx)
	require.Equal(t, uint64(2), s.Value(ctx))
	require.NoError(t, s.Down(ctx))
	require.NoError(t, s.Down(ctx))
	require.False(t, s.TryDown(ctx))
	require.Equal(t, uint64(0), s.Value(ctx))
}

func TestSemaphoreDownBlocksUntilUp(t *testing.T) {
	ctx := context.Background()
	s := New()

	done := make(chan error, 1)
	go func() {
		done <- s.Down(ctx)
	}()

	select {
	case <-done:
		t.Fatal("Down returned before Up")
	case <-time.After(50 * time.Millisecond):
	}

	s.Up(ctx)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Down was not woken up by Up")
	}
}

func TestSemaphoreOneUpReleasesOneWaiter(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	s := New()

	const waiters = 3
	released := make(chan struct{}, waiters)
	var wg sync.WaitGroup
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Down(ctx) == nil {
				released <- struct{}{}
			}
		}()
	}

	s.Up(ctx)
	<-released
	select {
	case <-released:
		t.Fatal("a single Up released two waiters")
	case <-time.After(50 * time.Millisecond):
	}

	s.Up(ctx)
	<-released
	cancelFn()
	wg.Wait()
	require.Len(t, released, 0)
}

func TestSemaphoreDownCancelled(t *testing.T) {
	ctx, cancelFn := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelFn()
	s := New()

	err := s.Down(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the counter must not be consumed by the cancelled waiter
	s.Up(context.Background())
	require.True(t, s.TryDown(context.Background()))
}
