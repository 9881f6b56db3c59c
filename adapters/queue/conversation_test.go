package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDispatch_SerializesPerConversation(t *testing.T) {
	q := NewConversationQueue(context.Background(), 0, time.Minute)

	var (
		mu      sync.Mutex
		order   []int
		running atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := range 5 {
		wg.Add(1)
		err := q.Dispatch(context.Background(), "c1", func(context.Context) {
			defer wg.Done()
			if running.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			running.Add(-1)
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "jobs of one conversation overlapped")
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	require.NoError(t, q.Close())
}

func TestDispatch_ConversationsRunConcurrently(t *testing.T) {
	q := NewConversationQueue(context.Background(), 0, time.Minute)
	release := make(chan struct{})
	started := make(chan domain.ConversationID, 2)

	for _, c := range []domain.ConversationID{"a", "b"} {
		require.NoError(t, q.Dispatch(context.Background(), c, func(context.Context) {
			started <- c
			<-release
		}))
	}

	got := map[domain.ConversationID]bool{}
	for range 2 {
		select {
		case c := <-started:
			got[c] = true
		case <-time.After(2 * time.Second):
			t.Fatal("conversations did not run concurrently")
		}
	}
	assert.Len(t, got, 2)
	assert.Equal(t, 2, q.ActiveConversations())

	close(release)
	require.NoError(t, q.Close())
}

func TestDispatch_FullQueue(t *testing.T) {
	q := NewConversationQueue(context.Background(), 1, time.Minute)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, q.Dispatch(context.Background(), "c", func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, q.Dispatch(context.Background(), "c", func(context.Context) {}))

	assert.Error(t, q.Dispatch(context.Background(), "c", func(context.Context) {}))

	close(release)
	require.NoError(t, q.Close())
}

func TestWorker_ExitsWhenIdle(t *testing.T) {
	q := NewConversationQueue(context.Background(), 0, 20*time.Millisecond)
	done := make(chan struct{})
	require.NoError(t, q.Dispatch(context.Background(), "c", func(context.Context) { close(done) }))
	<-done

	assert.Eventually(t, func() bool { return q.ActiveConversations() == 0 }, 2*time.Second, 10*time.Millisecond)

	ran := make(chan struct{})
	require.NoError(t, q.Dispatch(context.Background(), "c", func(context.Context) { close(ran) }))
	<-ran
	require.NoError(t, q.Close())
}

func TestExecute_RecoversPanics(t *testing.T) {
	q := NewConversationQueue(context.Background(), 0, time.Minute)
	ran := make(chan struct{})

	require.NoError(t, q.Dispatch(context.Background(), "c", func(context.Context) { panic("boom") }))
	require.NoError(t, q.Dispatch(context.Background(), "c", func(context.Context) { close(ran) }))

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after a panic")
	}
	require.NoError(t, q.Close())
}

func TestClose_DrainsAndRejects(t *testing.T) {
	q := NewConversationQueue(context.Background(), 0, time.Minute)
	var count atomic.Int32
	for range 3 {
		require.NoError(t, q.Dispatch(context.Background(), "c", func(context.Context) { count.Add(1) }))
	}

	require.NoError(t, q.Close())
	assert.Equal(t, int32(3), count.Load())
	assert.Error(t, q.Dispatch(context.Background(), "c", func(context.Context) {}))
	assert.NoError(t, q.Close())
}
