package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
	"github.com/satriahrh/cocoa-fruit/chatrelay/utils/log"
)

const (
	DefaultCapacity    = 16
	DefaultIdleTimeout = 5 * time.Minute
)

// ConversationQueue implements domain.Dispatcher with one buffered channel and
// one worker goroutine per active conversation. Workers exit after sitting idle.
type ConversationQueue struct {
	ctx      context.Context
	capacity int
	idle     time.Duration

	mu     sync.Mutex
	queues map[domain.ConversationID]chan domain.Job
	closed bool
	wg     sync.WaitGroup
}

// NewConversationQueue creates a queue whose jobs run with ctx.
func NewConversationQueue(ctx context.Context, capacity int, idle time.Duration) *ConversationQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &ConversationQueue{
		ctx:      ctx,
		capacity: capacity,
		idle:     idle,
		queues:   make(map[domain.ConversationID]chan domain.Job),
	}
}

// Dispatch enqueues job behind earlier jobs of the same conversation.
func (q *ConversationQueue) Dispatch(ctx context.Context, conversation domain.ConversationID, job domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("conversation queue is closed")
	}

	channel, exists := q.queues[conversation]
	if !exists {
		channel = make(chan domain.Job, q.capacity)
		q.queues[conversation] = channel
		q.wg.Add(1)
		go q.run(conversation, channel)
	}

	select {
	case channel <- job:
		log.WithCtx(ctx).Debug("job queued", zap.Int("depth", len(channel)))
		return nil
	default:
		return fmt.Errorf("conversation queue is full: %s", conversation)
	}
}

func (q *ConversationQueue) run(conversation domain.ConversationID, channel chan domain.Job) {
	defer q.wg.Done()
	timer := time.NewTimer(q.idle)
	defer timer.Stop()

	for {
		select {
		case job, ok := <-channel:
			if !ok {
				return
			}
			q.execute(conversation, job)
			timer.Reset(q.idle)
		case <-timer.C:
			q.mu.Lock()
			if len(channel) > 0 {
				q.mu.Unlock()
				timer.Reset(q.idle)
				continue
			}
			if q.queues[conversation] == channel {
				delete(q.queues, conversation)
			}
			q.mu.Unlock()
			return
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *ConversationQueue) execute(conversation domain.ConversationID, job domain.Job) {
	defer func() {
		if rec := recover(); rec != nil {
			log.With(zap.String("conversation_id", string(conversation))).Error("job panicked", zap.Any("panic", rec))
		}
	}()
	job(q.ctx)
}

// Close stops accepting jobs, lets queued jobs finish and waits for workers.
func (q *ConversationQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for key, channel := range q.queues {
		close(channel)
		delete(q.queues, key)
	}
	q.mu.Unlock()

	q.wg.Wait()
	log.With().Info("conversation queue closed")
	return nil
}

// ActiveConversations returns the number of live workers.
func (q *ConversationQueue) ActiveConversations() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues)
}
