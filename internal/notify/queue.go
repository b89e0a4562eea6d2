package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Submit after Close.
var ErrQueueClosed = errors.New("notification queue closed")

// ErrQueueFull is returned by Submit when the buffer has no room.
var ErrQueueFull = errors.New("notification queue full")

// Task is one outbound message. Code is secret and must never be logged.
type Task struct {
	Kind      string
	TenantID  string
	AccountID string
	Recipient string
	Code      string
}

// Handler delivers a single task.
type Handler func(ctx context.Context, task Task) error

type Config struct {
	Workers     int
	BufferSize  int
	SendTimeout time.Duration
}

// Queue fans tasks out to a fixed pool of workers. Submit never blocks.
type Queue struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger

	ch   chan Task
	wg   sync.WaitGroup
	mu   sync.RWMutex
	shut bool

	submitted atomic.Uint64
	sent      atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

func NewQueue(cfg Config, handler Handler, logger *zap.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		cfg:     cfg,
		handler: handler,
		logger:  logger.Named("notify"),
		ch:      make(chan Task, cfg.BufferSize),
	}

	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.work()
	}
	return q
}

func (q *Queue) work() {
	defer q.wg.Done()
	for task := range q.ch {
		q.deliver(task)
	}
}

func (q *Queue) deliver(task Task) {
	ctx := context.Background()
	if q.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.SendTimeout)
		defer cancel()
	}

	if err := q.handler(ctx, task); err != nil {
		q.failed.Add(1)
		q.logger.Warn("notification send failed",
			zap.String("kind", task.Kind),
			zap.String("tenant_id", task.TenantID),
			zap.String("account_id", task.AccountID),
			zap.Error(err),
		)
		return
	}
	q.sent.Add(1)
}

// Submit enqueues task for asynchronous delivery.
func (q *Queue) Submit(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.shut {
		return ErrQueueClosed
	}

	select {
	case q.ch <- task:
		q.submitted.Add(1)
		return nil
	default:
		q.dropped.Add(1)
		q.logger.Warn("notification dropped, queue full",
			zap.String("kind", task.Kind),
			zap.String("account_id", task.AccountID),
		)
		return ErrQueueFull
	}
}

// Close stops intake and waits for workers to finish the buffered tasks.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.shut {
		q.mu.Unlock()
		return
	}
	q.shut = true
	close(q.ch)
	q.mu.Unlock()

	q.wg.Wait()
}

type Stats struct {
	Submitted uint64
	Sent      uint64
	Failed    uint64
	Dropped   uint64
}

func (q *Queue) Stats() Stats {
	return Stats{
		Submitted: q.submitted.Load(),
		Sent:      q.sent.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}
