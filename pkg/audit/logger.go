package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/elevate/pkg/logger"
)

// Recorder is what security components depend on. Record never fails and never
// blocks for longer than the configured storage timeout.
type Recorder interface {
	Record(ctx context.Context, action string, opts ...EventOption)
}

// contextExtractor extracts string values from context.
type contextExtractor func(context.Context) (string, bool)

// Logger is a fire-and-forget audit recorder. Storage failures are reported to
// the application log and never surfaced to the caller.
type Logger struct {
	storage            Storage
	log                *slog.Logger
	now                func() time.Time
	storageTimeout     time.Duration
	requestIDExtractor contextExtractor

	// async mode
	bufferSize   int
	batchSize    int
	batchTimeout time.Duration
	queue        chan Event
	done         chan struct{}
	closeOnce    sync.Once
	closeMu      sync.RWMutex // held for reading while enqueueing
	closed       bool
	wg           sync.WaitGroup
	dropped      atomic.Int64
}

// Option configures Logger behavior during initialization
type Option func(*Logger)

// WithAsync queues events in a buffer of the given size and writes them from a
// background goroutine. When the buffer is full new events are dropped and counted.
func WithAsync(bufferSize int) Option {
	return func(l *Logger) {
		if bufferSize > 0 {
			l.bufferSize = bufferSize
		}
	}
}

// WithBatching sets how many events are flushed at once and how long a partial batch may wait.
func WithBatching(size int, timeout time.Duration) Option {
	return func(l *Logger) {
		if size > 0 {
			l.batchSize = size
		}
		if timeout > 0 {
			l.batchTimeout = timeout
		}
	}
}

func WithStorageTimeout(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.storageTimeout = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Logger) {
		if log != nil {
			l.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithRequestIDExtractor(fn func(context.Context) (string, bool)) Option {
	return func(l *Logger) {
		l.requestIDExtractor = fn
	}
}

// NewLogger creates a new audit logger
func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}

	l := &Logger{
		storage:        storage,
		log:            slog.Default(),
		now:            time.Now,
		storageTimeout: 5 * time.Second,
		batchSize:      100,
		batchTimeout:   100 * time.Millisecond,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.bufferSize > 0 {
		l.queue = make(chan Event, l.bufferSize)
		l.wg.Add(1)
		go l.worker()
	}

	return l
}

// Record implements Recorder.
func (l *Logger) Record(ctx context.Context, action string, opts ...EventOption) {
	event := Event{
		ID:        uuid.New().String(),
		Action:    action,
		Result:    ResultSuccess,
		CreatedAt: l.now(),
	}
	if l.requestIDExtractor != nil {
		if id, ok := l.requestIDExtractor(ctx); ok {
			event.RequestID = id
		}
	}
	for _, opt := range opts {
		opt(&event)
	}

	if err := event.Validate(); err != nil {
		l.log.ErrorContext(ctx, "audit event rejected", slog.String("action", action), logger.Error(err))
		return
	}

	if l.queue == nil {
		l.write(ctx, event)
		return
	}

	l.closeMu.RLock()
	defer l.closeMu.RUnlock()
	if l.closed {
		l.drop(ctx, event, ErrLoggerClosed)
		return
	}

	select {
	case l.queue <- event:
	default:
		l.drop(ctx, event, ErrBufferFull)
	}
}

// Dropped returns how many events were discarded because the buffer was full or closed.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Close flushes queued events. The context bounds how long it waits.
// Events recorded after Close starts are dropped and counted.
func (l *Logger) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		l.closeMu.Lock()
		l.closed = true
		l.closeMu.Unlock()
		close(l.done)
	})

	finished := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) drop(ctx context.Context, event Event, reason error) {
	l.dropped.Add(1)
	l.log.WarnContext(ctx, "audit event dropped",
		slog.String("action", event.Action),
		logger.PrincipalID(event.PrincipalID),
		logger.Error(reason),
	)
}

// write stores a single event synchronously. The caller's cancellation is ignored
// so an aborted request still leaves its audit trail.
func (l *Logger) write(ctx context.Context, event Event) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.storageTimeout)
	defer cancel()

	if err := l.storage.Store(storeCtx, event); err != nil {
		l.log.ErrorContext(ctx, "failed to store audit event",
			slog.String("action", event.Action),
			logger.PrincipalID(event.PrincipalID),
			logger.Error(err),
		)
	}
}

func (l *Logger) worker() {
	defer l.wg.Done()

	batch := make([]Event, 0, l.batchSize)
	ticker := time.NewTicker(l.batchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.flush(batch)
		clear(batch)
		batch = batch[:0]
	}

	for {
		select {
		case event := <-l.queue:
			batch = append(batch, event)
			if len(batch) >= l.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-l.done:
			for {
				select {
				case event := <-l.queue:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (l *Logger) flush(events []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), l.storageTimeout)
	defer cancel()

	if bs, ok := l.storage.(BatchStorage); ok {
		if err := bs.StoreBatch(ctx, events); err != nil {
			l.log.ErrorContext(ctx, "failed to store audit batch",
				slog.Int("events", len(events)),
				logger.Error(err),
			)
		}
		return
	}

	for _, event := range events {
		if err := l.storage.Store(ctx, event); err != nil {
			l.log.ErrorContext(ctx, "failed to store audit event",
				slog.String("action", event.Action),
				logger.Error(err),
			)
		}
	}
}

// Nop discards every event. Useful as a default collaborator.
type Nop struct{}

func (Nop) Record(context.Context, string, ...EventOption) {}
