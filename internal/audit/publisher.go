package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"trialstore/internal/audit/metrics"
	"trialstore/pkg/requestcontext"
)

// Store persists events.
type Store interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// Sink receives a copy of every persisted event. Sink failures never fail
// the caller.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher fills in ids, timestamps and request metadata, then persists
// events. It is synchronous by default; WithAsyncBuffer moves persistence to
// a background worker.
type Publisher struct {
	store   Store
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	inbox    chan Event
	wg       sync.WaitGroup
	closeMu  sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer queues up to n events for a background worker. When the
// queue is full new events are dropped and counted.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.inbox = make(chan Event, n)
		}
	}
}

func WithSinks(sinks ...Sink) Option {
	return func(p *Publisher) { p.sinks = append(p.sinks, sinks...) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records event. In async mode it returns once the event is queued.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Operator == "" {
		event.Operator = requestcontext.Operator(ctx)
	}

	if p.inbox == nil {
		return p.persist(ctx, event)
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return p.persist(ctx, event)
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		if p.metrics != nil {
			p.metrics.IncDropped()
		}
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", string(event.Action),
			"collection", event.Collection,
		)
		return nil
	}
}

// List returns persisted events, newest last.
func (p *Publisher) List(ctx context.Context, filter Filter) ([]Event, error) {
	return p.store.List(ctx, filter)
}

// Close stops the worker after draining queued events.
func (p *Publisher) Close() {
	p.stopOnce.Do(func() {
		if p.inbox == nil {
			return
		}
		p.closeMu.Lock()
		p.closed = true
		close(p.inbox)
		p.closeMu.Unlock()
		p.wg.Wait()
	})
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.inbox {
		if err := p.persist(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event",
				"action", string(event.Action),
				"event_id", event.ID,
				"error", err,
			)
		}
	}
}

func (p *Publisher) persist(ctx context.Context, event Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailure()
		}
		return err
	}
	if p.metrics != nil {
		p.metrics.IncPersisted(string(event.Action))
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			if p.metrics != nil {
				p.metrics.IncSinkFailure()
			}
			p.logger.WarnContext(ctx, "audit sink failed",
				"action", string(event.Action),
				"event_id", event.ID,
				"error", err,
			)
		}
	}
	return nil
}
