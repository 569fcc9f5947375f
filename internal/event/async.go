package event

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
)

const (
	sendTimeout  = 5 * time.Second
	flushTimeout = 10 * time.Second
)

// AsyncPublisher buffers events in a bounded in-process queue that a single
// background worker drains into the Transport. Publish never blocks: when the
// queue is full the event is dropped and logged. No ordering is promised
// to consumers beyond what the single worker happens to preserve.
type AsyncPublisher struct {
	transport Transport
	queue     chan Event
	logger    *zap.SugaredLogger
	metrics   *metrics.Metrics
}

func NewAsyncPublisher(transport Transport, size int, logger *zap.SugaredLogger, m *metrics.Metrics) *AsyncPublisher {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AsyncPublisher{
		transport: transport,
		queue:     make(chan Event, size),
		logger:    logger,
		metrics:   m,
	}
}

// Publish enqueues ev for delivery, dropping it if the queue is full.
func (p *AsyncPublisher) Publish(_ context.Context, ev Event) {
	select {
	case p.queue <- ev:
	default:
		p.metrics.EventDropped(string(ev.Kind))
		p.logger.Warnw("event queue full, dropping event", "type", ev.Kind, "user_id", ev.Data.UserID)
	}
}

// Run drains the queue until ctx is cancelled, then flushes whatever is still
// buffered before returning.
func (p *AsyncPublisher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-p.queue:
			p.deliver(ctx, ev)
		case <-ctx.Done():
			p.flush()
			return nil
		}
	}
}

// flush delivers what is left in the queue; after flushTimeout the rest is dropped.
func (p *AsyncPublisher) flush() {
	deadline := time.Now().Add(flushTimeout)
	for {
		select {
		case ev := <-p.queue:
			if time.Now().After(deadline) {
				p.metrics.EventDropped(string(ev.Kind))
				continue
			}
			p.deliver(context.Background(), ev)
		default:
			return
		}
	}
}

func (p *AsyncPublisher) deliver(ctx context.Context, ev Event) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := p.transport.Send(sendCtx, ev); err != nil {
		p.metrics.EventFailed(string(ev.Kind))
		p.logger.Warnw("failed to publish event", "type", ev.Kind, "user_id", ev.Data.UserID, "err", err)
		return
	}
	p.metrics.EventPublished(string(ev.Kind))
	p.logger.Infow("event published", "type", ev.Kind, "user_id", ev.Data.UserID)
}

// Pending reports how many events are waiting for delivery.
func (p *AsyncPublisher) Pending() int { return len(p.queue) }
