package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CovDash/internal/domain/models"
	domrepo "CovDash/internal/domain/repository"
)

// EventPipeline sits between the dashboard and the export publisher.
// It validates events, forwards them downstream, and buffers them when
// downstream is unavailable so a broker outage never fails a download.
type EventPipeline struct {
	next       domrepo.ExportPublisher
	metrics    domrepo.Metrics
	bufSize    int
	bufCh      chan *models.ExportEvent
	stopCh     chan struct{}
	done       chan struct{}
	started    bool
	mu         sync.Mutex
	backoffMin time.Duration
	backoffMax time.Duration
}

type PipelineOption func(*EventPipeline)

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithRetryBackoff sets the delay range between redelivery attempts.
func WithRetryBackoff(min, max time.Duration) PipelineOption {
	return func(p *EventPipeline) {
		if min > 0 {
			p.backoffMin = min
		}
		if max >= p.backoffMin {
			p.backoffMax = max
		}
	}
}

// NewEventPipeline creates a new pipeline in front of next.
func NewEventPipeline(next domrepo.ExportPublisher, metrics domrepo.Metrics, opts ...PipelineOption) *EventPipeline {
	p := &EventPipeline{
		next:       next,
		metrics:    metrics,
		bufSize:    1000,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.ExportEvent, p.bufSize)
	return p
}

// Start launches background redelivery of buffered events.
func (p *EventPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		backoff := p.backoffMin
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case ev := <-p.bufCh:
				if err := p.next.Publish(ctx, ev); err != nil {
					p.metrics.RecordError("pipeline_redeliver")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					if backoff *= 2; backoff > p.backoffMax {
						backoff = p.backoffMax
					}
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- ev:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
					continue
				}
				backoff = p.backoffMin
			}
		}
	}()
}

// Publish validates ev and forwards it downstream. On a downstream failure
// the event is buffered for redelivery and the error is still returned so
// the caller can log it.
func (p *EventPipeline) Publish(ctx context.Context, ev *models.ExportEvent) error {
	start := time.Now()
	if err := validateEvent(ev); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	if err := p.next.Publish(ctx, ev); err != nil {
		select {
		case p.bufCh <- ev:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_publish", time.Since(start).Seconds())
	return nil
}

// Buffered reports how many events wait for redelivery.
func (p *EventPipeline) Buffered() int { return len(p.bufCh) }

// Close stops redelivery and closes the downstream publisher. Events still
// buffered are dropped.
func (p *EventPipeline) Close() error {
	p.mu.Lock()
	started := p.started
	p.started = false
	p.mu.Unlock()

	if started {
		close(p.stopCh)
		<-p.done
	}
	if n := len(p.bufCh); n > 0 {
		for i := 0; i < n; i++ {
			p.metrics.RecordError("pipeline_buffer_drop")
		}
	}
	return p.next.Close()
}

func validateEvent(ev *models.ExportEvent) error {
	if ev == nil {
		return errors.New("export event nil")
	}
	if ev.Format == "" {
		return errors.New("export event format empty")
	}
	if ev.Bytes < 0 {
		return errors.New("export event negative size")
	}
	return nil
}

var _ domrepo.ExportPublisher = (*EventPipeline)(nil)
