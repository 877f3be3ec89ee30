// Package cleanup retries object-store deletes that failed while a user was
// being removed.
package cleanup

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"rollcall/internal/objectstore"
	"rollcall/internal/queue"
)

const (
	defaultMaxAttempts = 5
	defaultRetryDelay  = 2 * time.Second
	republishTimeout   = 2 * time.Second
)

// Processor consumes blob.delete messages and deletes the named blobs,
// re-enqueueing failures until MaxAttempts is reached.
type Processor struct {
	blobs    objectstore.Store
	queue    queue.Queue
	outcomes *prometheus.CounterVec
	logger   *zap.Logger

	MaxAttempts int
	RetryDelay  time.Duration
}

// NewProcessor builds a processor. outcomes may be nil; when set it must have
// a single "outcome" label.
func NewProcessor(blobs objectstore.Store, q queue.Queue, outcomes *prometheus.CounterVec, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		blobs:       blobs,
		queue:       q,
		outcomes:    outcomes,
		logger:      logger,
		MaxAttempts: defaultMaxAttempts,
		RetryDelay:  defaultRetryDelay,
	}
}

// Run handles messages until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	messages, err := p.queue.Consume(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("blob cleanup started", zap.String("backend", p.blobs.Name()))
	for msg := range messages {
		p.Handle(ctx, msg)
	}
	p.logger.Info("blob cleanup stopped")
	return nil
}

// Handle processes one message and reports its outcome: deleted, retried,
// dropped or skipped.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) string {
	key := string(msg.Body)
	if msg.Type != queue.TypeBlobDelete || key == "" {
		p.logger.Debug("ignoring message", zap.String("type", msg.Type))
		return p.count("skipped")
	}

	err := p.blobs.Delete(ctx, key)
	if err == nil {
		p.logger.Info("blob deleted", zap.String("key", key), zap.Int("attempt", msg.Attempts))
		return p.count("deleted")
	}

	log := p.logger.With(zap.String("key", key), zap.Int("attempt", msg.Attempts), zap.Error(err))
	if msg.Attempts >= p.MaxAttempts {
		log.Error("blob delete gave up, blob orphaned")
		return p.count("dropped")
	}

	select {
	case <-time.After(p.RetryDelay):
	case <-ctx.Done():
	}

	msg.Attempts++
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), republishTimeout)
	defer cancel()
	if err := p.queue.Publish(pubCtx, msg); err != nil {
		log.Error("blob delete not re-queued, blob orphaned", zap.NamedError("publish_error", err))
		return p.count("dropped")
	}
	log.Warn("blob delete failed, re-queued")
	return p.count("retried")
}

func (p *Processor) count(outcome string) string {
	if p.outcomes != nil {
		p.outcomes.WithLabelValues(outcome).Inc()
	}
	return outcome
}
