package repository

import (
	"context"

	"CovDash/internal/domain/models"
	applogger "CovDash/pkg/logger"
)

// eventProducer is satisfied by *kafka.Producer.
type eventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaExportPublisher writes export audit events to a Kafka topic keyed by
// export format.
type KafkaExportPublisher struct {
	p     eventProducer
	topic string
	l     *applogger.Logger
}

func NewKafkaExportPublisher(p eventProducer, topic string, l *applogger.Logger) *KafkaExportPublisher {
	return &KafkaExportPublisher{p: p, topic: topic, l: l}
}

func (k *KafkaExportPublisher) Publish(ctx context.Context, ev *models.ExportEvent) error {
	if err := k.p.Publish(ctx, k.topic, []byte(ev.Format), ev); err != nil {
		k.l.Warn("export event publish failed",
			applogger.String("topic", k.topic),
			applogger.String("format", ev.Format),
			applogger.Error(err),
		)
		return err
	}
	return nil
}

func (k *KafkaExportPublisher) Close() error { return k.p.Close() }

// LogExportPublisher records export events in the log only. Used when Kafka
// is disabled.
type LogExportPublisher struct {
	l *applogger.Logger
}

func NewLogExportPublisher(l *applogger.Logger) *LogExportPublisher {
	return &LogExportPublisher{l: l}
}

func (p *LogExportPublisher) Publish(_ context.Context, ev *models.ExportEvent) error {
	p.l.Info("export served",
		applogger.String("format", ev.Format),
		applogger.Strings("industries", ev.Industries),
		applogger.Int("entries", len(ev.Entries)),
		applogger.Int("skipped", len(ev.Skipped)),
		applogger.Int("bytes", ev.Bytes),
		applogger.Uint64("snapshot_version", ev.Version),
		applogger.Bool("cache_hit", ev.CachedHit),
	)
	return nil
}

func (p *LogExportPublisher) Close() error { return nil }
