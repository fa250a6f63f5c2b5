package usecase

import (
	"context"
	"encoding/json"

	pkgkafka "CovDash/pkg/kafka"
	applogger "CovDash/pkg/logger"
)

// SnapshotListener reloads the dashboard whenever an upstream job announces
// a new covariance snapshot.
type SnapshotListener struct {
	topic string
	d     *Dashboard
	l     *applogger.Logger
}

func NewSnapshotListener(topic string, d *Dashboard, l *applogger.Logger) *SnapshotListener {
	if l == nil {
		l = applogger.Nop()
	}
	return &SnapshotListener{topic: topic, d: d, l: l}
}

func (h *SnapshotListener) Topic() string { return h.topic }

// incoming message schema: {source, reason}; both optional
func (h *SnapshotListener) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Source string `json:"source"`
		Reason string `json:"reason"`
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &m); err != nil {
			h.l.Warn("snapshot notice not json, reloading anyway", applogger.Error(err))
		}
	}
	h.l.Info("snapshot notice received", applogger.String("source", m.Source), applogger.String("reason", m.Reason))

	_, err := h.d.Reload(ctx)
	return err
}

var _ pkgkafka.MessageHandler = (*SnapshotListener)(nil)
