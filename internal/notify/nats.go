package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/archivescribe/ytingest/internal/platform/logger"
)

// NATSNotifier publishes Events as JSON to subject
// "ytingest.<kind>.<video_id>" (SPEC_FULL §4.12), grounded on
// WessleyAI-wessley-mvp's pkg/natsutil.Publish shape (JSON-encode, publish,
// surface only unexpected errors to the caller's logger).
type NATSNotifier struct {
	conn *nats.Conn
	log  *logger.Logger
}

// NewNATSNotifier dials url and returns a NATSNotifier. Callers that don't
// want a NATS dependency should use NoopNotifier instead.
func NewNATSNotifier(url string, log *logger.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("notify: connect nats: %w", err)
	}
	if log == nil {
		log, _ = logger.New("")
	}
	return &NATSNotifier{conn: conn, log: log.With("component", "notify.NATSNotifier")}, nil
}

func (n *NATSNotifier) publish(kind string, e Event) {
	e.Kind = kind
	data, err := json.Marshal(e)
	if err != nil {
		n.log.Warn("notify: encode event failed", "error", err)
		return
	}
	subject := fmt.Sprintf("ytingest.%s.%s", kind, e.VideoID)
	if err := n.conn.Publish(subject, data); err != nil {
		n.log.Warn("notify: publish failed", "subject", subject, "error", err)
	}
}

func (n *NATSNotifier) Progress(_ context.Context, e Event) { n.publish("progress", e) }
func (n *NATSNotifier) Done(_ context.Context, e Event)     { n.publish("done", e) }
func (n *NATSNotifier) Failed(_ context.Context, e Event)   { n.publish("failed", e) }

// Close closes the underlying NATS connection without draining it.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

var _ Notifier = (*NATSNotifier)(nil)
