package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix roots every subject published by the forwarder.
const DefaultSubjectPrefix = "flour"

// publisher is the subset of *nats.Conn used by the forwarder.
type publisher interface {
	Publish(subj string, data []byte) error
}

// Envelope is the wire form of an Event.
type Envelope struct {
	Kind   Kind      `json:"kind"`
	Entity Entity    `json:"entity"`
	ID     uuid.UUID `json:"id"`
	At     time.Time `json:"at"`
	Record any       `json:"record,omitempty"`
}

// NATSForwarder republishes bus events to NATS as JSON envelopes.
type NATSForwarder struct {
	conn   publisher
	prefix string
	log    *zap.Logger
}

// Connect dials NATS and returns the connection for the caller to own.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("flour"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NewNATSForwarder builds a forwarder over an established connection.
func NewNATSForwarder(conn publisher, prefix string, log *zap.Logger) *NATSForwarder {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSForwarder{conn: conn, prefix: prefix, log: log}
}

// Attach subscribes the forwarder to bus and returns the unsubscribe func.
func (f *NATSForwarder) Attach(bus *Bus) func() {
	return bus.Subscribe(f.Handle)
}

// Handle publishes one event; failures are logged, never returned.
func (f *NATSForwarder) Handle(_ context.Context, ev Event) {
	payload, err := json.Marshal(Envelope{Kind: ev.Kind, Entity: ev.Entity, ID: ev.ID, At: ev.At, Record: ev.Record})
	if err != nil {
		f.log.Error("marshal event", zap.String("entity", string(ev.Entity)), zap.Error(err))
		return
	}
	subject := ev.Subject(f.prefix)
	if err := f.conn.Publish(subject, payload); err != nil {
		f.log.Warn("nats publish failed",
			zap.String("subject", subject),
			zap.String("id", ev.ID.String()),
			zap.Error(err),
		)
	}
}
