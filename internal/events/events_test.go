package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBus_SubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var mu sync.Mutex
	var got []Event
	unsub := bus.Subscribe(func(_ context.Context, ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	id := uuid.Must(uuid.NewV4())
	bus.Publish(context.Background(),
		Event{Kind: KindUpsert, Entity: EntityOffer, ID: id},
		Event{Kind: KindUpsert, Entity: EntityRequest, ID: id},
	)
	require.Len(t, got, 2)
	require.Equal(t, EntityOffer, got[0].Entity)
	require.Equal(t, EntityRequest, got[1].Entity)

	unsub()
	bus.Publish(context.Background(), Event{Kind: KindDelete, Entity: EntityRequest, ID: id})
	require.Len(t, got, 2)
}

func TestEvent_Subject(t *testing.T) {
	t.Parallel()

	ev := Event{Kind: KindUpsert, Entity: EntityTransaction}
	require.Equal(t, "flour.transaction.upsert", ev.Subject("flour"))
}

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return f.err
}

func TestNATSForwarder_PublishesEnvelope(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	fw := NewNATSForwarder(conn, "", zaptest.NewLogger(t))
	bus := NewBus()
	defer fw.Attach(bus)()

	id := uuid.Must(uuid.NewV4())
	at := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)
	bus.Publish(context.Background(), Event{Kind: KindUpsert, Entity: EntityMessage, ID: id, At: at, Record: map[string]string{"content": "hi"}})

	require.Equal(t, []string{"flour.message.upsert"}, conn.subjects)
	var env map[string]any
	require.NoError(t, json.Unmarshal(conn.payloads[0], &env))
	require.Equal(t, "upsert", env["kind"])
	require.Equal(t, id.String(), env["id"])
	require.Equal(t, "hi", env["record"].(map[string]any)["content"])
}

func TestNATSForwarder_PublishErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{err: errors.New("nats down")}
	fw := NewNATSForwarder(conn, "x", zaptest.NewLogger(t))
	fw.Handle(context.Background(), Event{Kind: KindDelete, Entity: EntityRequest, ID: uuid.Must(uuid.NewV4())})
	require.Equal(t, []string{"x.request.delete"}, conn.subjects)
}
