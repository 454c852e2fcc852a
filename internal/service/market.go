package service

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/events"
	"github.com/and161185/flour/internal/metrics"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/payment"
	"github.com/and161185/flour/internal/repository"
	"github.com/and161185/flour/internal/session"
)

// MarketService is the request–offer–transaction lifecycle engine.
// Mutations read the actor from the session; reads are snapshots.
type MarketService interface {
	// Users and reference data.
	RegisterUser(ctx context.Context, in model.NewUser) (model.User, error)
	User(id uuid.UUID) (model.User, error)
	School(id uuid.UUID) (model.School, error)
	Schools() []model.School
	SchoolForEmail(email string) (model.School, error)

	// Requests.
	CreateRequest(ctx context.Context, in model.NewRequest) (model.Request, error)
	CancelRequest(ctx context.Context, requestID uuid.UUID) (model.Request, error)
	DeleteRequest(ctx context.Context, requestID uuid.UUID) error
	Request(id uuid.UUID) (model.Request, error)
	ActiveRequests(now time.Time) []model.Request
	NearbyRequests(loc model.Location) []model.Request
	MyRequests(userID uuid.UUID) []model.Request

	// Offers.
	MakeOffer(ctx context.Context, requestID uuid.UUID, amount decimal.Decimal) (model.Offer, error)
	AcceptOffer(ctx context.Context, offerID uuid.UUID) (model.Transaction, error)
	DeclineOffer(ctx context.Context, offerID uuid.UUID) (model.Offer, error)
	CounterOffer(ctx context.Context, offerID uuid.UUID, amount decimal.Decimal) (model.Offer, error)
	OffersForRequest(requestID uuid.UUID) []model.Offer
	Offer(id uuid.UUID) (model.Offer, error)

	// Transactions.
	ConfirmTransaction(ctx context.Context, txID uuid.UUID) (model.Transaction, error)
	Transaction(id uuid.UUID) (model.Transaction, error)
	TransactionForRequest(requestID uuid.UUID) (model.Transaction, error)
	MyTransactions(userID uuid.UUID) []model.Transaction

	// Messaging.
	SendMessage(ctx context.Context, txID uuid.UUID, content string) (model.Message, error)
	MarkMessagesRead(ctx context.Context, txID uuid.UUID) (int, error)
	Messages(txID uuid.UUID) []model.Message
	UnreadCount(ctx context.Context, txID uuid.UUID) (int, error)
	Conversations(ctx context.Context) ([]model.Conversation, error)

	// Payments.
	SetupSellerAccount(ctx context.Context) (string, error)
	CheckSellerStatus(ctx context.Context) (bool, error)
	CreatePayment(ctx context.Context, txID uuid.UUID) (string, error)
	RecordPaymentOutcome(ctx context.Context, txID uuid.UUID, succeeded bool, reason string) (model.Transaction, error)
}

// Market implements MarketService over an EntityStore.
type Market struct {
	store      repository.EntityStore
	session    session.Session
	bus        *events.Bus
	locks      *keyedMutex
	limits     model.Limits
	now        func() time.Time
	newID      func() (uuid.UUID, error)
	log        *zap.Logger
	metrics    *metrics.Collector
	payments   payment.Provider
	onComplete func(model.Transaction)
}

var _ MarketService = (*Market)(nil)

// Option configures a Market.
type Option func(*Market)

// WithSession replaces the default context-based session.
func WithSession(s session.Session) Option { return func(m *Market) { m.session = s } }

// WithBus sets the bus that receives committed changes.
func WithBus(b *events.Bus) Option { return func(m *Market) { m.bus = b } }

// WithLimits overrides the input bounds.
func WithLimits(l model.Limits) Option { return func(m *Market) { m.limits = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Market) { m.now = now } }

// WithIDGenerator overrides uuid.NewV4.
func WithIDGenerator(gen func() (uuid.UUID, error)) Option {
	return func(m *Market) { m.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Market) { m.log = l } }

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option { return func(m *Market) { m.metrics = c } }

// WithPayments enables the payment operations.
func WithPayments(p payment.Provider) Option { return func(m *Market) { m.payments = p } }

// WithCompletionHook registers fn to run after a transaction completes.
// It runs outside the engine's locks.
func WithCompletionHook(fn func(model.Transaction)) Option {
	return func(m *Market) { m.onComplete = fn }
}

// NewMarket constructs the engine.
func NewMarket(store repository.EntityStore, opts ...Option) *Market {
	m := &Market{
		store:   store,
		session: session.Context{},
		bus:     events.NewBus(),
		locks:   newKeyedMutex(),
		limits:  model.DefaultLimits(),
		now:     time.Now,
		newID:   uuid.NewV4,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Bus returns the event bus the engine publishes to.
func (m *Market) Bus() *events.Bus { return m.bus }

// Limits returns the active input bounds.
func (m *Market) Limits() model.Limits { return m.limits }

func (m *Market) actor(ctx context.Context) (uuid.UUID, error) {
	id, ok := m.session.CurrentActorID(ctx)
	if !ok {
		return uuid.Nil, errs.Unauthenticated()
	}
	return id, nil
}

// track counts the operation once it returns.
func (m *Market) track(op string, err *error) {
	m.metrics.Operation(op, *err)
	if *err != nil {
		m.log.Debug("operation failed", zap.String("op", op), zap.Error(*err))
	}
}

// commit writes cs and then publishes one event per touched entity.
func (m *Market) commit(ctx context.Context, cs repository.Changeset) error {
	if err := m.store.Commit(cs); err != nil {
		return err
	}
	m.bus.Publish(ctx, changesetEvents(cs, m.now())...)
	return nil
}

func changesetEvents(cs repository.Changeset, at time.Time) []events.Event {
	var out []events.Event
	add := func(entity events.Entity, id uuid.UUID, rec any) {
		out = append(out, events.Event{Kind: events.KindUpsert, Entity: entity, ID: id, Record: rec, At: at})
	}
	for _, u := range cs.Users {
		add(events.EntityUser, u.ID, u)
	}
	for _, sc := range cs.Schools {
		add(events.EntitySchool, sc.ID, sc)
	}
	for _, r := range cs.Requests {
		add(events.EntityRequest, r.ID, r)
	}
	for _, o := range cs.Offers {
		add(events.EntityOffer, o.ID, o)
	}
	for _, t := range cs.Transactions {
		add(events.EntityTransaction, t.ID, t)
	}
	for _, msg := range cs.Messages {
		add(events.EntityMessage, msg.ID, msg)
	}
	for _, id := range cs.DeletedRequests {
		out = append(out, events.Event{Kind: events.KindDelete, Entity: events.EntityRequest, ID: id, At: at})
	}
	return out
}
