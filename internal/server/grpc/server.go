// Package grpcserver exposes the marketplace engine over gRPC.
package grpcserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc/peer"

	"github.com/and161185/flour/internal/api"
	"github.com/and161185/flour/internal/convert"
	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/fee"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/service"
	"github.com/and161185/flour/internal/session"
)

// Server wires services into gRPC handlers.
type Server struct {
	auth   service.AuthService
	market service.MarketService
	now    func() time.Time
}

// New constructs a gRPC server with injected services.
func New(auth service.AuthService, market service.MarketService) *Server {
	return &Server{auth: auth, market: market, now: time.Now}
}

func actorFrom(ctx context.Context) (uuid.UUID, error) {
	id, ok := session.ActorFromContext(ctx)
	if !ok {
		return uuid.Nil, errs.Unauthenticated()
	}
	return id, nil
}

// remoteIP returns the peer host without its port.
func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (s *Server) request(r model.Request) api.Request {
	return convert.ToAPIRequest(r, r.EffectiveStatus(s.now()))
}

func (s *Server) requests(in []model.Request) []api.Request {
	out := make([]api.Request, 0, len(in))
	for _, r := range in {
		out = append(out, s.request(r))
	}
	return out
}

// partyTx loads a transaction the caller takes part in.
func (s *Server) partyTx(ctx context.Context, id uuid.UUID) (model.Transaction, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return model.Transaction{}, err
	}
	tx, err := s.market.Transaction(id)
	if err != nil {
		return model.Transaction{}, err
	}
	if !tx.IsParty(actor) {
		return model.Transaction{}, fmt.Errorf("transaction %s: not a participant: %w", id, errs.ErrForbidden)
	}
	return tx, nil
}

// --- Users ---

// Register creates credentials and a marketplace profile.
func (s *Server) Register(ctx context.Context, req *api.RegisterRequest) (*api.User, error) {
	u, err := s.auth.Register(ctx, service.Registration{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIUser(u, true)
	return &out, nil
}

// Login authenticates a user and returns an access token.
func (s *Server) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {
	tok, u, err := s.auth.Login(ctx, req.Email, req.Password, remoteIP(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.LoginResponse{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt,
		User:        convert.ToAPIUser(u, true),
	}, nil
}

// GetMe returns the caller's own profile.
func (s *Server) GetMe(ctx context.Context, _ *api.Empty) (*api.User, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	u, err := s.market.User(actor)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIUser(u, true)
	return &out, nil
}

// GetUser returns another user's public profile.
func (s *Server) GetUser(ctx context.Context, req *api.IDRequest) (*api.User, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	u, err := s.market.User(id)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIUser(u, id == actor)
	return &out, nil
}

// QuoteFee prices an item without creating anything.
func (s *Server) QuoteFee(_ context.Context, req *api.QuoteFeeRequest) (*api.QuoteFeeResponse, error) {
	price, err := convert.ParseMoney("price", req.Price)
	if err != nil {
		return nil, toStatus(err)
	}
	b, err := fee.Compute(price)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.QuoteFeeResponse{
		ItemPrice:   convert.Money(b.ItemPrice),
		PlatformFee: convert.Money(b.PlatformFee),
		Total:       convert.Money(b.Total),
	}, nil
}

// ListSchools lists the schools users can sign up from.
func (s *Server) ListSchools(_ context.Context, _ *api.Empty) (*api.ListSchoolsResponse, error) {
	return &api.ListSchoolsResponse{Schools: convert.ToAPISchools(s.market.Schools())}, nil
}

// --- Requests ---

func (s *Server) CreateRequest(ctx context.Context, req *api.CreateRequestRequest) (*api.Request, error) {
	in, err := convert.FromAPICreateRequest(*req)
	if err != nil {
		return nil, toStatus(err)
	}
	r, err := s.market.CreateRequest(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	out := s.request(r)
	return &out, nil
}

func (s *Server) CancelRequest(ctx context.Context, req *api.IDRequest) (*api.Request, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	r, err := s.market.CancelRequest(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	out := s.request(r)
	return &out, nil
}

func (s *Server) DeleteRequest(ctx context.Context, req *api.IDRequest) (*api.Empty, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.market.DeleteRequest(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return &api.Empty{}, nil
}

func (s *Server) GetRequest(_ context.Context, req *api.IDRequest) (*api.Request, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	r, err := s.market.Request(id)
	if err != nil {
		return nil, toStatus(err)
	}
	out := s.request(r)
	return &out, nil
}

// ListRequests serves the feed, the nearby feed or the caller's own requests.
func (s *Server) ListRequests(ctx context.Context, req *api.ListRequestsRequest) (*api.ListRequestsResponse, error) {
	var rs []model.Request
	switch req.Scope {
	case "", api.ScopeActive:
		rs = s.market.ActiveRequests(s.now())
	case api.ScopeNearby:
		loc, err := convert.FromAPILocation(req.Location)
		if err != nil {
			return nil, toStatus(err)
		}
		rs = s.market.NearbyRequests(loc)
	case api.ScopeMine:
		actor, err := actorFrom(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		rs = s.market.MyRequests(actor)
	default:
		return nil, toStatus(errs.Validationf("unknown scope %q", req.Scope))
	}
	return &api.ListRequestsResponse{Requests: s.requests(rs)}, nil
}

// --- Offers ---

func (s *Server) MakeOffer(ctx context.Context, req *api.MakeOfferRequest) (*api.Offer, error) {
	id, err := convert.ParseID("request_id", req.RequestID)
	if err != nil {
		return nil, toStatus(err)
	}
	amount, err := convert.ParseMoney("amount", req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	o, err := s.market.MakeOffer(ctx, id, amount)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIOffer(o)
	return &out, nil
}

func (s *Server) AcceptOffer(ctx context.Context, req *api.IDRequest) (*api.Transaction, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	tx, err := s.market.AcceptOffer(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPITransaction(tx)
	return &out, nil
}

func (s *Server) DeclineOffer(ctx context.Context, req *api.IDRequest) (*api.Offer, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	o, err := s.market.DeclineOffer(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIOffer(o)
	return &out, nil
}

func (s *Server) CounterOffer(ctx context.Context, req *api.CounterOfferRequest) (*api.Offer, error) {
	id, err := convert.ParseID("offer_id", req.OfferID)
	if err != nil {
		return nil, toStatus(err)
	}
	amount, err := convert.ParseMoney("amount", req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	o, err := s.market.CounterOffer(ctx, id, amount)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIOffer(o)
	return &out, nil
}

// ListOffers lists the offers of a request in creation order.
func (s *Server) ListOffers(_ context.Context, req *api.IDRequest) (*api.ListOffersResponse, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	if _, err := s.market.Request(id); err != nil {
		return nil, toStatus(err)
	}
	return &api.ListOffersResponse{Offers: convert.ToAPIOffers(s.market.OffersForRequest(id))}, nil
}

// --- Transactions ---

func (s *Server) ConfirmTransaction(ctx context.Context, req *api.IDRequest) (*api.Transaction, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	tx, err := s.market.ConfirmTransaction(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPITransaction(tx)
	return &out, nil
}

func (s *Server) GetTransaction(ctx context.Context, req *api.IDRequest) (*api.Transaction, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	tx, err := s.partyTx(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPITransaction(tx)
	return &out, nil
}

func (s *Server) TransactionForRequest(ctx context.Context, req *api.IDRequest) (*api.Transaction, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	tx, err := s.market.TransactionForRequest(id)
	if err != nil {
		return nil, toStatus(err)
	}
	if tx, err = s.partyTx(ctx, tx.ID); err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPITransaction(tx)
	return &out, nil
}

func (s *Server) ListTransactions(ctx context.Context, _ *api.Empty) (*api.ListTransactionsResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.ListTransactionsResponse{Transactions: convert.ToAPITransactions(s.market.MyTransactions(actor))}, nil
}

// --- Messaging ---

func (s *Server) SendMessage(ctx context.Context, req *api.SendMessageRequest) (*api.Message, error) {
	id, err := convert.ParseID("transaction_id", req.TransactionID)
	if err != nil {
		return nil, toStatus(err)
	}
	m, err := s.market.SendMessage(ctx, id, req.Content)
	if err != nil {
		return nil, toStatus(err)
	}
	out := convert.ToAPIMessage(m)
	return &out, nil
}

func (s *Server) MarkMessagesRead(ctx context.Context, req *api.IDRequest) (*api.CountResponse, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	n, err := s.market.MarkMessagesRead(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.CountResponse{Count: n}, nil
}

func (s *Server) ListMessages(ctx context.Context, req *api.IDRequest) (*api.ListMessagesResponse, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	if _, err := s.partyTx(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return &api.ListMessagesResponse{Messages: convert.ToAPIMessages(s.market.Messages(id))}, nil
}

func (s *Server) UnreadCount(ctx context.Context, req *api.IDRequest) (*api.CountResponse, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	n, err := s.market.UnreadCount(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.CountResponse{Count: n}, nil
}

func (s *Server) ListConversations(ctx context.Context, _ *api.Empty) (*api.ListConversationsResponse, error) {
	convs, err := s.market.Conversations(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]api.Conversation, 0, len(convs))
	for _, c := range convs {
		n, err := s.market.UnreadCount(ctx, c.Transaction.ID)
		if err != nil {
			return nil, toStatus(err)
		}
		out = append(out, convert.ToAPIConversation(c, n))
	}
	return &api.ListConversationsResponse{Conversations: out}, nil
}

// --- Payments ---

func (s *Server) SetupSellerAccount(ctx context.Context, _ *api.Empty) (*api.URLResponse, error) {
	url, err := s.market.SetupSellerAccount(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.URLResponse{URL: url}, nil
}

func (s *Server) CheckSellerStatus(ctx context.Context, _ *api.Empty) (*api.SellerStatusResponse, error) {
	ok, err := s.market.CheckSellerStatus(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.SellerStatusResponse{CanReceivePayments: ok}, nil
}

func (s *Server) CreatePayment(ctx context.Context, req *api.IDRequest) (*api.PaymentResponse, error) {
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	secret, err := s.market.CreatePayment(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &api.PaymentResponse{ClientSecret: secret}, nil
}
