// Package client is a typed caller for the flour.v1.Marketplace service.
package client

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/and161185/flour/internal/api"
)

// Client wraps a connection and the caller's access token.
type Client struct {
	cc grpc.ClientConnInterface

	mu    sync.RWMutex
	token string
}

// New returns a client over cc. The connection is owned by the caller.
func New(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// SetToken sets the bearer token sent with every call.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	if tok := c.Token(); tok != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
	}
	return c.cc.Invoke(ctx, api.FullMethod(method), in, out, grpc.CallContentSubtype(api.CodecName))
}

func call[Resp any](ctx context.Context, c *Client, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := c.invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- users ---

func (c *Client) Register(ctx context.Context, in api.RegisterRequest) (*api.User, error) {
	return call[api.User](ctx, c, api.MethodRegister, &in)
}

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*api.LoginResponse, error) {
	out, err := call[api.LoginResponse](ctx, c, api.MethodLogin, &api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return out, nil
}

func (c *Client) GetMe(ctx context.Context) (*api.User, error) {
	return call[api.User](ctx, c, api.MethodGetMe, &api.Empty{})
}

func (c *Client) GetUser(ctx context.Context, id string) (*api.User, error) {
	return call[api.User](ctx, c, api.MethodGetUser, &api.IDRequest{ID: id})
}

func (c *Client) QuoteFee(ctx context.Context, price string) (*api.QuoteFeeResponse, error) {
	return call[api.QuoteFeeResponse](ctx, c, api.MethodQuoteFee, &api.QuoteFeeRequest{Price: price})
}

func (c *Client) ListSchools(ctx context.Context) ([]api.School, error) {
	out, err := call[api.ListSchoolsResponse](ctx, c, api.MethodListSchools, &api.Empty{})
	if err != nil {
		return nil, err
	}
	return out.Schools, nil
}

// --- requests ---

func (c *Client) CreateRequest(ctx context.Context, in api.CreateRequestRequest) (*api.Request, error) {
	return call[api.Request](ctx, c, api.MethodCreateRequest, &in)
}

func (c *Client) CancelRequest(ctx context.Context, id string) (*api.Request, error) {
	return call[api.Request](ctx, c, api.MethodCancelRequest, &api.IDRequest{ID: id})
}

func (c *Client) DeleteRequest(ctx context.Context, id string) error {
	_, err := call[api.Empty](ctx, c, api.MethodDeleteRequest, &api.IDRequest{ID: id})
	return err
}

func (c *Client) GetRequest(ctx context.Context, id string) (*api.Request, error) {
	return call[api.Request](ctx, c, api.MethodGetRequest, &api.IDRequest{ID: id})
}

// ListRequests lists requests in scope; loc is only used by api.ScopeNearby.
func (c *Client) ListRequests(ctx context.Context, scope string, loc *api.Location) ([]api.Request, error) {
	out, err := call[api.ListRequestsResponse](ctx, c, api.MethodListRequests, &api.ListRequestsRequest{Scope: scope, Location: loc})
	if err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// --- offers ---

func (c *Client) MakeOffer(ctx context.Context, requestID, amount string) (*api.Offer, error) {
	return call[api.Offer](ctx, c, api.MethodMakeOffer, &api.MakeOfferRequest{RequestID: requestID, Amount: amount})
}

func (c *Client) AcceptOffer(ctx context.Context, offerID string) (*api.Transaction, error) {
	return call[api.Transaction](ctx, c, api.MethodAcceptOffer, &api.IDRequest{ID: offerID})
}

func (c *Client) DeclineOffer(ctx context.Context, offerID string) (*api.Offer, error) {
	return call[api.Offer](ctx, c, api.MethodDeclineOffer, &api.IDRequest{ID: offerID})
}

func (c *Client) CounterOffer(ctx context.Context, offerID, amount string) (*api.Offer, error) {
	return call[api.Offer](ctx, c, api.MethodCounterOffer, &api.CounterOfferRequest{OfferID: offerID, Amount: amount})
}

func (c *Client) ListOffers(ctx context.Context, requestID string) ([]api.Offer, error) {
	out, err := call[api.ListOffersResponse](ctx, c, api.MethodListOffers, &api.IDRequest{ID: requestID})
	if err != nil {
		return nil, err
	}
	return out.Offers, nil
}

// --- transactions ---

func (c *Client) ConfirmTransaction(ctx context.Context, id string) (*api.Transaction, error) {
	return call[api.Transaction](ctx, c, api.MethodConfirmTransaction, &api.IDRequest{ID: id})
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*api.Transaction, error) {
	return call[api.Transaction](ctx, c, api.MethodGetTransaction, &api.IDRequest{ID: id})
}

func (c *Client) TransactionForRequest(ctx context.Context, requestID string) (*api.Transaction, error) {
	return call[api.Transaction](ctx, c, api.MethodTransactionForRequest, &api.IDRequest{ID: requestID})
}

func (c *Client) ListTransactions(ctx context.Context) ([]api.Transaction, error) {
	out, err := call[api.ListTransactionsResponse](ctx, c, api.MethodListTransactions, &api.Empty{})
	if err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// --- messages ---

func (c *Client) SendMessage(ctx context.Context, transactionID, content string) (*api.Message, error) {
	return call[api.Message](ctx, c, api.MethodSendMessage, &api.SendMessageRequest{TransactionID: transactionID, Content: content})
}

// MarkMessagesRead returns how many messages were marked.
func (c *Client) MarkMessagesRead(ctx context.Context, transactionID string) (int, error) {
	out, err := call[api.CountResponse](ctx, c, api.MethodMarkMessagesRead, &api.IDRequest{ID: transactionID})
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) ListMessages(ctx context.Context, transactionID string) ([]api.Message, error) {
	out, err := call[api.ListMessagesResponse](ctx, c, api.MethodListMessages, &api.IDRequest{ID: transactionID})
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) UnreadCount(ctx context.Context, transactionID string) (int, error) {
	out, err := call[api.CountResponse](ctx, c, api.MethodUnreadCount, &api.IDRequest{ID: transactionID})
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]api.Conversation, error) {
	out, err := call[api.ListConversationsResponse](ctx, c, api.MethodListConversations, &api.Empty{})
	if err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// --- payments ---

// SetupSellerAccount returns the onboarding link for the caller.
func (c *Client) SetupSellerAccount(ctx context.Context) (string, error) {
	out, err := call[api.URLResponse](ctx, c, api.MethodSetupSellerAccount, &api.Empty{})
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *Client) CheckSellerStatus(ctx context.Context) (bool, error) {
	out, err := call[api.SellerStatusResponse](ctx, c, api.MethodCheckSellerStatus, &api.Empty{})
	if err != nil {
		return false, err
	}
	return out.CanReceivePayments, nil
}

// CreatePayment returns the client secret of a payment for the transaction.
func (c *Client) CreatePayment(ctx context.Context, transactionID string) (string, error) {
	out, err := call[api.PaymentResponse](ctx, c, api.MethodCreatePayment, &api.IDRequest{ID: transactionID})
	if err != nil {
		return "", err
	}
	return out.ClientSecret, nil
}
