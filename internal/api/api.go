// Package api defines the JSON messages of the flour.v1.Marketplace gRPC service.
// Money travels as decimal strings with two places; ids as canonical UUID strings.
package api

import "time"

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "flour.v1.Marketplace"

// Method names, relative to ServiceName.
const (
	MethodRegister    = "Register"
	MethodLogin       = "Login"
	MethodGetMe       = "GetMe"
	MethodGetUser     = "GetUser"
	MethodQuoteFee    = "QuoteFee"
	MethodListSchools = "ListSchools"

	MethodCreateRequest = "CreateRequest"
	MethodCancelRequest = "CancelRequest"
	MethodDeleteRequest = "DeleteRequest"
	MethodGetRequest    = "GetRequest"
	MethodListRequests  = "ListRequests"

	MethodMakeOffer    = "MakeOffer"
	MethodAcceptOffer  = "AcceptOffer"
	MethodDeclineOffer = "DeclineOffer"
	MethodCounterOffer = "CounterOffer"
	MethodListOffers   = "ListOffers"

	MethodConfirmTransaction    = "ConfirmTransaction"
	MethodGetTransaction        = "GetTransaction"
	MethodTransactionForRequest = "TransactionForRequest"
	MethodListTransactions      = "ListTransactions"

	MethodSendMessage       = "SendMessage"
	MethodMarkMessagesRead  = "MarkMessagesRead"
	MethodListMessages      = "ListMessages"
	MethodUnreadCount       = "UnreadCount"
	MethodListConversations = "ListConversations"

	MethodSetupSellerAccount = "SetupSellerAccount"
	MethodCheckSellerStatus  = "CheckSellerStatus"
	MethodCreatePayment      = "CreatePayment"
)

// FullMethod returns "/flour.v1.Marketplace/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// Public methods are served without a bearer token.
var Public = map[string]bool{
	FullMethod(MethodRegister):    true,
	FullMethod(MethodLogin):       true,
	FullMethod(MethodQuoteFee):    true,
	FullMethod(MethodListSchools): true,
}

// --- entities ---

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type User struct {
	ID                        string    `json:"id"`
	DisplayName               string    `json:"display_name"`
	Email                     string    `json:"email,omitempty"`
	Phone                     string    `json:"phone,omitempty"`
	SchoolID                  string    `json:"school_id,omitempty"`
	CreatedAt                 time.Time `json:"created_at"`
	Rating                    *float64  `json:"rating,omitempty"`
	TotalTransactions         int       `json:"total_transactions"`
	Initials                  string    `json:"initials"`
	CanReceivePayments        bool      `json:"can_receive_payments"`
	PaymentOnboardingComplete *bool     `json:"payment_onboarding_complete,omitempty"`
}

type School struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	IsActive bool   `json:"is_active"`
}

type Request struct {
	ID              string    `json:"id"`
	RequesterID     string    `json:"requester_id"`
	ItemDescription string    `json:"item_description"`
	OfferPrice      string    `json:"offer_price"`
	Urgency         string    `json:"urgency"`
	RadiusMeters    float64   `json:"radius_meters"`
	Location        Location  `json:"location"`
	Status          string    `json:"status"`
	FulfillerID     string    `json:"fulfiller_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	DurationHours   float64   `json:"duration_hours"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type Offer struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id"`
	UserID        string    `json:"user_id"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	ParentOfferID string    `json:"parent_offer_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Transaction struct {
	ID                   string     `json:"id"`
	RequestID            string     `json:"request_id"`
	RequesterID          string     `json:"requester_id"`
	FulfillerID          string     `json:"fulfiller_id"`
	ItemPrice            string     `json:"item_price"`
	PlatformFee          string     `json:"platform_fee"`
	TotalCharged         string     `json:"total_charged"`
	Status               string     `json:"status"`
	RequesterConfirmed   bool       `json:"requester_confirmed"`
	FulfillerConfirmed   bool       `json:"fulfiller_confirmed"`
	CreatedAt            time.Time  `json:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	PaymentStatus        string     `json:"payment_status,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	PaymentFailureReason string     `json:"payment_failure_reason,omitempty"`
}

type Message struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	SenderID      string    `json:"sender_id"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	IsRead        bool      `json:"is_read"`
}

type Conversation struct {
	Transaction  Transaction `json:"transaction"`
	LastMessage  *Message    `json:"last_message,omitempty"`
	LastActivity time.Time   `json:"last_activity"`
	UnreadCount  int         `json:"unread_count"`
}

// --- calls ---

// Empty is the request or response of calls that carry nothing.
type Empty struct{}

// IDRequest addresses one entity.
type IDRequest struct {
	ID string `json:"id"`
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

type QuoteFeeRequest struct {
	Price string `json:"price"`
}

type QuoteFeeResponse struct {
	ItemPrice   string `json:"item_price"`
	PlatformFee string `json:"platform_fee"`
	Total       string `json:"total"`
}

type ListSchoolsResponse struct {
	Schools []School `json:"schools"`
}

type CreateRequestRequest struct {
	ItemDescription string   `json:"item_description"`
	OfferPrice      string   `json:"offer_price"`
	Urgency         string   `json:"urgency"`
	RadiusMeters    float64  `json:"radius_meters,omitempty"`
	Location        Location `json:"location"`
	DurationHours   float64  `json:"duration_hours,omitempty"`
}

// Request list scopes.
const (
	ScopeActive = "active"
	ScopeNearby = "nearby"
	ScopeMine   = "mine"
)

type ListRequestsRequest struct {
	Scope    string    `json:"scope"`
	Location *Location `json:"location,omitempty"` // required for ScopeNearby
}

type ListRequestsResponse struct {
	Requests []Request `json:"requests"`
}

type MakeOfferRequest struct {
	RequestID string `json:"request_id"`
	Amount    string `json:"amount"`
}

type CounterOfferRequest struct {
	OfferID string `json:"offer_id"`
	Amount  string `json:"amount"`
}

type ListOffersResponse struct {
	Offers []Offer `json:"offers"`
}

type ListTransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type SendMessageRequest struct {
	TransactionID string `json:"transaction_id"`
	Content       string `json:"content"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

type URLResponse struct {
	URL string `json:"url"`
}

type SellerStatusResponse struct {
	CanReceivePayments bool `json:"can_receive_payments"`
}

type PaymentResponse struct {
	ClientSecret string `json:"client_secret"`
}
