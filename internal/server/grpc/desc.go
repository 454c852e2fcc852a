package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"github.com/and161185/flour/internal/api"
)

// unary adapts a typed handler to grpc.MethodDesc. Request decoding goes
// through the codec negotiated for the call.
func unary[Req, Resp any](method string, fn func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return fn(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: api.FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(s, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes flour.v1.Marketplace.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(api.MethodRegister, (*Server).Register),
		unary(api.MethodLogin, (*Server).Login),
		unary(api.MethodGetMe, (*Server).GetMe),
		unary(api.MethodGetUser, (*Server).GetUser),
		unary(api.MethodQuoteFee, (*Server).QuoteFee),
		unary(api.MethodListSchools, (*Server).ListSchools),

		unary(api.MethodCreateRequest, (*Server).CreateRequest),
		unary(api.MethodCancelRequest, (*Server).CancelRequest),
		unary(api.MethodDeleteRequest, (*Server).DeleteRequest),
		unary(api.MethodGetRequest, (*Server).GetRequest),
		unary(api.MethodListRequests, (*Server).ListRequests),

		unary(api.MethodMakeOffer, (*Server).MakeOffer),
		unary(api.MethodAcceptOffer, (*Server).AcceptOffer),
		unary(api.MethodDeclineOffer, (*Server).DeclineOffer),
		unary(api.MethodCounterOffer, (*Server).CounterOffer),
		unary(api.MethodListOffers, (*Server).ListOffers),

		unary(api.MethodConfirmTransaction, (*Server).ConfirmTransaction),
		unary(api.MethodGetTransaction, (*Server).GetTransaction),
		unary(api.MethodTransactionForRequest, (*Server).TransactionForRequest),
		unary(api.MethodListTransactions, (*Server).ListTransactions),

		unary(api.MethodSendMessage, (*Server).SendMessage),
		unary(api.MethodMarkMessagesRead, (*Server).MarkMessagesRead),
		unary(api.MethodListMessages, (*Server).ListMessages),
		unary(api.MethodUnreadCount, (*Server).UnreadCount),
		unary(api.MethodListConversations, (*Server).ListConversations),

		unary(api.MethodSetupSellerAccount, (*Server).SetupSellerAccount),
		unary(api.MethodCheckSellerStatus, (*Server).CheckSellerStatus),
		unary(api.MethodCreatePayment, (*Server).CreatePayment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flour/v1/marketplace.json",
}

// RegisterMarketplaceServer attaches s to a gRPC server.
func RegisterMarketplaceServer(gs grpc.ServiceRegistrar, s *Server) {
	gs.RegisterService(&ServiceDesc, s)
}
