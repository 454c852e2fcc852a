package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/flour/internal/api"
	"github.com/and161185/flour/internal/errs"
	"github.com/and161185/flour/internal/service"
	"github.com/and161185/flour/internal/session"
)

func makeJWT(t *testing.T, sub string, key []byte, method jwt.SigningMethod, iat time.Time, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(iat),
		NotBefore: jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
	}
	token := jwt.NewWithClaims(method, claims)
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func ctxWithAuth(token string) context.Context {
	md := metadata.New(map[string]string{
		"authorization": "Bearer " + token,
	})
	return metadata.NewIncomingContext(context.Background(), md)
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc.def.ghi"))
	got, err := bearerTokenFromMD(ctx)
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic foo"))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on non-bearer")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer   "))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on empty token")
	}

	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("want error on no metadata")
	}
}

// authCall runs AuthUnary backed by the real token verifier and returns the actor it stored.
func authCall(t *testing.T, ctx context.Context) (uuid.UUID, error) {
	t.Helper()
	auth := service.NewAuthService(nil, nil, testKey, time.Hour, nil)
	info := &grpc.UnaryServerInfo{FullMethod: api.FullMethod(api.MethodGetMe)}
	var actor uuid.UUID
	_, err := AuthUnary(auth)(ctx, nil, info, func(ctx context.Context, _ any) (any, error) {
		actor, _ = session.ActorFromContext(ctx)
		return nil, nil
	})
	return actor, err
}

func TestAuthUnary_ValidJWT(t *testing.T) {
	t.Parallel()

	sub := uuid.Must(uuid.NewV4())
	j := makeJWT(t, sub.String(), testKey, jwt.SigningMethodHS256, time.Now().UTC().Add(-time.Minute), 10*time.Minute)

	id, err := authCall(t, ctxWithAuth(j))
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if id != sub {
		t.Fatalf("uuid mismatch: %s vs %s", id, sub)
	}
}

func TestAuthUnary_InvalidJWTs(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	sub := uuid.Must(uuid.NewV4()).String()
	cases := map[string]string{
		"expired":     makeJWT(t, sub, testKey, jwt.SigningMethodHS256, now.Add(-2*time.Hour), time.Hour),
		"wrong key":   makeJWT(t, sub, []byte("other"), jwt.SigningMethodHS256, now, time.Hour),
		"wrong alg":   makeJWT(t, sub, testKey, jwt.SigningMethodHS512, now, time.Hour),
		"bad subject": makeJWT(t, "not-a-uuid", testKey, jwt.SigningMethodHS256, now, time.Hour),
		"not a jwt":   "abc",
	}
	for name, tok := range cases {
		tok := tok
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := authCall(t, ctxWithAuth(tok)); status.Code(err) != codes.Unauthenticated {
				t.Fatalf("want Unauthenticated, got %v", err)
			}
		})
	}
}

func TestAuthUnary_LeewayAllowsSmallClockSkew(t *testing.T) {
	t.Parallel()

	sub := uuid.Must(uuid.NewV4())
	// issued 10s in the future, within the verifier's leeway
	j := makeJWT(t, sub.String(), testKey, jwt.SigningMethodHS256, time.Now().UTC().Add(10*time.Second), time.Minute)
	if _, err := authCall(t, ctxWithAuth(j)); err != nil {
		t.Fatalf("want token accepted, got %v", err)
	}
}

func Test_toStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want codes.Code
	}{
		{errs.Unauthenticated(), codes.Unauthenticated},
		{fmt.Errorf("login: %w", errs.ErrUnauthorized), codes.Unauthenticated},
		{errs.Validationf("bad amount"), codes.InvalidArgument},
		{fmt.Errorf("x: %w", errs.ErrForbidden), codes.PermissionDenied},
		{fmt.Errorf("x: %w", errs.ErrNotFound), codes.NotFound},
		{fmt.Errorf("x: %w", errs.ErrInvalidState), codes.FailedPrecondition},
		{fmt.Errorf("x: %w", errs.ErrAlreadyExists), codes.AlreadyExists},
		{errs.ErrRateLimited, codes.ResourceExhausted},
		{fmt.Errorf("stripe: %w", errs.ErrPayment), codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{status.Error(codes.Aborted, "kept"), codes.Aborted},
		{errors.New("db exploded"), codes.Internal},
	}
	for _, c := range cases {
		if got := status.Code(toStatus(c.err)); got != c.want {
			t.Errorf("toStatus(%v) = %s, want %s", c.err, got, c.want)
		}
	}

	if toStatus(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	if msg := status.Convert(toStatus(errors.New("secret dsn"))).Message(); msg != "internal" {
		t.Fatalf("internal error text leaked: %q", msg)
	}
}

type loopbackAddr struct{}

func (loopbackAddr) Network() string { return "tcp" }
func (loopbackAddr) String() string  { return "127.0.0.1:5555" }

func Test_remoteIP(t *testing.T) {
	t.Parallel()

	if got := remoteIP(context.Background()); got != "" {
		t.Fatalf("no peer: got %q", got)
	}
	pctx := peer.NewContext(context.Background(), &peer.Peer{Addr: loopbackAddr{}})
	if got := remoteIP(pctx); got != "127.0.0.1" {
		t.Fatalf("remoteIP = %q, want host only", got)
	}
}
