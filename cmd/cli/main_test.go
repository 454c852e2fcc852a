package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/and161185/flour/internal/api"
	"github.com/and161185/flour/internal/client"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "flour")
}

// fakeConn answers every call through respond and records what was sent.
type fakeConn struct {
	method  string
	in      any
	auth    []string
	respond func(method string, out any)
}

var _ grpc.ClientConnInterface = (*fakeConn)(nil)

func (f *fakeConn) Invoke(ctx context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	f.method, f.in = method, args
	md, _ := metadata.FromOutgoingContext(ctx)
	f.auth = md.Get("authorization")
	if f.respond != nil {
		f.respond(method, reply)
	}
	return nil
}

func (f *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("no streams")
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	if got := cfgDir(); got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if !strings.HasPrefix(tokenPath(), base) || !strings.HasSuffix(tokenPath(), "token.json") {
		t.Fatalf("tokenPath unexpected: %s", tokenPath())
	}
}

func Test_token_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := loadToken(); err == nil {
		t.Fatalf("expected error when token file missing")
	}
	if err := saveToken("tok", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	tok, err := loadToken()
	if err != nil || tok != "tok" {
		t.Fatalf("loadToken: tok=%q err=%v", tok, err)
	}
	st, err := os.Stat(tokenPath())
	if err != nil || st.Mode().Perm() != 0o600 {
		t.Fatalf("token file mode: %v %v", st, err)
	}
	if err := saveToken("tok2", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("saveToken expired: %v", err)
	}
	if _, err := loadToken(); err == nil {
		t.Fatalf("want error for expired token")
	}
}

func Test_loadTLS_Variants(t *testing.T) {
	t.Parallel()

	creds, err := loadTLS("", true)
	if err != nil || creds == nil {
		t.Fatalf("insecure: %v %v", creds, err)
	}

	creds, err = loadTLS("", false)
	if err != nil || creds == nil {
		t.Fatalf("default tls: %v %v", creds, err)
	}

	tmp := filepath.Join(t.TempDir(), "bad.pem")
	_ = os.WriteFile(tmp, []byte("not pem"), 0o600)
	creds, err = loadTLS(tmp, false)
	if err == nil || creds != nil {
		t.Fatalf("bad CA should error, got creds=%v err=%v", creds, err)
	}
}

func Test_printJSON_WritesPretty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printJSON(&buf, map[string]any{"a": 1})

	var m map[string]any
	if json.Unmarshal(buf.Bytes(), &m) != nil || m["a"] != float64(1) {
		t.Fatalf("printJSON produced invalid json: %s", buf.String())
	}
	if !strings.Contains(strings.TrimSpace(buf.String()), "\n") {
		t.Fatalf("printJSON should indent")
	}
}

func Test_run_LoginSavesToken(t *testing.T) {
	_ = withTmpConfig(t)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	fc := &fakeConn{respond: func(_ string, out any) {
		r := out.(*api.LoginResponse)
		r.AccessToken = "jwt-1"
		r.ExpiresAt = exp
		r.User = api.User{ID: "u1", DisplayName: "Amy"}
	}}

	var out bytes.Buffer
	err := run(context.Background(), client.New(fc), "login", []string{"-email", "a@uni.edu", "-password", "password123"}, &out)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if fc.method != api.FullMethod(api.MethodLogin) {
		t.Fatalf("method = %s", fc.method)
	}
	tok, err := loadToken()
	if err != nil || tok != "jwt-1" {
		t.Fatalf("saved token: %q %v", tok, err)
	}
	if !strings.Contains(out.String(), `"display_name": "Amy"`) {
		t.Fatalf("output: %s", out.String())
	}
}

func Test_run_CreateRequest(t *testing.T) {
	t.Parallel()

	fc := &fakeConn{respond: func(_ string, out any) { out.(*api.Request).ID = "r1" }}
	cl := client.New(fc)
	cl.SetToken("tok")

	var out bytes.Buffer
	args := []string{"-item", "Flour", "-price", "12.50", "-urgency", "30 min", "-lat", "40.1", "-lng", "-74.2", "-hours", "3"}
	if err := run(context.Background(), cl, "request", args, &out); err != nil {
		t.Fatalf("request: %v", err)
	}
	in, ok := fc.in.(*api.CreateRequestRequest)
	if !ok {
		t.Fatalf("sent %T", fc.in)
	}
	want := api.CreateRequestRequest{
		ItemDescription: "Flour", OfferPrice: "12.50", Urgency: "30 min",
		Location: api.Location{Latitude: 40.1, Longitude: -74.2}, DurationHours: 3,
	}
	if *in != want {
		t.Fatalf("sent %+v, want %+v", *in, want)
	}
	if len(fc.auth) != 1 || fc.auth[0] != "Bearer tok" {
		t.Fatalf("auth header: %v", fc.auth)
	}
}

func Test_run_FeedNearbySendsLocation(t *testing.T) {
	t.Parallel()

	fc := &fakeConn{}
	if err := run(context.Background(), client.New(fc), "feed", []string{"-scope", "nearby", "-lat", "1", "-lng", "2"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	in := fc.in.(*api.ListRequestsRequest)
	if in.Scope != api.ScopeNearby || in.Location == nil || in.Location.Longitude != 2 {
		t.Fatalf("sent %+v", in)
	}

	fc = &fakeConn{}
	if err := run(context.Background(), client.New(fc), "feed", nil, &bytes.Buffer{}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if in := fc.in.(*api.ListRequestsRequest); in.Scope != api.ScopeActive || in.Location != nil {
		t.Fatalf("sent %+v", in)
	}
}

func Test_run_Counts(t *testing.T) {
	t.Parallel()

	fc := &fakeConn{respond: func(_ string, out any) { out.(*api.CountResponse).Count = 4 }}
	var out bytes.Buffer
	if err := run(context.Background(), client.New(fc), "unread", []string{"-tx", "t1"}, &out); err != nil {
		t.Fatalf("unread: %v", err)
	}
	if !strings.Contains(out.String(), `"unread": 4`) {
		t.Fatalf("output: %s", out.String())
	}
}

func Test_run_Errors(t *testing.T) {
	t.Parallel()

	fc := &fakeConn{}
	cl := client.New(fc)
	ctx := context.Background()

	err := run(ctx, cl, "offer", []string{"-request", "r1"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "-amount") {
		t.Fatalf("want missing -amount, got %v", err)
	}
	if fc.method != "" {
		t.Fatalf("no call expected, got %s", fc.method)
	}

	if err := run(ctx, cl, "frobnicate", nil, &bytes.Buffer{}); !errors.Is(err, errUnknownCommand) {
		t.Fatalf("want errUnknownCommand, got %v", err)
	}
	if err := run(ctx, cl, "me", []string{"-bogus"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("want flag parse error")
	}
}
