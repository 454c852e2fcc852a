// Command flour is a CLI client for the Flour marketplace.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/flour/internal/api"
	"github.com/and161185/flour/internal/client"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "flour")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "flour")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(addr, caPath string, skipVerify, plaintext bool) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if !plaintext {
		var err error
		if creds, err = loadTLS(caPath, skipVerify); err != nil {
			return nil, err
		}
	}
	return grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// need reports the first empty required flag.
func need(fs *flag.FlagSet, names ...string) error {
	var missing []string
	for _, n := range names {
		if f := fs.Lookup(n); f == nil || f.Value.String() == "" {
			missing = append(missing, "-"+n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: need %s", fs.Name(), strings.Join(missing, " "))
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `flour CLI
Usage:
  flour -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  register      -email <e> -password <p> -name <display name> [-phone <p>]
  login         -email <e> -password <p>                  (saves token)
  me
  user          -id <uuid>
  quote         -price <amount>
  schools

  request       -item <text> -price <amount> -urgency <ASAP|30 min|1 hour|Flexible>
                -lat <f> -lng <f> [-radius <m>] [-hours <h>]
  show          -id <request uuid>
  cancel        -id <request uuid>
  delete        -id <request uuid>
  feed          [-scope active|nearby|mine] [-lat <f> -lng <f>]

  offer         -request <uuid> -amount <amount>
  offers        -request <uuid>
  accept        -id <offer uuid>
  decline       -id <offer uuid>
  counter       -id <offer uuid> -amount <amount>

  confirm       -id <transaction uuid>
  tx            -id <transaction uuid>
  tx-for        -request <uuid>
  txs

  send          -tx <uuid> -text <message>
  messages      -tx <uuid>
  read          -tx <uuid>
  unread        -tx <uuid>
  conversations

  seller-setup
  seller-status
  pay           -tx <uuid>
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	// global flags
	addr := flag.String("addr", "localhost:8443", "server addr")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	skipVerify := flag.Bool("insecure", false, "skip cert verify (dev)")
	plaintext := flag.Bool("plaintext", false, "connect without TLS (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	if cmd == "version" {
		fmt.Printf("flour %s (%s)\n", version, buildDate)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := dial(*addr, *caPath, *skipVerify, *plaintext)
	if err != nil {
		fail(err)
	}
	defer conn.Close()

	cl := client.New(conn)
	if tok, err := loadToken(); err == nil {
		cl.SetToken(tok)
	}

	if err := run(ctx, cl, cmd, flag.Args()[1:], os.Stdout); err != nil {
		if errors.Is(err, errUnknownCommand) {
			usage()
		}
		fail(err)
	}
}

var errUnknownCommand = errors.New("unknown command")

// run executes one subcommand and prints its result as JSON.
func run(ctx context.Context, cl *client.Client, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		id       = fs.String("id", "", "entity id")
		request  = fs.String("request", "", "request id")
		txID     = fs.String("tx", "", "transaction id")
		amount   = fs.String("amount", "", "amount")
		price    = fs.String("price", "", "price")
		email    = fs.String("email", "", "email")
		password = fs.String("password", "", "password")
		name     = fs.String("name", "", "display name")
		phone    = fs.String("phone", "", "phone")
		item     = fs.String("item", "", "item description")
		urgency  = fs.String("urgency", "Flexible", "urgency")
		lat      = fs.Float64("lat", 0, "latitude")
		lng      = fs.Float64("lng", 0, "longitude")
		radius   = fs.Float64("radius", 0, "radius in meters (0 = default)")
		hours    = fs.Float64("hours", 0, "duration in hours (0 = default)")
		scope    = fs.String("scope", api.ScopeActive, "feed scope")
		text     = fs.String("text", "", "message text")
	)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}

	var (
		res any
		err error
	)
	switch cmd {
	case "register":
		if err := need(fs, "email", "password", "name"); err != nil {
			return err
		}
		res, err = cl.Register(ctx, api.RegisterRequest{Email: *email, Password: *password, DisplayName: *name, Phone: *phone})

	case "login":
		if err := need(fs, "email", "password"); err != nil {
			return err
		}
		resp, err := cl.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		if err := saveToken(resp.AccessToken, resp.ExpiresAt); err != nil {
			return err
		}
		res = resp.User

	case "me":
		res, err = cl.GetMe(ctx)
	case "user":
		if err := need(fs, "id"); err != nil {
			return err
		}
		res, err = cl.GetUser(ctx, *id)
	case "quote":
		if err := need(fs, "price"); err != nil {
			return err
		}
		res, err = cl.QuoteFee(ctx, *price)
	case "schools":
		res, err = cl.ListSchools(ctx)

	case "request":
		if err := need(fs, "item", "price"); err != nil {
			return err
		}
		res, err = cl.CreateRequest(ctx, api.CreateRequestRequest{
			ItemDescription: *item,
			OfferPrice:      *price,
			Urgency:         *urgency,
			RadiusMeters:    *radius,
			Location:        api.Location{Latitude: *lat, Longitude: *lng},
			DurationHours:   *hours,
		})
	case "show":
		if err := need(fs, "id"); err != nil {
			return err
		}
		res, err = cl.GetRequest(ctx, *id)
	case "cancel":
		if err := need(fs, "id"); err != nil {
			return err
		}
		res, err = cl.CancelRequest(ctx, *id)
	case "delete":
		if err := need(fs, "id"); err != nil {
			return err
		}
		if err := cl.DeleteRequest(ctx, *id); err != nil {
			return err
		}
		res = map[string]string{"deleted": *id}
	case "feed":
		var loc *api.Location
		if *scope == api.ScopeNearby {
			loc = &api.Location{Latitude: *lat, Longitude: *lng}
		}
		res, err = cl.ListRequests(ctx, *scope, loc)

	case "offer":
		if err := need(fs, "request", "amount"); err != nil {
			return err
		}
		res, err = cl.MakeOffer(ctx, *request, *amount)
	case "offers":
		if err := need(fs, "request"); err != nil {
			return err
		}
		res, err = cl.ListOffers(ctx, *request)
	case "accept":
		if err := need(fs, "id"); err != nil {
			return err
		}
		res, err = cl.AcceptOffer(ctx, *id)
	case "decline":
		if err := need(fs, "id"); err != nil {
			return err
		}
		res, err = cl.DeclineOffer(ctx, *id)
	case "counter":
		if err := need(fs, "id", "amount"); err != nil {
			return err
		}
		res, err = cl.CounterOffer(ctx, *id, *amount)

	case "confirm":
		if err := need(fs, "id"); err != nil {
			return err
		}
		res, err = cl.ConfirmTransaction(ctx, *id)
	case "tx":
		if err := need(fs, "id"); err != nil {
			return err
		}
		res, err = cl.GetTransaction(ctx, *id)
	case "tx-for":
		if err := need(fs, "request"); err != nil {
			return err
		}
		res, err = cl.TransactionForRequest(ctx, *request)
	case "txs":
		res, err = cl.ListTransactions(ctx)

	case "send":
		if err := need(fs, "tx", "text"); err != nil {
			return err
		}
		res, err = cl.SendMessage(ctx, *txID, *text)
	case "messages":
		if err := need(fs, "tx"); err != nil {
			return err
		}
		res, err = cl.ListMessages(ctx, *txID)
	case "read":
		if err := need(fs, "tx"); err != nil {
			return err
		}
		n, err := cl.MarkMessagesRead(ctx, *txID)
		if err != nil {
			return err
		}
		res = map[string]int{"marked": n}
	case "unread":
		if err := need(fs, "tx"); err != nil {
			return err
		}
		n, err := cl.UnreadCount(ctx, *txID)
		if err != nil {
			return err
		}
		res = map[string]int{"unread": n}
	case "conversations":
		res, err = cl.ListConversations(ctx)

	case "seller-setup":
		url, err := cl.SetupSellerAccount(ctx)
		if err != nil {
			return err
		}
		res = map[string]string{"onboarding_url": url}
	case "seller-status":
		ok, err := cl.CheckSellerStatus(ctx)
		if err != nil {
			return err
		}
		res = map[string]bool{"can_receive_payments": ok}
	case "pay":
		if err := need(fs, "tx"); err != nil {
			return err
		}
		secret, err := cl.CreatePayment(ctx, *txID)
		if err != nil {
			return err
		}
		res = map[string]string{"client_secret": secret}

	default:
		return fmt.Errorf("%q: %w", cmd, errUnknownCommand)
	}
	if err != nil {
		return err
	}
	printJSON(out, res)
	return nil
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
