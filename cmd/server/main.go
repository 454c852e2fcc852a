// Command flour-server starts the Flour marketplace gRPC and HTTP servers.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/flour/internal/config"
	"github.com/and161185/flour/internal/events"
	"github.com/and161185/flour/internal/limiter"
	"github.com/and161185/flour/internal/metrics"
	"github.com/and161185/flour/internal/migrate"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/payment"
	"github.com/and161185/flour/internal/repository"
	"github.com/and161185/flour/internal/repository/memory"
	"github.com/and161185/flour/internal/repository/postgres"
	"github.com/and161185/flour/internal/repository/redis"
	grpcserver "github.com/and161185/flour/internal/server/grpc"
	httpserver "github.com/and161185/flour/internal/server/http"
	"github.com/and161185/flour/internal/service"
	"github.com/and161185/flour/internal/syncer"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, restores persisted state and serves until SIGINT/SIGTERM.
func main() {
	envFile := ".env"
	if v := os.Getenv("FLOUR_ENV_FILE"); v != "" {
		envFile = v
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		panic(err)
	}

	// Flags override the environment.
	flag.StringVar(&cfg.Server.GRPCAddr, "addr", cfg.Server.GRPCAddr, "gRPC listen address")
	flag.StringVar(&cfg.Server.HTTPAddr, "http-addr", cfg.Server.HTTPAddr, "HTTP listen address (health, metrics, webhooks)")
	flag.StringVar(&cfg.Database.URL, "dsn", cfg.Database.URL, "PostgreSQL DSN; empty keeps state in memory")
	flag.StringVar(&cfg.Auth.JWTSecret, "jwt-key", cfg.Auth.JWTSecret, "HS256 signing key (required)")
	flag.DurationVar(&cfg.Auth.AccessTokenTTL, "access-ttl", cfg.Auth.AccessTokenTTL, "access token TTL")
	flag.StringVar(&cfg.Server.TLSCert, "tls-cert", cfg.Server.TLSCert, "TLS certificate (PEM)")
	flag.StringVar(&cfg.Server.TLSKey, "tls-key", cfg.Server.TLSKey, "TLS private key (PEM)")
	flag.BoolVar(&cfg.Server.Dev, "dev", cfg.Server.Dev, "enable server reflection (dev only)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	if cfg.Server.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.GRPCAddr),
	)

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("missing jwt signing key (JWT_SECRET or --jwt-key)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	mc := metrics.NewCollector("flour")

	opts := []service.Option{
		service.WithLogger(logger.Named("market")),
		service.WithMetrics(mc),
		service.WithLimits(model.DefaultLimits()),
	}
	if cfg.Stripe.SecretKey != "" {
		opts = append(opts, service.WithPayments(payment.NewStripe(payment.StripeConfig{
			SecretKey:  cfg.Stripe.SecretKey,
			RefreshURL: cfg.Stripe.RefreshURL,
			ReturnURL:  cfg.Stripe.ReturnURL,
			Currency:   cfg.Stripe.Currency,
		})))
	} else {
		logger.Warn("payments disabled: STRIPE_SECRET_KEY is empty")
	}
	market := service.NewMarket(memory.NewStore(), opts...)

	// Credentials and durable state.
	var creds repository.CredentialRepository = memory.NewCredentials()
	if cfg.Database.URL != "" {
		if err := migrate.Up(ctx, cfg.Database.URL); err != nil {
			return err
		}
		db, err := postgres.New(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		creds = postgres.NewCredentialRepo(db)

		syncRepo := postgres.NewSyncRepo(db)
		snap, err := syncer.Restore(ctx, syncRepo, market, uuid.Nil, cfg.Sync.RequestLimit)
		if err != nil {
			return err
		}
		logger.Info("state restored",
			zap.Int("users", len(snap.Users)),
			zap.Int("requests", len(snap.Requests)),
			zap.Int("transactions", len(snap.Transactions)),
		)

		sy := syncer.New(syncRepo,
			syncer.WithQueueSize(cfg.Sync.QueueSize),
			syncer.WithWriteTimeout(cfg.Sync.WriteTimeout),
			syncer.WithLogger(logger.Named("sync")),
			syncer.WithMetrics(mc),
		)
		sy.Start(market.Bus())
		defer sy.Close()
	} else {
		logger.Warn("DATABASE_URL is empty: state is kept in memory only")
	}

	if len(cfg.Schools) > 0 {
		added, err := market.EnsureSchools(ctx, schoolsFromConfig(cfg.Schools))
		if err != nil {
			return err
		}
		logger.Info("schools seeded", zap.Int("added", added), zap.Int("configured", len(cfg.Schools)))
	}

	if cfg.NATS.URL != "" {
		nc, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer nc.Close()
		detach := events.NewNATSForwarder(nc, cfg.NATS.SubjectPrefix, logger.Named("nats")).Attach(market.Bus())
		defer detach()
	}

	var dedupe repository.EventDeduper = memory.NewDeduper(cfg.Redis.DedupeTTL)
	if cfg.Redis.URL != "" {
		rdb, err := redis.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		dedupe = redis.NewDeduper(rdb, cfg.Redis.KeyPrefix, cfg.Redis.DedupeTTL)
	}

	loginLim := limiter.NewMemory(cfg.Auth.LoginWindow, cfg.Auth.LoginMaxFails, cfg.Auth.LoginBlockFor)
	rpcLim := limiter.NewKeyed(cfg.Limits.RPS, cfg.Limits.Burst)
	go sweep(ctx, time.Minute, loginLim.Sweep, rpcLim.Cleanup)

	authSvc := service.NewAuthService(creds, market, []byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTokenTTL, loginLim)

	// gRPC
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger, mc),
			grpcserver.AuthUnary(authSvc),
			grpcserver.RateLimitUnary(rpcLim, logger),
		),
	}
	if cfg.Server.TLSCert != "" {
		tlsCreds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return err
		}
		serverOpts = append(serverOpts, grpc.Creds(tlsCreds))
	} else {
		logger.Warn("TLS disabled: serving plaintext gRPC")
	}
	gs := grpc.NewServer(serverOpts...)
	grpcserver.RegisterMarketplaceServer(gs, grpcserver.New(authSvc, market))

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if cfg.Server.Dev {
		reflection.Register(gs)
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	// HTTP
	webhooks := httpserver.New(market, dedupe, cfg.Stripe.WebhookSecret, logger.Named("http"), mc)
	hsrv := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      webhooks.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening (gRPC)", zap.String("addr", cfg.Server.GRPCAddr))
		errCh <- gs.Serve(lis)
	}()
	go func() {
		logger.Info("listening (HTTP)", zap.String("addr", cfg.Server.HTTPAddr))
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	// graceful shutdown
	hs.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = hsrv.Shutdown(shutdownCtx)

	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		gs.Stop()
	}
	return serveErr
}

// schoolsFromConfig derives stable ids from the domain so restarts upsert the same rows.
func schoolsFromConfig(seeds []config.SchoolSeed) []model.School {
	out := make([]model.School, 0, len(seeds))
	for _, sd := range seeds {
		out = append(out, model.School{
			ID:       uuid.NewV5(uuid.NamespaceDNS, sd.Domain),
			Name:     sd.Name,
			Domain:   sd.Domain,
			IsActive: true,
		})
	}
	return out
}

func sweep(ctx context.Context, every time.Duration, fns ...func()) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, fn := range fns {
				fn()
			}
		}
	}
}
