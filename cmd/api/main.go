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

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"resturant.app/internal/audit"
	"resturant.app/internal/auth"
	"resturant.app/internal/config"
	"resturant.app/internal/email"
	"resturant.app/internal/httpapi"
	"resturant.app/internal/obs"
	"resturant.app/internal/ratelimit"
	"resturant.app/internal/store/memory"
	"resturant.app/internal/store/pg"
)

// storage is what the API needs from a store implementation.
type storage interface {
	auth.Store
	Ping(ctx context.Context) error
}

func main() {
	var (
		configFile = flag.String("config", "", "optional YAML config file")
		inMemory   = flag.Bool("memory", false, "use a seeded in-memory store instead of PostgreSQL")
	)
	flag.Parse()

	log := obs.Logger()
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	if err := obs.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.WithError(err).Fatal("configure logging")
	}
	obs.Init()
	obs.InitBuildInfo()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, *inMemory, log)
	defer closeStore()

	svc, err := newService(cfg, store, log)
	if err != nil {
		log.WithError(err).Fatal("build auth service")
	}

	limiter, closeLimiter := newLimiter(cfg, log)
	defer closeLimiter()

	if cfg.AMQPURL != "" {
		pub, err := audit.DialAMQP(cfg.AMQPURL, audit.DefaultExchange)
		if err != nil {
			log.WithError(err).Fatal("connect audit broker")
		}
		audit.SetPublisher(pub)
		defer pub.Close()
	}

	api := httpapi.New(svc,
		httpapi.WithLoginLimiter(limiter),
		httpapi.WithReadyProbe(store),
		httpapi.WithFrontendURL(cfg.Frontend),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewHealthMonitor(store, 10*time.Second)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.WithError(err).WithField("addr", cfg.GRPCAddr).Fatal("listen grpc")
	}
	go health.Run(ctx)

	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.WithError(err).Error("grpc server")
			stop()
		}
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server")
			stop()
		}
	}()

	log.WithFields(logrus.Fields{
		"version":   obs.Version,
		"http_addr": cfg.HTTPAddr,
		"grpc_addr": cfg.GRPCAddr,
		"memory":    *inMemory,
		"google":    cfg.Google.Enabled(),
	}).Info("resturant-api started")

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	grpcSrv.GracefulStop()
	log.Info("stopped")
}

func openStore(ctx context.Context, cfg *config.Config, inMemory bool, log logrus.FieldLogger) (storage, func()) {
	if inMemory || cfg.Database.DSN == "" {
		st := memory.New()
		if err := memory.Seed(ctx, st); err != nil {
			log.WithError(err).Fatal("seed memory store")
		}
		log.Warn("using in-memory store; data is lost on restart")
		return st, func() {}
	}
	st, err := pg.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(pingCtx); err != nil {
		log.WithError(err).Warn("database not reachable yet")
	}
	return st, func() { _ = st.Close() }
}

func newService(cfg *config.Config, store auth.Store, log *logrus.Logger) (*auth.Service, error) {
	mailer, err := email.New(cfg.Email.Sender, log)
	if err != nil {
		return nil, err
	}
	baseURL := cfg.Email.BaseURL
	if baseURL == "" {
		baseURL = cfg.Frontend
	}

	opts := []auth.ServiceOption{
		auth.WithSigningKey(cfg.JWT.Key),
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithAudience(cfg.JWT.Audience),
		auth.WithAccessTTL(cfg.JWT.AccessTTL),
		auth.WithRefreshTTL(cfg.JWT.RefreshTokenTTL),
		auth.WithLogger(log.WithField("component", "auth")),
		auth.WithMailer(mailer, baseURL),
	}
	if cfg.Google.Enabled() {
		gcfg := auth.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			Timeout:      cfg.Google.Timeout,
		}
		exchanger, err := auth.NewGoogleExchanger(gcfg)
		if err != nil {
			return nil, err
		}
		verifier, err := auth.NewGoogleVerifier(gcfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, auth.WithGoogle(exchanger, verifier, exchanger))
	}
	return auth.NewService(store, opts...)
}

func newLimiter(cfg *config.Config, log logrus.FieldLogger) (ratelimit.Limiter, func()) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemory(cfg.RateLimit.LoginPerMinute), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	log.WithField("addr", cfg.RedisAddr).Info("login rate limit shared through redis")
	return ratelimit.NewRedis(rdb, "resturant:ratelimit", cfg.RateLimit.LoginPerMinute), func() { _ = rdb.Close() }
}
