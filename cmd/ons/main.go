package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/api"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/authority"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/cache"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/delegation"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph/sqlite"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/identity"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/quota"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/recordstore"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/registry"
	recsync "github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/sync"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/config"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/logger"
)

type envConfig struct {
	Addr         string        `env:"ONS_ADDR" envDefault:":8080"`
	GraphPath    string        `env:"ONS_GRAPH_PATH" envDefault:"ons.db"`
	CachePath    string        `env:"ONS_CACHE_PATH"`
	CacheTTL     time.Duration `env:"ONS_CACHE_TTL" envDefault:"10m"`
	TokenSecret  string        `env:"ONS_TOKEN_SECRET,required"`
	TokenIssuer  string        `env:"ONS_TOKEN_ISSUER" envDefault:"ons"`
	StoreTimeout time.Duration `env:"ONS_RECORD_STORE_TIMEOUT" envDefault:"15s"`
	LogLevel     string        `env:"ONS_LOG_LEVEL" envDefault:"info"`
}

func main() {
	var cfg envConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("parse env: %v", err)
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		config.Exitf("parse log level: %v", err)
	}
	log := logger.New(os.Stderr, level)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg envConfig, log *zap.Logger) error {
	store, err := sqlite.Open(cfg.GraphPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	badger, err := cache.OpenBadger(cfg.CachePath)
	if err != nil {
		return err
	}
	defer func() { _ = badger.Close() }()

	verifier, err := identity.NewVerifier(identity.Config{
		Secret: []byte(cfg.TokenSecret),
		Issuer: cfg.TokenIssuer,
	})
	if err != nil {
		return err
	}

	client := recordstore.NewHTTPClient(recordstore.WithHTTPClient(&http.Client{Timeout: cfg.StoreTimeout}))
	resolver := authority.NewResolver(store, badger, cfg.CacheTTL, log)
	enforcer := quota.NewEnforcer(store, badger, cfg.CacheTTL, log)
	sync := recsync.New(store, client, resolver, enforcer, badger, cfg.CacheTTL, log)
	reg := registry.New(store, client, resolver, log)
	del := delegation.NewManager(store, client, resolver, badger, log)

	handler := api.New(verifier, reg, sync, del, resolver, log).Router()
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}
