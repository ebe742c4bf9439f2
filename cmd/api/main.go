package main

import (
	"context"
	"errors"
	"log"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conclave.org/internal/auth"
	"conclave.org/internal/catalog"
	"conclave.org/internal/config"
	"conclave.org/internal/engine"
	"conclave.org/internal/httpapi"
	"conclave.org/internal/narrator"
	"conclave.org/internal/obs"
	"conclave.org/internal/store"
	"conclave.org/internal/store/mem"
	"conclave.org/internal/store/sqlstore"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Exitf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(obs.BuildInfo{
		Version:  version,
		Commit:   commit,
		Store:    cfg.StoreDriver,
		Narrator: cfg.NarratorProvider,
	})
	if cfg.TokenSecret != "" {
		auth.SetSecret(cfg.TokenSecret)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.SetupTracing(ctx, "conclave-api", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	opts := []engine.Option{engine.WithDailyCap(cfg.DailyCap)}
	n, err := narrator.New(cfg.NarratorProvider, cfg.NarratorModel, cfg.NarratorURL)
	if err != nil {
		log.Fatalf("narrator: %v", err)
	}
	if n != nil {
		opts = append(opts, engine.WithNarrator(n))
	}
	eng := engine.New(st, catalog.Default(), opts...)

	api := httpapi.New(eng, st, httpapi.Options{
		Version:      version,
		TokenTTL:     cfg.TokenTTL,
		RateBurst:    cfg.RateLimitBurst,
		RatePerSec:   int(math.Ceil(cfg.RateLimitRPS)),
		MaxBodyBytes: cfg.MaxBodyBytes,
		CORSOrigins:  cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// no WriteTimeout: /stream, /ws and /rank hold the response open
		IdleTimeout: 60 * time.Second,
	}

	grpcSrv := httpapi.NewGRPCServer(st, version).Register()
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	obs.Info("server_starting", map[string]any{
		"version": version, "http_addr": srv.Addr, "grpc_addr": cfg.GRPCAddr, "store": cfg.StoreDriver,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			obs.Error("grpc_serve_failed", map[string]any{"error": err})
		}
	}()

	<-ctx.Done()
	obs.Info("server_stopping", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	_ = shutdownTracing(shutdownCtx)
	_ = st.Close()
	obs.Info("server_stopped", nil)
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		return mem.New(), nil
	}
	st, err := sqlstore.Open(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, err
	}
	// sqlite databases are local; bring them up to date on boot
	if cfg.StoreDriver == sqlstore.DriverSQLite {
		applied, err := st.Migrate(ctx)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		if len(applied) > 0 {
			obs.Info("migrations_applied", map[string]any{"files": applied})
		}
	}
	return st, nil
}
