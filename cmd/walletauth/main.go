package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/layer-3/walletauth/adapters/signature"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/internal/config"
	"github.com/layer-3/walletauth/internal/obs"
	"github.com/layer-3/walletauth/service"
	transport "github.com/layer-3/walletauth/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("WALLETAUTH_CONFIG"), "path to the YAML config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting walletauth",
		zap.String("env", cfg.App.Env),
		zap.String("ver", cfg.App.Version),
		zap.String("domain", cfg.Auth.Domain),
		zap.String("store", cfg.Store.Driver),
	)

	signKey, err := loadSigningKey(cfg.Auth.SigningKeyFile, logger)
	if err != nil {
		logger.Fatal("signing key", zap.Error(err))
	}

	stores, err := initStores(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("store init", zap.Error(err))
	}
	defer stores.Close()

	bus, err := initEvents(cfg, stores, logger)
	if err != nil {
		logger.Fatal("events init", zap.Error(err))
	}
	defer bus.Close()

	var verifierOpts []signature.Option
	if cfg.Eth.RPCURL != "" {
		client, err := dialEth(rootCtx, cfg.Eth.RPCURL)
		if err != nil {
			logger.Fatal("eth rpc", zap.Error(err))
		}
		defer client.Close()
		verifierOpts = append(verifierOpts, signature.WithContractWallets(client))
		logger.Info("contract wallet signatures enabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(metrics),
		service.WithEventPublisher(bus.Publisher),
	}
	if cfg.RateLimit.Enable {
		opts = append(opts, service.WithRateLimiter(stores.Limiter))
	}

	authService := service.NewAuthService(
		cfg.AsServiceConfig(),
		tokenizer.NewJWTTokenizer(signKey, cfg.Auth.Issuer),
		stores.Challenges,
		stores.Sessions,
		signature.NewVerifier(verifierOpts...),
		opts...,
	)

	go authService.Run(rootCtx, cfg.Store.PruneInterval)
	go func() {
		if err := bus.Subscriber.Run(rootCtx, authService.ApplyRevocation); err != nil {
			logger.Error("revocation subscriber", zap.Error(err))
		}
	}()

	metricsSrv := obs.BootstrapMetricsServer(cfg.Metrics.Addr, reg, stores.Ping, logger)

	router, err := transport.SetupRouter(authService, cfg.AsRouterConfig(), logger)
	if err != nil {
		logger.Fatal("build router", zap.Error(err))
	}
	httpSrv := buildHTTPServer(cfg, router)

	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, cfg, logger) }()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal", zap.String("reason", "context canceled"))
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	_ = httpSrv.Shutdown(shCtx)
	_ = metricsSrv.Shutdown(shCtx)

	logger.Info("bye")
}
