package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkrupp/tokenauth/internal/infra/config"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
	"github.com/mkrupp/tokenauth/internal/infra/metrics"
	"github.com/mkrupp/tokenauth/internal/infra/transport/http"
	"github.com/mkrupp/tokenauth/internal/repo/account"
	"github.com/mkrupp/tokenauth/internal/svc/authsvc"
)

const (
	appName = "tokenauth"
	svcName = "authsvc"
)

type Config struct {
	config.EnvConfig

	Log     logging.LoggerConfig        `envPrefix:"LOG_"`
	Auth    authsvc.AuthConfig          `envPrefix:"AUTH_"`
	HTTP    authsvc.HTTPTransportConfig `envPrefix:"HTTP_"`
	Account account.RepositoryConfig    `envPrefix:"ACCOUNT_"`
	Metrics metrics.MetricsConfig       `envPrefix:"METRICS_"`
}

func main() {
	var (
		cfg Config
		ctx = context.Background()

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.authsvc")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
		} else {
			log.InfoContext(ctx, "shutdown")
		}
	}()

	registry := metrics.NewRegistry()

	authMetrics, err := metrics.NewAuthMetrics(registry, cfg.Metrics)
	if err != nil {
		return fmt.Errorf("new auth metrics: %w", err)
	}

	repoFactory, err := account.NewRepositoryFactory(cfg.Account)
	if err != nil {
		return fmt.Errorf("new repository factory: %w", err)
	}

	authSvc, err := authsvc.NewAuthService(ctx, repoFactory, cfg.Auth, authMetrics)
	if err != nil {
		return fmt.Errorf("new auth service: %w", err)
	}
	defer authSvc.Close()

	if cfg.Auth.SeedFile != "" {
		seed, err := authsvc.LoadSeedFile(cfg.Auth.SeedFile)
		if err != nil {
			return fmt.Errorf("load seed file: %w", err)
		}

		if _, err := authSvc.Accounts.Seed(ctx, seed); err != nil {
			return fmt.Errorf("seed accounts: %w", err)
		}
	}

	httpTransport, err := authsvc.NewHTTPTransport(authSvc, cfg.HTTP)
	if err != nil {
		return fmt.Errorf("new http transport: %w", err)
	}

	return serve(ctx, httpTransport, registry, cfg)
}

// serve runs the API server and, when configured, the metrics server on its own address.
// The first server to fail stops the other.
func serve(ctx context.Context, api http.HTTPTransport, registry *prometheus.Registry, cfg Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	servers := 1
	errs := make(chan error, 2)

	go func() {
		if err := http.ListenAndServe(ctx, api, cfg.HTTP.HTTPTransportConfig); err != nil {
			errs <- fmt.Errorf("listen and serve: %w", err)
		} else {
			errs <- nil
		}
	}()

	if cfg.Metrics.ServerAddr != "" {
		metricsCfg := cfg.HTTP.HTTPTransportConfig
		metricsCfg.ServerAddr = cfg.Metrics.ServerAddr
		servers++

		go func() {
			if err := http.ListenAndServe(ctx, metrics.Handler(registry), metricsCfg); err != nil {
				errs <- fmt.Errorf("metrics listen and serve: %w", err)
			} else {
				errs <- nil
			}
		}()
	}

	var errList []error

	for range servers {
		if err := <-errs; err != nil {
			errList = append(errList, err)
		}

		cancel()
	}

	return errors.Join(errList...)
}
