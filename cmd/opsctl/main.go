package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/tienda-online/api/internal/di"
	"github.com/tienda-online/api/internal/platform/config"
	"github.com/tienda-online/api/internal/platform/observability"
	"github.com/tienda-online/api/internal/platform/secrets"
	"github.com/tienda-online/api/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var env *opsEnv
	app := newApp(func(c *cli.Context) (*ops, error) {
		if env == nil {
			var err error
			env, err = bootstrap(c.Context, c.String("backend"))
			if err != nil {
				return nil, err
			}
		}
		return &ops{services: env.container.Services, out: c.App.Writer}, nil
	})
	app.After = func(*cli.Context) error {
		if env == nil {
			return nil
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return env.close(closeCtx)
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "opsctl: %v\n", err)
		os.Exit(1)
	}
}

type opsEnv struct {
	logger    *zap.Logger
	fetcher   *secrets.Fetcher
	runtime   *di.Runtime
	container *di.Container
}

func bootstrap(ctx context.Context, backend string) (*opsEnv, error) {
	envValues, err := config.EnvironmentValues()
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	logger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger = logger.Named("opsctl")

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithProject(envValues["API_FIREBASE_PROJECT_ID"]),
		secrets.WithLogger(logger.Named("secrets")),
	)
	if err != nil {
		return nil, fmt.Errorf("init secret fetcher: %w", err)
	}
	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		_ = fetcher.Close()
		return nil, fmt.Errorf("load config: %w", err)
	}
	if backend == "" {
		backend = envValues["API_REPOSITORY_BACKEND"]
	}
	rt, err := di.NewRuntime(ctx, cfg, logger, di.RuntimeOptions{Backend: backend})
	if err != nil {
		_ = fetcher.Close()
		return nil, err
	}
	container, err := di.NewContainer(ctx, cfg, rt.Registry, rt.Infrastructure(logger, services.BuildInfo{Version: "opsctl"}))
	if err != nil {
		_ = rt.Close(ctx)
		_ = fetcher.Close()
		return nil, err
	}
	return &opsEnv{logger: logger, fetcher: fetcher, runtime: rt, container: container}, nil
}

func (e *opsEnv) close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if ferr := e.fetcher.Close(); err == nil {
		err = ferr
	}
	_ = e.logger.Sync()
	return err
}
