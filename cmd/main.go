package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/sdn-load-balancer/config"
	"github.com/angeloszaimis/sdn-load-balancer/internal/assignment"
	"github.com/angeloszaimis/sdn-load-balancer/internal/balancer"
	"github.com/angeloszaimis/sdn-load-balancer/internal/bridge"
	"github.com/angeloszaimis/sdn-load-balancer/internal/handler"
	"github.com/angeloszaimis/sdn-load-balancer/internal/httpserver"
	"github.com/angeloszaimis/sdn-load-balancer/internal/metrics"
	"github.com/angeloszaimis/sdn-load-balancer/internal/policy"
	"github.com/angeloszaimis/sdn-load-balancer/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, log)
	if err != nil {
		log.Error("Failed to initialize load balancer", slog.Any("err", err))
		os.Exit(1)
	}

	if err := a.run(ctx); err != nil {
		log.Error("Load balancer stopped with error", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Shut down gracefully")
}

type app struct {
	log        *slog.Logger
	balancer   *balancer.LoadBalancer
	controller *bridge.Client
	collector  *metrics.Collector
	admin      *httpserver.Server
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	table, err := assignment.NewTable(cfg.ServerPool())
	if err != nil {
		return nil, fmt.Errorf("create assignment table: %w", err)
	}

	controller, err := bridge.New(cfg.Controller.URL, cfg.Controller.ClientID, cfg.PollRetryInterval(), log)
	if err != nil {
		return nil, fmt.Errorf("create controller client: %w", err)
	}

	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)
	compiler := policy.NewCompiler(assignment.Port(cfg.Balancer.ClientPort))
	lb := balancer.NewLoadBalancer(log, table, compiler, controller, collector)

	adminHandler := handler.NewAdminHandler(log, lb)
	srv, err := httpserver.New(cfg.Server.Address, setupRouter(adminHandler, collector))
	if err != nil {
		return nil, fmt.Errorf("create admin server: %w", err)
	}

	log.Info("Load balancer configured",
		slog.Int("client_port", cfg.Balancer.ClientPort),
		slog.Any("server_ports", cfg.Balancer.ServerPorts),
		slog.String("controller", cfg.Controller.URL),
		slog.String("admin_address", cfg.Server.Address))

	return &app{
		log:        log,
		balancer:   lb,
		controller: controller,
		collector:  collector,
		admin:      srv,
	}, nil
}

// run blocks until ctx is cancelled or a component fails.
func (a *app) run(ctx context.Context) error {
	a.collector.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.controller.Run(gctx, a.balancer)
	})

	g.Go(func() error {
		a.log.Info("Admin server listening", slog.String("address", a.admin.Addr()))
		return a.admin.Run(gctx)
	})

	return g.Wait()
}
