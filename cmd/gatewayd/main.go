package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/documentdb/gatewaygw/internal/admin"
	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/certs"
	"github.com/documentdb/gatewaygw/internal/config"
	"github.com/documentdb/gatewaygw/internal/dynconfig"
	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/metrics"
	"github.com/documentdb/gatewaygw/internal/server"
)

func main() {
	configPath := flag.String("config", "configs/gatewayd.yaml", "path to configuration file")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	log.Info("documentdb gateway starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log.Info("configuration loaded", "path", *configPath, "listen_port", cfg.Listen.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	hook := searchPathHook(cfg.Catalog, cfg.Timeouts.Command, cfg.Timeouts.Transaction)
	pools, err := backend.NewManager(ctx, cfg.Endpoint(), cfg.SystemCredential(), hook, log)
	if err != nil {
		log.Error("failed to initialize backend pools", "error", err)
		os.Exit(1)
	}

	certProvider, err := certs.NewProvider(cfg.CertOptions(), log)
	if err != nil {
		log.Error("failed to load TLS certificate", "error", err)
		os.Exit(1)
	}
	defer certProvider.Close()

	dynCfg := dynconfig.New()
	systemClient := backend.NewClient(pools.System(), cfg.Catalog)
	go dynconfig.Watch(ctx, systemClient, dynCfg, cfg.DynamicConfig.RefreshInterval)

	svc := gwcontext.NewServiceContext(ctx, pools, cfg.Catalog, dynCfg,
		cfg.Timeouts.Cursor, cfg.Timeouts.Transaction, cfg.Timeouts.Command, cfg.BlockedRolePrefixes)

	gatewayServer := server.NewServer(svc, certProvider, m, log)
	if err := gatewayServer.Listen(cfg.Listen.Host, cfg.Listen.Port); err != nil {
		log.Error("failed to start gateway listener", "error", err)
		os.Exit(1)
	}

	adminServer := admin.NewServer(pools, m, cfg.Listen)
	if err := adminServer.Start(cfg.Listen.AdminPort); err != nil {
		log.Error("failed to start admin server", "error", err)
		os.Exit(1)
	}

	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		log.Info("configuration reloaded")
	})
	if err != nil {
		log.Warn("config hot-reload not available", "error", err)
	}

	log.Info("documentdb gateway ready", "port", cfg.Listen.Port, "admin_port", cfg.Listen.AdminPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig.String())

	if configWatcher != nil {
		configWatcher.Stop()
	}
	adminServer.Stop()
	gatewayServer.Stop()
	pools.Close()

	log.Info("documentdb gateway stopped")
}

// searchPathHook builds the PostCreateHook every physical connection runs
// once, right after it is established: pin the session to the gateway's
// schema and arm the two statement timeouts spec.md's "Pool entry" section
// names, using the catalog's configured template rather than a hard-coded
// statement so an operator can repoint it.
func searchPathHook(catalog backend.Catalog, commandTimeout, transactionTimeout time.Duration) backend.PostCreateHook {
	return func(ctx context.Context, conn *pgx.Conn) error {
		stmt := fmt.Sprintf(catalog.SetSearchPathAndTimeout,
			fmt.Sprintf("'%dms'", commandTimeout.Milliseconds()),
			fmt.Sprintf("'%dms'", transactionTimeout.Milliseconds()))
		_, err := conn.Exec(ctx, stmt)
		return err
	}
}
