package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"SwapLedger/internal/bridge"
	"SwapLedger/internal/config"
	"SwapLedger/internal/core"
	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/ledgerclient"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/persistence"
	"SwapLedger/internal/query"
	"SwapLedger/internal/server"
	"SwapLedger/internal/store"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the exchange",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := observability.NewLogger("swapledger")
	log.Info().Str("data_dir", cfg.DataDir).Msg("starting")

	// --- Observability ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)
	healthChecker := observability.NewHealthChecker()

	// --- Ledger store ---
	st, err := store.Open(cfg.DataDir, store.Options{Logger: observability.NewLogger("store")})
	if err != nil {
		return err
	}
	defer st.Close()

	// --- Postgres audit log ---
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := persistence.NewMigrator(db, persistence.MigrationSource(cfg.Postgres.MigrationsPath), observability.NewLogger("migrator"))
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL, observability.NewLogger("nats"))
	if err != nil {
		return err
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js, log); err != nil {
		return err
	}
	if cfg.NATS.PublishTxs {
		if err := ingestion.EnsureTxStream(ctx, js, log); err != nil {
			return err
		}
	}

	// --- Settlement collaborators ---
	settlement := &core.Settlement{
		Native: ledgerclient.New(nc, cfg.NATS.LedgerPrefix, cfg.NATS.LedgerAccount, observability.NewLogger("ledgerclient")),
	}
	var adapter *bridge.Adapter
	if cfg.Solana.Enabled {
		adapter, err = bridge.New(cfg.BridgeConfig(), st, metrics, observability.NewLogger("bridge"))
		if err != nil {
			return fmt.Errorf("solana bridge: %w", err)
		}
		settlement.Bridge = adapter
		healthChecker.AddCheck("solana", adapter.Check)
		if err := adapter.RefreshBlockhash(ctx); err != nil {
			log.Warn().Err(err).Msg("initial blockhash fetch failed, refresher will retry")
		}
	}

	// --- Engine ---
	persistChan := make(chan ledger.Tx, cfg.Audit.ChannelSize)
	var publishChan chan ledger.Tx
	if cfg.NATS.PublishTxs {
		publishChan = make(chan ledger.Tx, cfg.Audit.ChannelSize)
	}
	engine, err := core.NewEngine(cfg.EngineConfig(), core.Deps{
		Store:       st,
		Settlement:  settlement,
		Metrics:     metrics,
		Logger:      observability.NewLogger("engine"),
		PersistChan: persistChan,
		PublishChan: publishChan,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	// --- Audit worker, catching up on Txs finalized before the last crash ---
	auditWorker := persistence.NewAuditWorker(db, persistChan, st,
		cfg.Audit.BatchSize, cfg.Audit.FlushTimeout, metrics, observability.NewLogger("audit"))
	backfilled, err := auditWorker.Backfill(ctx, st, persistence.NewAuditWatermark(db))
	if err != nil {
		return fmt.Errorf("audit backfill: %w", err)
	}
	if backfilled > 0 {
		log.Info().Int("txs", backfilled).Msg("audit log backfilled")
	}

	// --- Deposit ingestion ---
	rawEvents := make(chan ingestion.RawEvent, cfg.Workers.DepositBuffer)
	subscriber := ingestion.NewNATSSubscriber(js, rawEvents, observability.NewLogger("deposits"))
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		return err
	}
	defer subscriber.Stop()
	ingestor := ingestion.NewDepositIngestor(rawEvents, st, metrics, observability.NewLogger("deposits"))

	// --- Servers ---
	queries := query.NewQueryService(st, db)
	api := server.NewAPI(server.APIDeps{
		Engine:      engine,
		Store:       st,
		Queries:     queries,
		Auth:        server.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Admins),
		Checkpoints: persistence.NewCheckpointManager(db, cfg.CheckpointDir, observability.NewLogger("checkpoint")),
		Deposits:    ingestion.NewManualInjector(rawEvents),
		StuckAfter:  cfg.Engine.StuckAfter,
		Metrics:     metrics,
		Logger:      observability.NewLogger("api"),
	})
	srv, err := server.NewServer(cfg.GRPC.Addr, cfg.HTTP.Addr, server.ServerDeps{
		API:           api,
		HealthChecker: healthChecker,
		Gatherer:      reg,
		ReadTimeout:   cfg.HTTP.ReadTimeout,
		WriteTimeout:  cfg.HTTP.WriteTimeout,
		Logger:        observability.NewLogger("server"),
	})
	if err != nil {
		return err
	}

	healthChecker.AddCheck("postgres", db.PingContext)
	healthChecker.AddCheck("nats", func(context.Context) error {
		if status := nc.Status(); status != nats.CONNECTED {
			return fmt.Errorf("nats %s", status)
		}
		return nil
	})
	healthChecker.AddCheck("store", func(context.Context) error {
		if st.Maintenance() {
			return ledger.ErrMaintenance
		}
		return nil
	})

	// --- Goroutines ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return auditWorker.Run(gctx) })
	g.Go(func() error { return ingestor.Run(gctx) })
	if publishChan != nil {
		publisher := ingestion.NewTxPublisher(js, publishChan, observability.NewLogger("publisher"))
		g.Go(func() error { return publisher.Run(gctx) })
	}
	g.Go(func() error {
		engine.RunStatsRefresher(gctx, cfg.Workers.StatsInterval)
		return nil
	})
	g.Go(func() error {
		engine.RunStuckDetector(gctx, cfg.Workers.StuckInterval)
		return nil
	})
	if adapter != nil {
		g.Go(func() error {
			adapter.RunBlockhashRefresher(gctx, cfg.Solana.BlockhashEvery)
			return nil
		})
	}
	g.Go(func() error { return srv.StartGRPC(gctx) })
	g.Go(func() error { return srv.StartHTTP(gctx) })

	healthChecker.SetReady(true)
	srv.SetServing(true)
	log.Info().Str("http", cfg.HTTP.Addr).Str("grpc", cfg.GRPC.Addr).Msg("ready")

	err = g.Wait()
	healthChecker.SetReady(false)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("stopped")
	return nil
}
