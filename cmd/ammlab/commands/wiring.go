package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"amm-lab/internal/artifact"
	"amm-lab/internal/config"
	"amm-lab/internal/domain"
	"amm-lab/internal/ledger"
	"amm-lab/internal/ledger/evm"
	"amm-lab/internal/ledger/simulated"
	"amm-lab/internal/observability"
	"amm-lab/internal/storage"
	chstore "amm-lab/internal/storage/clickhouse"
	"amm-lab/internal/storage/migrations"
	"amm-lab/internal/storage/postgres"
)

// closers runs cleanup functions in reverse order.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// newProvider selects the artifact source: prebuilt JSON artifacts, the
// embedded ABI-only artifacts in simulate mode, or solc.
func newProvider(cfg *config.Config) (artifact.Provider, error) {
	switch {
	case cfg.ArtifactsDir != "":
		return &artifact.FileProvider{Dir: cfg.ArtifactsDir}, nil
	case cfg.Simulate && cfg.ContractsDir == "":
		return artifact.EmbeddedProvider{}, nil
	default:
		return artifact.NewSourceProvider(artifact.NewSolcCompiler(cfg.SolcPath), cfg.ContractsDir)
	}
}

// newLedger connects to the configured node, or returns the in-memory chain.
func newLedger(ctx context.Context, cfg *config.Config, m *observability.Metrics, log *zap.Logger, cl *closers) (ledger.Ledger, error) {
	if cfg.Simulate {
		log.Info("using simulated ledger")
		return simulated.New(simulated.WithConfirmTimeout(cfg.ConfirmTimeout)), nil
	}

	rpc := evm.NewRPCClient(cfg.RPCURL, evm.WithObserver(m.RecordRPC))
	opts := []evm.Option{evm.WithLogger(log)}

	if cfg.WSURL != "" {
		heads, err := evm.SubscribeHeads(ctx, cfg.WSURL, nil, log)
		if err != nil {
			return nil, fmt.Errorf("subscribe to new heads: %w", err)
		}
		cl.add(func() { _ = heads.Close() })
		opts = append(opts, evm.WithHeads(heads.Heads()))
	}

	client, err := evm.NewClient(ctx, rpc, evm.Config{
		PrivateKey:     cfg.PrivateKey,
		ChainID:        cfg.ChainID,
		GasLimit:       cfg.GasLimit,
		ConfirmTimeout: cfg.ConfirmTimeout,
		PollInterval:   cfg.PollInterval,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.RPCURL, err)
	}
	return client, nil
}

// openStores connects the configured databases and applies migrations.
// Unconfigured stores stay nil.
func openStores(ctx context.Context, cfg *config.Config, m *observability.Metrics, log *zap.Logger, cl *closers) (storage.Stores, error) {
	var stores storage.Stores

	if cfg.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return stores, err
		}
		cl.add(pool.Close)
		pool.SetQueryObserver(func(op string, elapsed time.Duration, err error) {
			m.RecordDBQuery("postgres", op, elapsed, err)
		})

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return stores, fmt.Errorf("postgres migrations: %w", err)
		}
		stores.Runs = postgres.NewRunStore(pool)
		stores.Deployments = postgres.NewDeploymentStore(pool)
		stores.Swaps = postgres.NewSwapRecordStore(pool)
		log.Info("postgres connected")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return stores, fmt.Errorf("clickhouse migrations: %w", err)
		}
		cl.add(func() { _ = conn.Close() })
		stores.Analytics = &timedSink{sink: chstore.NewSwapSink(conn), metrics: m}
		log.Info("clickhouse connected")
	}

	return stores, nil
}

// timedSink records ClickHouse insert latency.
type timedSink struct {
	sink    storage.SwapSink
	metrics *observability.Metrics
}

func (s *timedSink) InsertBulk(ctx context.Context, records []*domain.SwapRecord) error {
	start := time.Now()
	err := s.sink.InsertBulk(ctx, records)
	s.metrics.RecordDBQuery("clickhouse", "insert_swap_records", time.Since(start), err)
	return err
}

// startMetricsServer serves /metrics and /health until the returned stop
// function is called.
func startMetricsServer(addr string, health observability.HealthFunc, log *zap.Logger) func() {
	srv := observability.NewServer(addr, health)
	go func() {
		log.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
