package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chaingraph/chaingraph-backend/internal/graph/bitcoin"
	"github.com/chaingraph/chaingraph-backend/internal/graph/checkpoint"
	"github.com/chaingraph/chaingraph-backend/internal/graph/neo4j"
	"github.com/chaingraph/chaingraph-backend/internal/graph/service/importer"
	"github.com/chaingraph/chaingraph-backend/internal/metrics"
)

type config struct {
	Neo4jURI       string        `long:"neo4j-uri" env:"IMPORTER_NEO4J_URI" description:"Neo4j bolt URI" default:"bolt://localhost:7687"`
	Neo4jUser      string        `long:"neo4j-user" env:"IMPORTER_NEO4J_USER" description:"Neo4j username" default:"neo4j"`
	Neo4jPassword  string        `long:"neo4j-password" env:"IMPORTER_NEO4J_PASSWORD" description:"Neo4j password"`
	RPCURL         string        `long:"rpc-url" env:"IMPORTER_RPC_URL" description:"Bitcoin RPC URL" default:"http://127.0.0.1:8332"`
	RPCUser        string        `long:"rpc-user" env:"IMPORTER_RPC_USER" description:"Bitcoin RPC username"`
	RPCPassword    string        `long:"rpc-password" env:"IMPORTER_RPC_PASSWORD" description:"Bitcoin RPC password"`
	RPCRateLimit   int           `long:"rpc-rate-limit" env:"IMPORTER_RPC_RATE_LIMIT" description:"max RPC calls per second, 0 disables pacing" default:"0"`
	Network        string        `long:"network" env:"IMPORTER_NETWORK" description:"bitcoin network name" default:"mainnet"`
	Mode           string        `long:"mode" env:"IMPORTER_MODE" description:"import mode (continuous or range)" default:"continuous"`
	StartHeight    uint64        `long:"start-height" env:"IMPORTER_START_HEIGHT" description:"height below which blocks are assumed present" default:"0"`
	EndHeight      uint64        `long:"end-height" env:"IMPORTER_END_HEIGHT" description:"inclusive final height in range mode" default:"0"`
	BatchSize      uint64        `long:"batch-size" env:"IMPORTER_BATCH_SIZE" description:"blocks per checkpoint commit" default:"100"`
	PollInterval   time.Duration `long:"poll-interval" env:"IMPORTER_POLL_INTERVAL" description:"how often to poll for new blocks at the tip" default:"1m"`
	FetchWorkers   int           `long:"fetch-workers" env:"IMPORTER_FETCH_WORKERS" description:"parallel block fetch workers per batch" default:"8"`
	CheckpointPath string        `long:"checkpoint-file" env:"IMPORTER_CHECKPOINT_FILE" description:"path of the checkpoint state file" default:"state/importer.json"`
	MetricsAddr    string        `long:"metrics-addr" env:"IMPORTER_METRICS_ADDR" description:"address for metrics server" default:":2112"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("graph importer failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	startMetricsServer(ctx, cfg.MetricsAddr, logger)

	repo, err := neo4j.NewRepository(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, metrics.NewGraphStore())
	if err != nil {
		return fmt.Errorf("init graph repository: %w", err)
	}
	defer func() {
		_ = repo.Close(context.Background())
	}()
	if err := repo.Ping(ctx); err != nil {
		return err
	}

	rpcClient, err := newRPCClient(cfg.RPCURL, cfg.RPCUser, cfg.RPCPassword)
	if err != nil {
		return fmt.Errorf("init rpc client: %w", err)
	}
	defer func() {
		rpcClient.Shutdown()
		rpcClient.WaitForShutdown()
	}()
	rpc := bitcoin.NewRPCClient(rpcClient, metrics.NewRPCClient(), cfg.RPCRateLimit)

	decoder, err := bitcoin.NewDecoder(cfg.Network)
	if err != nil {
		return fmt.Errorf("init decoder: %w", err)
	}
	source := bitcoin.NewSource(rpc, decoder)

	checkpoints, err := checkpoint.NewFileStore(cfg.CheckpointPath)
	if err != nil {
		return fmt.Errorf("init checkpoint store: %w", err)
	}

	svc, err := importer.NewService(
		importer.Config{
			StartHeight:  cfg.StartHeight,
			EndHeight:    cfg.EndHeight,
			Mode:         importer.Mode(cfg.Mode),
			BatchSize:    cfg.BatchSize,
			PollInterval: cfg.PollInterval,
			FetchWorkers: cfg.FetchWorkers,
		},
		source,
		repo,
		checkpoints,
		metrics.NewImporter(),
		logger,
	)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}

func newRPCClient(rawURL, user, password string) (*rpcclient.Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse rpc url: %w", err)
	}
	if parsed.Scheme != "http" {
		return nil, fmt.Errorf("rpc url scheme %q not supported, use http", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("rpc url missing host")
	}

	cfg := &rpcclient.ConnConfig{
		Host:         parsed.Host,
		User:         user,
		Pass:         password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	return rpcclient.New(cfg, nil)
}
