package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/goodnatureofminers/incomed/internal/bitcoin"
	"github.com/goodnatureofminers/incomed/internal/chain"
	"github.com/goodnatureofminers/incomed/internal/config"
	"github.com/goodnatureofminers/incomed/internal/ledger"
	"github.com/goodnatureofminers/incomed/internal/limiter"
	"github.com/goodnatureofminers/incomed/internal/metrics"
	"github.com/goodnatureofminers/incomed/internal/model"
	"github.com/goodnatureofminers/incomed/internal/price"
	"github.com/goodnatureofminers/incomed/internal/progress"
	"github.com/goodnatureofminers/incomed/internal/retry"
	"github.com/goodnatureofminers/incomed/internal/service/syncer"
	"github.com/goodnatureofminers/incomed/internal/shutdown"
	"github.com/goodnatureofminers/incomed/internal/sink/csvexport"
	"github.com/goodnatureofminers/incomed/internal/sink/taxledger"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type settings struct {
	DataDir       string        `long:"data-dir" env:"INCOMED_DATA_DIR" description:"directory for progress, ledger and csv files" default:"./data"`
	AddressesFile string        `long:"addresses-file" env:"INCOMED_ADDRESSES_FILE" description:"YAML file with the tracked address rules" required:"true"`
	Network       model.Network `long:"network" env:"INCOMED_NETWORK" description:"network name" default:"mainnet"`
	StartHeight   uint64        `long:"start-height" env:"INCOMED_START_HEIGHT" description:"lowest height to scan"`

	RPCURL       string        `long:"rpc-url" env:"INCOMED_RPC_URL" description:"Bitcoin RPC URL" default:"http://127.0.0.1:8332"`
	RPCUser      string        `long:"rpc-user" env:"INCOMED_RPC_USER" description:"Bitcoin RPC username"`
	RPCPassword  string        `long:"rpc-password" env:"INCOMED_RPC_PASSWORD" description:"Bitcoin RPC password"`
	BlockMinTime time.Duration `long:"block-min-time" env:"INCOMED_BLOCK_MIN_TIME" description:"minimum time between block requests" default:"0s"`
	ZMQBlockAddr string        `long:"zmq-block-addr" env:"INCOMED_ZMQ_BLOCK_ADDR" description:"bitcoind zmqpubhashblock endpoint (zmq builds only)"`
	PollInterval time.Duration `long:"poll-interval" env:"INCOMED_POLL_INTERVAL" description:"how often the chain tip is polled while live tailing" default:"30s"`
	RetryDelay   time.Duration `long:"retry-delay" env:"INCOMED_RETRY_DELAY" description:"pause before resuming after a failed iteration" default:"30s"`

	PriceAPIURL       string        `long:"price-api-url" env:"INCOMED_PRICE_API_URL" description:"CryptoCompare API base URL" default:"https://min-api.cryptocompare.com"`
	PriceAPIKey       string        `long:"price-api-key" env:"INCOMED_PRICE_API_KEY" description:"CryptoCompare API key"`
	PriceSymbol       string        `long:"price-symbol" env:"INCOMED_PRICE_SYMBOL" description:"symbol priced and reported" default:"BTC"`
	PriceMinTime      time.Duration `long:"price-min-time" env:"INCOMED_PRICE_MIN_TIME" description:"minimum time between price requests" default:"500ms"`
	PriceMinuteWindow time.Duration `long:"price-minute-window" env:"INCOMED_PRICE_MINUTE_WINDOW" description:"age below which minute prices are used" default:"166h40m"`

	TaxEnabled   bool          `long:"tax" env:"INCOMED_TAX" description:"record income in bitcoin.tax"`
	TaxAPIURL    string        `long:"tax-api-url" env:"INCOMED_TAX_API_URL" description:"bitcoin.tax API base URL" default:"https://api.bitcoin.tax"`
	TaxAPIKey    string        `long:"tax-api-key" env:"INCOMED_TAX_API_KEY" description:"bitcoin.tax API key"`
	TaxAPISecret string        `long:"tax-api-secret" env:"INCOMED_TAX_API_SECRET" description:"bitcoin.tax API secret"`
	TaxMinTime   time.Duration `long:"tax-min-time" env:"INCOMED_TAX_MIN_TIME" description:"minimum time between bitcoin.tax requests" default:"500ms"`

	HTTPTimeout   time.Duration `long:"http-timeout" env:"INCOMED_HTTP_TIMEOUT" description:"HTTP timeout for price and tax requests" default:"30s"`
	RetryAttempts uint64        `long:"retry-attempts" env:"INCOMED_RETRY_ATTEMPTS" description:"attempts per network call" default:"5"`

	LedgerDriver   ledger.Driver `long:"ledger-driver" env:"INCOMED_LEDGER_DRIVER" description:"ledger backend" choice:"sqlite" choice:"postgres" default:"sqlite"`
	LedgerDSN      string        `long:"ledger-dsn" env:"INCOMED_LEDGER_DSN" description:"postgres URL or sqlite file (default <data-dir>/ledger.db)"`
	SkipMigrations bool          `long:"skip-migrations" env:"INCOMED_SKIP_MIGRATIONS" description:"do not apply ledger migrations on start"`

	ShutdownGrace time.Duration `long:"shutdown-grace" env:"INCOMED_SHUTDOWN_GRACE" description:"time allowed for in-flight commits on shutdown" default:"10s"`
	MetricsAddr   string        `long:"metrics-addr" env:"INCOMED_METRICS_ADDR" description:"address for metrics server" default:":2112"`
	LogJSON       bool          `long:"log-json" env:"INCOMED_LOG_JSON" description:"log JSON lines"`
}

func main() {
	cfg := settings{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// Restore default handling so a second signal kills the process.
		stop()
	}()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogJSON)
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.RPCURL == "" {
		logger.Fatal("rpc url is required")
	}
	if cfg.PriceAPIKey == "" {
		logger.Fatal("price API key is required")
	}
	if cfg.TaxEnabled && (cfg.TaxAPIKey == "" || cfg.TaxAPISecret == "") {
		logger.Fatal("bitcoin.tax key and secret are required when --tax is set")
	}

	if err := run(ctx, cfg, logger); err != nil {
		var fatal *syncer.FatalError
		switch {
		case errors.As(err, &fatal):
			logger.Error(fatal.Remediation())
		case errors.Is(err, shutdown.ErrGraceExceeded):
			logger.Warn("exited before the engine stopped; reconcile the ledger with the tax ledger and csv files before restarting")
		}
		logger.Fatal("incomed failed", zap.Error(err))
	}
}

func newLogger(json bool) (*zap.Logger, error) {
	if json {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(ctx context.Context, cfg settings, logger *zap.Logger) error {
	rules, err := config.LoadRules(cfg.AddressesFile, cfg.Network)
	if err != nil {
		return err
	}
	logger.Info("loaded address rules", zap.Int("rules", len(rules)), zap.String("network", string(cfg.Network)))

	store, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close ledger", zap.Error(err))
		}
	}()

	csv := csvexport.NewSink(filepath.Join(cfg.DataDir, "income"), logger.Named("csv"))
	if err := csv.Prepare(rules); err != nil {
		return fmt.Errorf("prepare csv files: %w", err)
	}

	rpcClient, err := bitcoin.Dial(cfg.RPCURL, cfg.RPCUser, cfg.RPCPassword)
	if err != nil {
		return fmt.Errorf("init rpc client: %w", err)
	}
	rpc := bitcoin.NewRPCClient(rpcClient, metrics.NewRPCClient(cfg.Network))
	defer rpc.Close()

	decoder, err := bitcoin.NewScriptDecoder(cfg.Network)
	if err != nil {
		return err
	}
	policy := retryPolicy(cfg.RetryAttempts)
	source := chain.NewLimitedSource(
		bitcoin.NewBlockSource(rpc, decoder, logger.Named("bitcoin")),
		limiter.New("block", cfg.BlockMinTime, metrics.NewLimiter("block")),
		policy,
		logger.Named("source"),
	)

	clk := clock.NewDefaultClock()
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	resolver, err := price.NewResolver(price.Config{
		BaseURL:      cfg.PriceAPIURL,
		APIKey:       cfg.PriceAPIKey,
		Symbol:       cfg.PriceSymbol,
		MinuteWindow: cfg.PriceMinuteWindow,
		Retry:        policy,
	}, httpClient, limiter.New("price", cfg.PriceMinTime, metrics.NewLimiter("price")), clk, metrics.NewHTTPClient("price"), logger.Named("price"))
	if err != nil {
		return fmt.Errorf("init price resolver: %w", err)
	}

	coord := shutdown.NewCoordinator(clk, cfg.ShutdownGrace, logger.Named("shutdown"))
	blockSignal, err := startBlockSignal(ctx, cfg.ZMQBlockAddr, logger.Named("zmq"))
	if err != nil {
		return err
	}

	deps := syncer.Dependencies{
		Source:      source,
		Resolver:    resolver,
		CSV:         csv,
		Ledger:      store,
		Progress:    progress.NewStore(cfg.DataDir),
		Coordinator: coord,
		Metrics:     metrics.NewSyncer(),
		BlockSignal: blockSignal,
	}
	if cfg.TaxEnabled {
		tax, err := taxledger.NewSink(taxledger.Config{
			BaseURL:   cfg.TaxAPIURL,
			APIKey:    cfg.TaxAPIKey,
			APISecret: cfg.TaxAPISecret,
			Symbol:    cfg.PriceSymbol,
			Retry:     policy,
		}, httpClient, limiter.New("tax", cfg.TaxMinTime, metrics.NewLimiter("tax")), metrics.NewHTTPClient("tax"), logger.Named("tax"))
		if err != nil {
			return fmt.Errorf("init tax ledger: %w", err)
		}
		deps.Tax = tax
	}

	engine, err := syncer.NewEngine(syncer.Config{
		StartHeight:  cfg.StartHeight,
		PollInterval: cfg.PollInterval,
		RetryDelay:   cfg.RetryDelay,
	}, rules, deps, logger.Named("syncer"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveMetrics(gctx, cfg.MetricsAddr, logger)
	})
	g.Go(func() error {
		return engine.Run(gctx)
	})

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown requested, waiting for in-flight commits", zap.Int("in_flight", coord.InFlight()))
	coord.RequestQuit()
	if err := coord.Drain(); err != nil {
		return err
	}

	// Node calls take no context; closing the client fails the queued ones.
	rpc.Close()
	select {
	case err := <-done:
		return err
	case <-clk.TickAfter(cfg.ShutdownGrace):
		return fmt.Errorf("engine still blocked after drain: %w", shutdown.ErrGraceExceeded)
	}
}

func openLedger(ctx context.Context, cfg settings, logger *zap.Logger) (*ledger.Store, error) {
	dsn := cfg.LedgerDSN
	if dsn == "" && cfg.LedgerDriver == ledger.DriverSQLite {
		dsn = filepath.Join(cfg.DataDir, ledger.DefaultFileName)
	}
	store, err := ledger.Open(ctx, ledger.Config{
		Driver:         cfg.LedgerDriver,
		DSN:            dsn,
		SkipMigrations: cfg.SkipMigrations,
	}, metrics.NewLedger(string(cfg.LedgerDriver)), logger.Named("ledger"))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, nil
}

func retryPolicy(attempts uint64) retry.Policy {
	policy := retry.DefaultPolicy()
	if attempts > 0 {
		policy.MaxAttempts = attempts
	}
	return policy
}

// serveMetrics exposes /metrics until ctx ends. A listen failure is logged and does not stop the daemon.
func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
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
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()

	logger.Info("starting metrics server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
	return nil
}
