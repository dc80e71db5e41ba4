package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/pawnbridge/internal/bridge"
	"github.com/signalsfoundry/pawnbridge/internal/config"
	"github.com/signalsfoundry/pawnbridge/internal/journal"
	"github.com/signalsfoundry/pawnbridge/internal/logging"
	"github.com/signalsfoundry/pawnbridge/internal/observability"
	"github.com/signalsfoundry/pawnbridge/internal/sim/world"
	"github.com/signalsfoundry/pawnbridge/timectrl"
)

const shutdownTimeout = 5 * time.Second

// flagOverrides holds command-line values that win over file and environment.
type flagOverrides struct {
	listenAddr  string
	metricsAddr string
	journalDir  string
	pawns       int
	seed        int64
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	listenAddr := flag.String("listen", "", "TCP address the pawn bridge listens on (default :5000)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics")
	journalDir := flag.String("journal-dir", "", "Directory for the compressed command journal")
	pawns := flag.Int("pawns", -1, "Number of pawns in the reference world")
	seed := flag.Int64("seed", 0, "Seed for the reference world")
	accelerated := flag.Bool("accelerated", false, "Run ticks as fast as possible instead of on tick_interval")
	flag.Parse()

	cfg, err := loadConfig(*configPath, os.Getenv, flagOverrides{
		listenAddr:  *listenAddr,
		metricsAddr: *metricsAddr,
		journalDir:  *journalDir,
		pawns:       *pawns,
		seed:        *seed,
	})
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx := context.Background()
	if err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}

	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, mode, log, nil); err != nil {
		log.Error(ctx, "pawnbridge exited", logging.Err(err))
		stop()
		os.Exit(1)
	}
}

// loadConfig layers defaults, the optional file, the environment and flags,
// then validates the result.
func loadConfig(path string, getenv func(string) string, flags flagOverrides) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return cfg, err
	}
	if flags.listenAddr != "" {
		cfg.ListenAddr = flags.listenAddr
	}
	if flags.metricsAddr != "" {
		cfg.MetricsAddr = flags.metricsAddr
	}
	if flags.journalDir != "" {
		cfg.JournalDir = flags.journalDir
	}
	if flags.pawns >= 0 {
		cfg.World.Pawns = flags.pawns
	}
	if flags.seed != 0 {
		cfg.World.Seed = flags.seed
	}
	return cfg, cfg.Validate()
}

// run serves until ctx is cancelled. ready, when set, receives the bound
// bridge address once the listener is up.
func run(ctx context.Context, cfg config.Config, mode timectrl.Mode, log logging.Logger, ready func(net.Addr)) error {
	collector, err := observability.NewBridgeCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("initialise metrics collector: %w", err)
	}
	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)
	defer shutdownMetrics(metricsSrv)

	tracing := observability.TracingConfigFromEnv()
	tracing.ListenAddr = cfg.ListenAddr
	tracing.WorldPawns = cfg.World.Pawns
	tracing.TickInterval = cfg.TickInterval
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logging.Err(err))
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	opts := []bridge.Option{
		bridge.WithLogger(log.With(logging.String("component", "bridge"))),
		bridge.WithMetrics(collector),
	}
	if cfg.JournalDir != "" {
		j := journal.Open(cfg.JournalDir, cfg.JournalQueue, log)
		defer func() {
			if err := j.Close(); err != nil {
				log.Warn(context.Background(), "journal close failed", logging.Err(err))
			}
		}()
		opts = append(opts, bridge.WithJournal(j))
		log.Info(ctx, "journaling applied commands", logging.String("dir", cfg.JournalDir))
	}

	w := world.NewRandom(cfg.World.Pawns, cfg.World.Seed,
		world.WithObserveInterval(cfg.ObserveInterval),
		world.WithLogger(log.With(logging.String("component", "world"))),
	)
	b, err := bridge.New(w, cfg.Bridge(), opts...)
	if err != nil {
		return err
	}
	w.RegisterHooks(b)

	if err := b.Start(ctx); err != nil {
		return err
	}
	if ready != nil {
		ready(b.Addr())
	}

	tc := timectrl.NewTickController(cfg.TickInterval, mode)
	tc.AddListener(func(tick uint64) { w.Step(ctx, tick) })
	simDone := tc.Start(ctx)

	log.Info(ctx, "pawnbridge running",
		logging.String("addr", b.Addr().String()),
		logging.Int("pawns", cfg.World.Pawns),
		logging.Duration("tick_interval", cfg.TickInterval),
	)

	<-ctx.Done()
	<-simDone
	log.Info(context.Background(), "shutting down pawnbridge", logging.Uint64("tick", tc.Tick()))

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := b.Stop(stopCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("stop bridge: %w", err)
		}
		log.Warn(stopCtx, "connections still open at shutdown", logging.Err(err))
	}
	return nil
}

func serveMetrics(addr string, collector *observability.BridgeCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func shutdownMetrics(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
