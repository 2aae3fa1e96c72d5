// espd -- RFC 4303 ESP datagram engine daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/espd/internal/config"
	"github.com/dantte-lp/espd/internal/esp"
	espmetrics "github.com/dantte-lp/espd/internal/metrics"
	"github.com/dantte-lp/espd/internal/netio"
	"github.com/dantte-lp/espd/internal/sa"
	appversion "github.com/dantte-lp/espd/internal/version"
)

// shutdownTimeout is the maximum time to wait for the metrics HTTP server
// to drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("espd starting",
		slog.String("version", appversion.Version),
		slog.String("transport_addr", cfg.Transport.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("sa_count", len(cfg.SAs)),
	)

	reg := prometheus.NewRegistry()
	collector := espmetrics.NewCollector(reg)

	mgr := sa.NewManager(logger, sa.WithManagerMetrics(collector))

	if err := installConfiguredSAs(cfg, mgr, logger); err != nil {
		logger.Error("failed to install configured security associations",
			slog.String("error", err.Error()),
		)
		return 1
	}

	if err := runServers(cfg, mgr, collector, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("espd exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("espd stopped")
	return 0
}

// runServers binds the ESP transport and metrics HTTP server and runs them
// under an errgroup with a signal-aware context, shutting down gracefully
// on SIGINT/SIGTERM and reloading SA configuration on SIGHUP.
func runServers(
	cfg *config.Config,
	mgr *sa.Manager,
	collector *espmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	conn, err := netio.NewESPConn(cfg.Transport.Addr)
	if err != nil {
		return fmt.Errorf("bind esp transport: %w", err)
	}
	defer conn.Close()

	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	recv := netio.NewReceiver(mgr, localInboundHandler(logger), collector, logger)
	g.Go(func() error {
		recv.Run(gCtx, conn)
		return nil
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, mgr, logger)
		return nil
	})

	logger.Info("espd ready")

	g.Go(func() error {
		<-gCtx.Done()
		// Closing the socket unblocks the receiver's pending read so that
		// Run sees the cancelled context and returns.
		_ = conn.Close()
		return gracefulShutdown(gCtx, logger, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// localInboundHandler returns the handler invoked for every datagram the
// receiver decrypts successfully. Delivery to a tun device or local
// application is out of scope for this engine (see SPEC_FULL.md Non-goals);
// the recovered inner packet is logged at debug level and discarded.
func localInboundHandler(logger *slog.Logger) netio.InboundHandler {
	return func(pkt *esp.Packet) {
		inner := pkt.GetPayload()
		if inner == nil {
			return
		}
		logger.Debug("inbound datagram decrypted and recovered",
			slog.Int("inner_bytes", len(inner.Encoding())),
			slog.String("src", pkt.Src.Addr.String()),
		)
	}
}

// -------------------------------------------------------------------------
// SA Installation — config load / SIGHUP reload
// -------------------------------------------------------------------------

// installConfiguredSAs builds and installs every SA named in cfg.SAs.
func installConfiguredSAs(cfg *config.Config, mgr *sa.Manager, logger *slog.Logger) error {
	for i, sc := range cfg.SAs {
		spi, dir, entry, err := sa.BuildFromConfig(sc)
		if err != nil {
			return fmt.Errorf("sas[%d]: %w", i, err)
		}
		if err := mgr.Install(spi, dir, entry); err != nil {
			return fmt.Errorf("sas[%d]: %w", i, err)
		}
	}
	logger.Info("security associations installed", slog.Int("count", mgr.Count()))
	return nil
}

// handleSIGHUP listens for SIGHUP and reconciles the SA directory against a
// freshly loaded configuration file. Errors are logged; the previous
// directory contents remain in effect.
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	mgr *sa.Manager,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, mgr, logger)
		}
	}
}

func reloadConfig(configPath string, logLevel *slog.LevelVar, mgr *sa.Manager, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)
	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)

	desired := make([]sa.Entry, 0, len(newCfg.SAs))
	for _, sc := range newCfg.SAs {
		spi, dir, entry, err := sa.BuildFromConfig(sc)
		if err != nil {
			logger.Error("invalid sa config during reload, skipping",
				slog.String("spi", sc.SPI),
				slog.String("error", err.Error()),
			)
			continue
		}
		desired = append(desired, sa.Entry{SPI: spi, Direction: dir, SA: entry})
	}

	installed, removed := mgr.Reconcile(desired)
	logger.Info("sa reconciliation complete",
		slog.Int("installed", installed),
		slog.Int("removed", removed),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
