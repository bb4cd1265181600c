package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxpert/powder/admin"
	"github.com/maxpert/powder/cfg"
	"github.com/maxpert/powder/db"
	"github.com/maxpert/powder/id"
	"github.com/maxpert/powder/protocol"
	"github.com/maxpert/powder/protocol/query"
	"github.com/maxpert/powder/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout        = 30 * time.Second
	metricsInterval        = 15 * time.Second
	historyPruneInterval   = 10 * time.Minute
	adminReadHeaderTimeout = 10 * time.Second
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("Powder - warehouse emulator over SQLite")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	engine, err := db.OpenEngine(db.EngineOptionsFromConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open engine")
		return
	}
	defer engine.Close()

	var history *db.QueryHistory
	if cfg.Config.History.Enabled {
		history, err = db.OpenQueryHistory(cfg.HistoryPath())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open query history")
			return
		}
		defer history.Close()
	}

	pipeline, err := query.NewPipeline(cfg.Config.Pipeline.CacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create statement pipeline")
		return
	}

	srv, err := protocol.NewServer(engine, pipeline, history, id.NewClock(cfg.Config.NodeID), protocol.ServerOptions{
		Account:             cfg.Config.Server.Account,
		InlineWait:          time.Duration(cfg.Config.Server.InlineWaitMS) * time.Millisecond,
		MaxBodyBytes:        int64(cfg.Config.Server.MaxBodyMB) << 20,
		AutoCreateNamespace: cfg.Config.Session.AutoCreateNamespace,
		ValiditySeconds:     cfg.Config.Session.ValiditySeconds,
		FinishedQueries:     cfg.Config.Session.FinishedQueries,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create wire protocol server")
		return
	}

	collector := telemetry.NewMetricsCollector(srv, engine, metricsInterval)
	collector.Start()
	defer collector.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, srv, engine, history); err != nil {
		log.Error().Err(err).Msg("Powder stopped with error")
		return
	}
	log.Info().Msg("Powder stopped")
}

// run serves the wire and admin listeners with their background loops
// until ctx is done or one of them fails.
func run(ctx context.Context, srv *protocol.Server, engine *db.Engine, history *db.QueryHistory) error {
	wireAddr := fmt.Sprintf("%s:%d", cfg.Config.Server.BindAddress, cfg.Config.Server.Port)
	wireLn, err := net.Listen("tcp", wireAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", wireAddr, err)
	}

	var adminSrv *http.Server
	var adminLn net.Listener
	if cfg.Config.Admin.Enabled {
		adminAddr := fmt.Sprintf("%s:%d", cfg.Config.Admin.BindAddress, cfg.Config.Admin.Port)
		adminLn, err = net.Listen("tcp", adminAddr)
		if err != nil {
			wireLn.Close()
			return fmt.Errorf("failed to listen on %s: %w", adminAddr, err)
		}
		mux := http.NewServeMux()
		admin.RegisterRoutes(mux, admin.NewAdminHandlers(srv, engine), cfg.Config.Admin.Secret)
		adminSrv = &http.Server{Handler: mux, ReadHeaderTimeout: adminReadHeaderTimeout}
		if cfg.Config.Admin.Secret == "" {
			log.Warn().Msg("Admin secret is empty - admin endpoints are unauthenticated")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(wireLn)
	})

	if adminSrv != nil {
		g.Go(func() error {
			log.Info().Str("address", adminLn.Addr().String()).Msg("Admin server listening")
			if err := adminSrv.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		idle := time.Duration(cfg.Config.Session.IdleTimeoutSeconds) * time.Second
		interval := time.Duration(cfg.Config.Session.ReapIntervalSeconds) * time.Second
		return srv.RunReaper(gctx, idle, interval)
	})

	if history != nil && cfg.Config.History.RetentionHours > 0 {
		g.Go(func() error {
			retention := time.Duration(cfg.Config.History.RetentionHours) * time.Hour
			return history.RunPruner(gctx, retention, historyPruneInterval)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var err error
		if adminSrv != nil {
			err = adminSrv.Shutdown(shutdownCtx)
		}
		return errors.Join(err, srv.Shutdown(shutdownCtx))
	})

	log.Info().
		Str("wire", wireAddr).
		Bool("admin", adminSrv != nil).
		Bool("history", history != nil).
		Str("data_dir", cfg.Config.DataDir).
		Msg("Powder started")

	return g.Wait()
}
