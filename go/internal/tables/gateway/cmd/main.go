package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/tabletimer/go/internal/tables"
	"github.com/mcdev12/tabletimer/go/internal/tables/config"
	"github.com/mcdev12/tabletimer/go/internal/tables/gateway"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Err(err).Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Int("tables", cfg.TableCount).
		Dur("duration", cfg.TableDuration).
		Dur("tick_interval", cfg.TickInterval).
		Str("port", cfg.Port).
		Msg("starting table gateway")

	clock := clockwork.NewRealClock()
	registry := tables.NewRegistry(cfg.TableCount, cfg.TableDuration, clock.Now())
	app := tables.NewApp(registry, clock, nil)
	reconciler := tables.NewReconciler(app, clock, cfg.TickInterval, cfg.AnchorRefresh)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConnectionConfig.ReportRejections = cfg.ReportRejections
	gatewayConfig.MirrorConfig.URL = cfg.NATSURL
	gatewayConfig.MirrorConfig.Subject = cfg.NATSSubject

	gatewayService := gateway.NewService(gatewayConfig, app)

	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		stats := gatewayService.GetStats()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":"table-gateway","version":%q,"tables":%d,"connections":%d}`,
			version, cfg.TableCount, stats["total_connections"])
	})

	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
		log.Info().Str("dir", cfg.StaticDir).Msg("serving static files")
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     h2c.NewHandler(gateway.CORSMiddleware(mux), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go reconciler.Run(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()

	// Give the connection manager time to send close frames
	time.Sleep(500 * time.Millisecond)

	log.Info().Msg("table gateway shutdown complete")
}
