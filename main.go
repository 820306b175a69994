package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cordoba-data/program-dashboard/internal/config"
	"github.com/cordoba-data/program-dashboard/internal/dashboard"
	"github.com/cordoba-data/program-dashboard/internal/history"
	"github.com/cordoba-data/program-dashboard/internal/logging"
	"github.com/cordoba-data/program-dashboard/internal/middleware"
	"github.com/cordoba-data/program-dashboard/internal/telemetry"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.New()

	var store *history.Store
	if dsn := cfg.Database.URL.Value(); dsn != "" {
		if store, err = history.Open(dsn, log); err != nil {
			log.Warn("history disabled", zap.Error(err))
			store = nil
		} else {
			defer store.Close()
		}
	}

	srv := dashboard.Setup(ctx, cfg, log, metrics, store)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	r.Get("/", RootHandler)
	r.Get("/healthz", srv.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api", srv.SetupRoutes())

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("server listening",
		zap.String("port", cfg.Server.Port),
		zap.String("source", string(cfg.DataRepo.Source)),
		zap.Bool("configured", srv.Configured()),
		zap.Bool("history", store != nil))

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server stopped", zap.Error(err))
	}
}
