package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
	Long: `Serves a small API for scheduled runs:

  GET  /healthz          liveness probe
  POST /v1/runs          trigger a full pulse run (409 while one is in flight)
  GET  /v1/pulse/latest  the most recently generated pulse`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		mux := buildMux(ctx, env, semaphore.NewWeighted(1))
		return startServer(ctx, mux, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildMux assembles the trigger API. The weighted semaphore holds the
// single run slot: a trigger that cannot take it immediately is rejected
// with 409 rather than queued, because a pulse run is idempotent over its
// window and the caller is a scheduler that will come back.
func buildMux(runCtx context.Context, env *pipelineEnv, running *semaphore.Weighted) *chi.Mux {
	if running == nil {
		running = semaphore.NewWeighted(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/runs", func(w http.ResponseWriter, _ *http.Request) {
		if !running.TryAcquire(1) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a run is already in progress"})
			return
		}

		// The run outlives the request; it is bound to the server
		// lifetime so shutdown cancels it.
		go func() {
			defer running.Release(1)
			if env == nil || env.Pipeline == nil {
				return
			}
			run, _, err := env.Pipeline.Run(runCtx)
			if err != nil {
				zap.L().Error("triggered run failed", zap.Error(err))
				return
			}
			zap.L().Info("triggered run complete",
				zap.String("run_id", run.ID),
				zap.Int("classified", run.Stats.Classified),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	r.Get("/v1/pulse/latest", func(w http.ResponseWriter, req *http.Request) {
		if env == nil || env.Store == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
			return
		}

		pulse, err := env.Store.LatestPulse(req.Context())
		if err != nil {
			zap.L().Error("latest pulse lookup failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
			return
		}
		if pulse == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no pulse generated yet"})
			return
		}
		writeJSON(w, http.StatusOK, pulse)
	})

	return r
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// resolvePort prefers the flag value over the configured one.
func resolvePort(flag, fromConfig int) int {
	if flag != 0 {
		return flag
	}
	return fromConfig
}

// startServer runs the HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}

	return nil
}
