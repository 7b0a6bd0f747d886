package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forumkita/marketpulse/internal/model"
	"github.com/forumkita/marketpulse/internal/store"
)

var servePort int

// analysisRunner is what the job server needs from the analyzer.
type analysisRunner interface {
	Run(ctx context.Context) (*model.RunReport, error)
}

// jobServer serializes analysis runs triggered over HTTP or by the schedule.
type jobServer struct {
	runner  analysisRunner
	store   store.Store
	token   string
	running atomic.Bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job server for scheduled and on-demand analysis runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		a, err := initAnalyzer(st)
		if err != nil {
			return err
		}

		js := &jobServer{runner: a, store: st, token: cfg.Server.Token}

		var scheduler *cron.Cron
		if cfg.Server.Schedule != "" {
			scheduler = cron.New()
			_, err := scheduler.AddFunc(cfg.Server.Schedule, func() {
				js.triggerRun(ctx, "schedule")
			})
			if err != nil {
				return eris.Wrap(err, "parse analysis schedule")
			}
			scheduler.Start()
			defer scheduler.Stop()
			zap.L().Info("analysis schedule active", zap.String("spec", cfg.Server.Schedule))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: js.router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func (js *jobServer) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(js.authenticate)

		r.Post("/jobs/market-analysis", js.handleTrigger)
		r.Get("/runs", js.handleListRuns)
		r.Get("/runs/{id}", js.handleGetRun)
		r.Get("/leases", js.handleListLeases)
		r.Delete("/leases/expired", js.handleDeleteExpiredLeases)
	})

	return r
}

// authenticate enforces the bearer token with a constant-time comparison.
func (js *jobServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		want := "Bearer " + js.token
		got := req.Header.Get("Authorization")
		if js.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (js *jobServer) handleTrigger(w http.ResponseWriter, req *http.Request) {
	if !js.running.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "analysis run already in progress"})
		return
	}

	// The run outlives the request; leases make overlap with other
	// instances safe regardless.
	go func() {
		defer js.running.Store(false)
		ctx, cancel := runTimeout(context.Background())
		defer cancel()
		js.runAnalysis(ctx, "api")
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// triggerRun is the scheduler entry point; it shares the single-flight guard
// with the HTTP trigger.
func (js *jobServer) triggerRun(ctx context.Context, source string) {
	if !js.running.CompareAndSwap(false, true) {
		zap.L().Info("analysis run already in progress, skipping scheduled trigger")
		return
	}
	defer js.running.Store(false)

	runCtx, cancel := runTimeout(ctx)
	defer cancel()
	js.runAnalysis(runCtx, source)
}

func (js *jobServer) runAnalysis(ctx context.Context, source string) {
	report, err := js.runner.Run(ctx)
	if err != nil {
		zap.L().Error("analysis run failed",
			zap.String("source", source),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("analysis run complete",
		zap.String("source", source),
		zap.String("run_id", report.ID),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
	)
}

func (js *jobServer) handleListRuns(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))

	runs, err := js.store.ListRuns(req.Context(), store.RunFilter{Limit: limit, Offset: offset})
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
		return
	}
	if runs == nil {
		runs = []model.RunReport{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (js *jobServer) handleGetRun(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")

	run, err := js.store.GetRun(req.Context(), id)
	if err != nil {
		zap.L().Error("get run failed", zap.String("run_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get run failed"})
		return
	}
	if run == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (js *jobServer) handleListLeases(w http.ResponseWriter, req *http.Request) {
	leases, err := js.store.ListLeases(req.Context())
	if err != nil {
		zap.L().Error("list leases failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list leases failed"})
		return
	}
	if leases == nil {
		leases = []store.Lease{}
	}
	writeJSON(w, http.StatusOK, leases)
}

func (js *jobServer) handleDeleteExpiredLeases(w http.ResponseWriter, req *http.Request) {
	n, err := js.store.DeleteExpiredLeases(req.Context())
	if err != nil {
		zap.L().Error("delete expired leases failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "delete expired leases failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
