package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/jobs"
	"github.com/sells-group/prequal-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the application HTTP API",
	Long:  "Serves application lifecycle endpoints for the form frontend: create applications, trigger fetches, read status, complete and sync.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		tc, err := jobs.Dial(ctx, cfg.Temporal)
		if err != nil {
			return err
		}
		defer tc.Close()
		starter := jobs.NewStarter(tc, cfg)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
			AllowCredentials: true,
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/applications", func(r chi.Router) {
			r.Post("/", handleCreate(e))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handleGet(e))
				r.Post("/fetch", handleFetch(e, starter))
				r.Post("/complete", handleComplete(e, starter))
				r.Post("/sync", handleSync(starter))
			})
		})

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", serverPort()),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", serverPort()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func serverPort() int {
	if servePort != 0 {
		return servePort
	}
	return cfg.Server.Port
}

func handleCreate(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			CompanyID string `json:"company_id"`
			Name      string `json:"name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.CompanyID == "" {
			writeErr(w, http.StatusBadRequest, "company_id is required")
			return
		}

		app := &model.Application{CompanyID: body.CompanyID, Name: body.Name}
		if err := e.Store.CreateApplication(req.Context(), app); err != nil {
			zap.L().Error("create application", zap.Error(err))
			writeErr(w, http.StatusInternalServerError, "create failed")
			return
		}
		writeJSON(w, http.StatusCreated, app)
	}
}

func handleGet(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		app, err := e.Store.GetApplication(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeErr(w, http.StatusNotFound, "application not found")
			return
		}
		writeJSON(w, http.StatusOK, app)
	}
}

func handleFetch(e *env, starter *jobs.Starter) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		app, err := e.Store.GetApplication(ctx, chi.URLParam(req, "id"))
		if err != nil {
			writeErr(w, http.StatusNotFound, "application not found")
			return
		}
		if app.Finalized() {
			writeErr(w, http.StatusConflict, "application already completed")
			return
		}

		var body struct {
			Provider string `json:"provider"`
		}
		// Empty body means fetch everything.
		_ = json.NewDecoder(req.Body).Decode(&body)

		var runID string
		if body.Provider != "" {
			runID, err = starter.StartFetch(ctx, jobs.FetchInput{
				ApplicationID: app.ID,
				CompanyID:     app.CompanyID,
				Provider:      body.Provider,
			})
		} else {
			runID, err = starter.StartFetchAll(ctx, jobs.FetchAllInput{
				ApplicationID: app.ID,
				CompanyID:     app.CompanyID,
				Providers:     e.Runner.Providers(),
			})
		}
		if err != nil {
			zap.L().Error("enqueue fetch", zap.String("application_id", app.ID), zap.Error(err))
			writeErr(w, http.StatusBadGateway, "enqueue failed")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
	}
}

func handleComplete(e *env, starter *jobs.Starter) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		id := chi.URLParam(req, "id")
		if err := e.Store.CompleteApplication(ctx, id); err != nil {
			writeErr(w, http.StatusNotFound, "application not found")
			return
		}
		runID, err := starter.StartSync(ctx, jobs.SyncInput{ApplicationID: id})
		if err != nil {
			zap.L().Error("enqueue sync", zap.String("application_id", id), zap.Error(err))
			writeErr(w, http.StatusBadGateway, "completed, but sync enqueue failed")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
	}
}

func handleSync(starter *jobs.Starter) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		runID, err := starter.StartSync(req.Context(), jobs.SyncInput{ApplicationID: id})
		if err != nil {
			zap.L().Error("enqueue sync", zap.String("application_id", id), zap.Error(err))
			writeErr(w, http.StatusBadGateway, "enqueue failed")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
