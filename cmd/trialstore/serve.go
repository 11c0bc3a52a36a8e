package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	collectionhandler "trialstore/internal/collection/handler"
	"trialstore/internal/collection/jobs"
	jwttoken "trialstore/internal/jwt_token"
	"trialstore/internal/platform/httpserver"
	"trialstore/internal/platform/metrics"
	"trialstore/internal/platform/middleware"
	schemahandler "trialstore/internal/schema/handler"
	"trialstore/pkg/platform/httputil"
)

// operatorAudience is the aud claim of operator tokens.
const operatorAudience = "trialstore-api"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return withApp(cmd, func(_ context.Context, a *app) error {
			return serve(ctx, a)
		})
	},
}

func serve(ctx context.Context, a *app) error {
	runner := jobs.NewRunner(a.service, a.cfg.Migration.JobQueueSize,
		jobs.WithResults(a.analytics),
		jobs.WithLogger(a.logger),
	)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.ErrorContext(ctx, "migration runner stopped", "error", err)
		}
	}()

	httpMetrics := metrics.New()
	var validator middleware.OperatorValidator
	if a.cfg.Server.OperatorSigningKey != "" {
		jwtService := jwttoken.NewJWTService(a.cfg.Server.OperatorSigningKey, a.cfg.Server.OperatorIssuer, operatorAudience)
		validator = jwttoken.NewJWTServiceAdapter(jwtService)
	} else {
		a.logger.WarnContext(ctx, "operator_signing_key unset; context changes and migrations are unauthenticated")
	}
	guard := middleware.RequireOperator(validator, jwttoken.RoleOperator, httpMetrics, a.logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestContext(time.Now))
	r.Use(middleware.Observe(httpMetrics, a.logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(a.cfg.Server.APIPrefix, func(r chi.Router) {
		schemahandler.New(a.registry, a.logger).Register(r)
		collectionhandler.New(a.service, runner, a.logger, guard).Register(r)
	})

	writeTimeout := max(a.cfg.Server.RequestTimeout, a.cfg.Migration.Timeout) + 5*time.Second
	srv := httpserver.New(a.cfg.Server.Addr, r, writeTimeout)

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting trialstore", "addr", a.cfg.Server.Addr, "api_prefix", a.cfg.Server.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down", "timeout", a.cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-runnerDone
	return nil
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]string, len(a.checks))
	for name, check := range a.checks {
		if err := check(r.Context()); err != nil {
			a.logger.WarnContext(r.Context(), "health check failed", "component", name, "error", err)
			components[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}
	httputil.WriteJSON(w, status, map[string]any{
		"components":     components,
		"active_context": a.registry.ActiveContext(),
		"tracing":        a.tracing.Enabled(),
	})
}
