// Package metrics exposes Prometheus instrumentation for task execution,
// token accounting and the HTTP surface.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axiomhive_tasks_total",
		Help: "Total number of processed task submissions by final status.",
	}, []string{"status"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "axiomhive_tokens_total",
		Help: "Total number of tokens accounted for, by kind.",
	}, []string{"kind"})

	estimatedCostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "axiomhive_estimated_cost_total",
		Help: "Cumulative estimated cost across all executions.",
	})

	budgetHaltsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "axiomhive_budget_halts_total",
		Help: "Number of times execution halted because the budget was exhausted.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "axiomhive_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"handler", "method", "code"})
)

// ObserveTask records the terminal status of a processed submission together
// with the tokens and cost it consumed.
func ObserveTask(status string, promptTokens, completionTokens int, cost float64) {
	tasksTotal.WithLabelValues(status).Inc()
	if promptTokens > 0 {
		tokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		tokensTotal.WithLabelValues("completion").Add(float64(completionTokens))
	}
	if cost > 0 {
		estimatedCostTotal.Add(cost)
	}
}

// ObserveBudgetHalt counts a budget-exhaustion stop.
func ObserveBudgetHalt() {
	budgetHaltsTotal.Inc()
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpDuration.WithLabelValues(handler, method, strconv.Itoa(status)).Observe(duration.Seconds())
}

// Handler exposes the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
