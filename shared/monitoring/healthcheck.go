package monitoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type HealthServer struct {
	monitor *Monitor
	metrics *Metrics
	server  *http.Server
	logger  *slog.Logger
}

func NewHealthServer(monitor *Monitor, metrics *Metrics, port int, logger *slog.Logger) *HealthServer {
	if port == 0 {
		port = 8080
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &HealthServer{
		monitor: monitor,
		metrics: metrics,
		logger:  logger,
	}
	h.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return h
}

// Handler routes /health, /status and /metrics
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/status", h.statusHandler)
	mux.Handle("/metrics", h.metrics.Handler())
	return mux
}

func (h *HealthServer) Start() {
	h.logger.Info("health server starting", "addr", h.server.Addr)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health server error", "error", err)
		}
	}()
}

func (h *HealthServer) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if h.monitor.IsHealthy() {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK - %s", h.monitor.GetStatusSummary())
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "Service unhealthy - %s", h.monitor.GetStatusSummary())
	}
}

func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s", h.monitor.GetStatusSummary())
}
