package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/webanalysis-engine/internal/delivery/http/handler"
	"github.com/user/webanalysis-engine/internal/delivery/http/middleware"
)

func New(h *handler.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.HandleHealthCheck)

	mux.HandleFunc("POST /api/v1/runs", h.HandleStartRun)
	mux.HandleFunc("GET /api/v1/runs/{run_id}", h.HandleGetRun)
	mux.HandleFunc("GET /api/v1/runs/{run_id}/status", h.HandleRunStatus)
	mux.HandleFunc("GET /api/v1/runs/{run_id}/parent-child", h.HandleGetParentChild)
	mux.HandleFunc("GET /api/v1/runs/{run_id}/source", h.HandleGetSource)
	mux.HandleFunc("GET /api/v1/runs/{run_id}/link", h.HandleGetLinkDetail)
	mux.HandleFunc("GET /api/v1/runs/{run_id}/path-stats", h.HandleGetPathStats)
	mux.HandleFunc("DELETE /api/v1/runs/{run_id}", h.HandleDeleteRun)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Apply middlewares
	var chainedHandler http.Handler = mux
	chainedHandler = middleware.Metrics(chainedHandler)
	chainedHandler = middleware.Logging(chainedHandler)

	return chainedHandler
}
