package main

import (
	"net/http"

	"github.com/angeloszaimis/sdn-load-balancer/internal/handler"
	"github.com/angeloszaimis/sdn-load-balancer/internal/metrics"
)

func setupRouter(adminHandler *handler.AdminHandler, metricsCollector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /assignments", adminHandler.Assignments)
	mux.HandleFunc("GET /assignments/{flow_key}", adminHandler.Assignment)
	mux.HandleFunc("GET /policy", adminHandler.Policy)
	mux.HandleFunc("GET /health", adminHandler.Health)
	mux.HandleFunc("GET /stats", metricsCollector.Handler())
	mux.Handle("GET /metrics", metricsCollector.PrometheusHandler())

	return mux
}
