package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weatherdash/internal/dataapi"
)

// RegisterDataAPI mounts the data API at /graphql.
func RegisterDataAPI(mux *http.ServeMux, api *dataapi.Server, allowOrigin string) {
	h := withCORS(allowOrigin, "OPTIONS,POST", api)
	mux.Handle("POST /graphql", h)
	mux.Handle("OPTIONS /graphql", h)
}

// RegisterMetrics exposes g in the Prometheus text format.
func RegisterMetrics(mux *http.ServeMux, g prometheus.Gatherer) {
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
