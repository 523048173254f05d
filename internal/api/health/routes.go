// Package health provides the liveness, readiness and version endpoints.
package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/search-mirror/internal/api/common"
	"github.com/stacklok/search-mirror/internal/service"
	"github.com/stacklok/search-mirror/pkg/versions"
)

// Response is the body of the health and readiness endpoints
type Response struct {
	Status string `json:"status"`
}

// Router creates a router for the health check endpoints
func Router(svc service.MirrorService) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, Response{Status: "healthy"}, http.StatusOK)
}

func readinessHandler(svc service.MirrorService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteErrorResponse(w, "service not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, Response{Status: "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
