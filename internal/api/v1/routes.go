// Package v1 provides the REST API handlers of the mirrored indices.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/search-mirror/internal/api/common"
	"github.com/stacklok/search-mirror/internal/service"
	"github.com/stacklok/search-mirror/internal/telemetry"
	"github.com/stacklok/search-mirror/pkg/mirror"
)

// ListResponse is the body of the index list
type ListResponse struct {
	Indexes []service.IndexStatus `json:"indexes"`
}

// Routes holds the handlers of the index API
type Routes struct {
	service service.MirrorService
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc service.MirrorService) *Routes {
	return &Routes{service: svc}
}

// Router creates the router mounted on /v1/indexes
func Router(svc service.MirrorService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()
	r.Get("/", routes.listIndexes)
	r.Route("/{index}", func(r chi.Router) {
		r.Get("/search", routes.search)
		r.Post("/sync", routes.sync)
		r.Get("/status", routes.status)
	})
	return r
}

// listIndexes handles GET /v1/indexes
func (rr *Routes) listIndexes(w http.ResponseWriter, r *http.Request) {
	list, err := rr.service.ListIndexes(r.Context())
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, ListResponse{Indexes: list}, http.StatusOK)
}

// search handles GET /v1/indexes/{index}/search. The request parameters are
// forwarded as search parameters, and the answer carries the origin of the
// hits when the index is mirrored.
func (rr *Routes) search(w http.ResponseWriter, r *http.Request) {
	name, err := common.URLParam(r, "index")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	q, err := common.SearchQuery(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := rr.service.Search(r.Context(), name, q)
	if err != nil {
		slog.WarnContext(r.Context(), "Search failed", "index", name, "error", err)
		common.WriteServiceError(w, err)
		return
	}
	if result.Origin != mirror.OriginNone {
		w.Header().Set(telemetry.OriginHeader, string(result.Origin))
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

// sync handles POST /v1/indexes/{index}/sync
func (rr *Routes) sync(w http.ResponseWriter, r *http.Request) {
	name, err := common.URLParam(r, "index")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := rr.service.Sync(r.Context(), name); err != nil {
		common.WriteServiceError(w, err)
		return
	}

	st, err := rr.service.Status(r.Context(), name)
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, st, http.StatusAccepted)
}

// status handles GET /v1/indexes/{index}/status
func (rr *Routes) status(w http.ResponseWriter, r *http.Request) {
	name, err := common.URLParam(r, "index")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := rr.service.Status(r.Context(), name)
	if err != nil {
		common.WriteServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, st, http.StatusOK)
}
