package api

import (
	"net/http"

	"github.com/askframe/askframe/internal/auth"
	"github.com/askframe/askframe/internal/storage"
)

type listDatasetsResponse struct {
	Prefix   string                  `json:"prefix"`
	Datasets []storage.DatasetObject `json:"datasets"`
}

// handleListDatasets lists the dataset files that /v1/ask and friends accept
// as object_key.
func handleListDatasets(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := auth.RequireRole(r, auth.RoleViewer); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	if deps.ObjectStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "OBJECT_STORE_NOT_CONFIGURED", "object store is not configured", false, nil)
		return
	}
	prefix := r.URL.Query().Get("prefix")
	datasets, err := deps.ObjectStore.List(r.Context(), prefix)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_FAILED", "listing datasets failed", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, listDatasetsResponse{Prefix: prefix, Datasets: datasets})
}
