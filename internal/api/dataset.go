package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/askframe/askframe/internal/auth"
	"github.com/askframe/askframe/internal/config"
	"github.com/askframe/askframe/internal/dataset"
	"github.com/askframe/askframe/internal/storage"
	"github.com/askframe/askframe/internal/table"
)

// multipartOverhead leaves room for form fields next to the file part.
const multipartOverhead = 1 << 20

type datasetRequest struct {
	ObjectKey string `json:"object_key"`
	Question  string `json:"question"`
	SQL       string `json:"sql"`
}

type requestError struct {
	status    int
	code      string
	message   string
	retryable bool
	details   error
}

func (e *requestError) write(w http.ResponseWriter, r *http.Request) {
	var extra map[string]any
	if e.details != nil {
		extra = map[string]any{"details": e.details.Error()}
	}
	writeError(r.Context(), w, e.status, e.code, e.message, e.retryable, extra)
}

// readDataset accepts either a multipart upload (file plus form fields) or a
// JSON body naming an object-store key, and returns the loaded table.
func readDataset(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request, role string) (*table.Table, datasetRequest, *requestError) {
	var req datasetRequest
	if err := auth.RequireRole(r, role); err != nil {
		return nil, req, &requestError{status: http.StatusForbidden, code: "FORBIDDEN", message: err.Error()}
	}
	if deps.Datasets == nil {
		return nil, req, &requestError{status: http.StatusNotImplemented, code: "DATASETS_NOT_CONFIGURED", message: "dataset loader is not configured"}
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		limit := cfg.Dataset.MaxUploadBytes
		if limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		}
		if err := r.ParseMultipartForm(multipartOverhead); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, req, &requestError{status: http.StatusRequestEntityTooLarge, code: "DATASET_TOO_LARGE", message: fmt.Sprintf("upload exceeds %d bytes", limit)}
			}
			return nil, req, &requestError{status: http.StatusBadRequest, code: "INVALID_MULTIPART", message: "invalid multipart body", details: err}
		}
		req.Question = r.FormValue("question")
		req.SQL = r.FormValue("sql")

		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, req, &requestError{status: http.StatusBadRequest, code: "FILE_REQUIRED", message: "multipart field \"file\" is required"}
		}
		defer func() { _ = file.Close() }()

		tbl, err := deps.Datasets.LoadReader(r.Context(), header.Filename, file)
		if err != nil {
			return nil, req, datasetError(err)
		}
		return tbl, req, nil
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return nil, req, &requestError{status: http.StatusBadRequest, code: "INVALID_JSON", message: "invalid request body", details: err}
	}
	if strings.TrimSpace(req.ObjectKey) == "" {
		return nil, req, &requestError{status: http.StatusBadRequest, code: "DATASET_REQUIRED", message: "upload a file or set object_key"}
	}
	if deps.ObjectStore == nil {
		return nil, req, &requestError{status: http.StatusNotImplemented, code: "OBJECT_STORE_NOT_CONFIGURED", message: "object store is not configured"}
	}
	tbl, err := deps.Datasets.LoadObject(r.Context(), deps.ObjectStore, req.ObjectKey)
	if err != nil {
		return nil, req, datasetError(err)
	}
	return tbl, req, nil
}

func datasetError(err error) *requestError {
	switch {
	case errors.Is(err, dataset.ErrTooLarge):
		return &requestError{status: http.StatusRequestEntityTooLarge, code: "DATASET_TOO_LARGE", message: "dataset exceeds size limit", details: err}
	case errors.Is(err, storage.ErrObjectNotFound):
		return &requestError{status: http.StatusNotFound, code: "OBJECT_NOT_FOUND", message: "dataset object not found", details: err}
	default:
		return &requestError{status: http.StatusBadRequest, code: "DATASET_INVALID", message: "failed to read dataset", details: err}
	}
}
