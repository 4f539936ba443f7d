package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/askframe/askframe/internal/auth"
	"github.com/askframe/askframe/internal/config"
	"github.com/askframe/askframe/internal/query"
	duckdbengine "github.com/askframe/askframe/internal/query/duckdb"
	"github.com/askframe/askframe/internal/render"
	"github.com/askframe/askframe/internal/table"
)

// queryTableName is the view name an uploaded dataset gets, matching the
// name generated code sees.
const queryTableName = "df"

type queryResponse struct {
	Columns     []render.PayloadColumn `json:"columns"`
	Rows        [][]any                `json:"rows"`
	ScannedRows int                    `json:"scanned_rows"`
	DurationMs  int64                  `json:"duration_ms"`
}

// handleQuery runs read-only SQL directly against an uploaded dataset. It
// shares the engine that backs df.query inside generated code.
func handleQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return
	}
	tbl, req, reqErr := readDataset(cfg, deps, w, r, auth.RoleViewer)
	if reqErr != nil {
		reqErr.write(w, r)
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if !duckdbengine.IsReadOnlySQL(req.SQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", false, nil)
		return
	}

	result, err := deps.QueryEngine.Execute(r.Context(), query.Request{
		SQL:      req.SQL,
		RowLimit: cfg.Dataset.PreviewRows,
		Tables:   map[string]*table.Table{queryTableName: tbl},
	})
	if err != nil {
		if errors.Is(r.Context().Err(), context.Canceled) {
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}
	columns, rows := render.TableJSON(result.Table)
	writeJSON(w, http.StatusOK, queryResponse{
		Columns:     columns,
		Rows:        rows,
		ScannedRows: result.ScannedRows,
		DurationMs:  result.Duration.Milliseconds(),
	})
}
