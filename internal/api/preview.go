package api

import (
	"net/http"

	"github.com/askframe/askframe/internal/auth"
	"github.com/askframe/askframe/internal/config"
	"github.com/askframe/askframe/internal/render"
	"github.com/askframe/askframe/internal/table"
)

type previewResponse struct {
	Schema    table.Schema           `json:"schema"`
	Columns   []render.PayloadColumn `json:"columns"`
	Rows      [][]any                `json:"rows"`
	TotalRows int                    `json:"total_rows"`
}

func handlePreview(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	tbl, _, reqErr := readDataset(cfg, deps, w, r, auth.RoleViewer)
	if reqErr != nil {
		reqErr.write(w, r)
		return
	}

	columns, rows := render.TableJSON(tbl.Head(cfg.Dataset.PreviewRows))
	writeJSON(w, http.StatusOK, previewResponse{
		Schema:    table.Describe(tbl),
		Columns:   columns,
		Rows:      rows,
		TotalRows: tbl.NumRows(),
	})
}
