package query

import (
	"context"
	"time"

	"github.com/askframe/askframe/internal/table"
)

// Request runs SQL over in-memory tables, each exposed as a view under its map key.
type Request struct {
	SQL      string
	RowLimit int
	Tables   map[string]*table.Table
}

type Result struct {
	Table       *table.Table
	ScannedRows int
	Duration    time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
