package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/askframe/askframe/internal/demo"
	duckdbengine "github.com/askframe/askframe/internal/query/duckdb"
)

func main() {
	defaults := demo.DefaultConfig()
	out := flag.String("out", "events.csv", "output file; .parquet writes Parquet, anything else CSV")
	rows := flag.Int("rows", defaults.Rows, "number of events")
	seed := flag.Int64("seed", defaults.Seed, "random seed")
	users := flag.Int("users", defaults.UserCardinality, "distinct user ids")
	flag.Parse()

	cfg := defaults
	cfg.Rows, cfg.Seed, cfg.UserCardinality = *rows, *seed, *users
	tbl := demo.Events(cfg)
	if err := duckdbengine.Export(context.Background(), tbl, *out); err != nil {
		slog.Error("failed to write demo dataset", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Printf("wrote %d events to %s\n", tbl.NumRows(), *out)
}
