package askframe

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/askframe/askframe/internal/codegen"
	"github.com/askframe/askframe/internal/config"
	"github.com/askframe/askframe/internal/dataset"
	"github.com/askframe/askframe/internal/dataset/postgres"
	"github.com/askframe/askframe/internal/demo"
	"github.com/askframe/askframe/internal/observability"
	"github.com/askframe/askframe/internal/pipeline"
	"github.com/askframe/askframe/internal/query"
	duckdbengine "github.com/askframe/askframe/internal/query/duckdb"
	"github.com/askframe/askframe/internal/render"
	s3store "github.com/askframe/askframe/internal/storage/s3"
	"github.com/askframe/askframe/internal/table"
)

type GeneratorFactory func(ctx context.Context, cfg config.Config) (codegen.Generator, error)

type Options struct {
	Lookup       config.LookupFunc
	Stdin        io.Reader
	Stdout       io.Writer
	Stderr       io.Writer
	NewGenerator GeneratorFactory
	Engine       query.Engine
}

type flags struct {
	file       string
	object     string
	pgQuery    string
	demoRows   int
	question   string
	envFile    string
	figureDir  string
	showPrompt bool
	strict     bool
}

// Run loads one dataset, then answers the question given on the command line
// or, without one, every non-empty line read from stdin.
func Run(ctx context.Context, args []string, opts Options) int {
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("askframe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f flags
	fs.StringVar(&f.file, "file", "", "local CSV or Parquet dataset")
	fs.StringVar(&f.object, "object", "", "object-store key of the dataset (requires ASKFRAME_OBJECTSTORE_*)")
	fs.StringVar(&f.pgQuery, "pg-query", "", "SQL run against ASKFRAME_POSTGRES_DSN to produce the dataset")
	fs.IntVar(&f.demoRows, "demo", 0, "use N synthetic storefront events as the dataset")
	fs.StringVar(&f.question, "question", "", "question to answer; read from stdin when empty")
	fs.StringVar(&f.envFile, "env", "", "additional .env file consulted after the environment")
	fs.StringVar(&f.figureDir, "figure-dir", "", "directory for figure PNGs (default: temp dir)")
	fs.BoolVar(&f.showPrompt, "show-prompt", false, "print the prompt sent to the model")
	fs.BoolVar(&f.strict, "strict", false, "reject model responses without a code fence")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if f.question == "" && fs.NArg() > 0 {
		f.question = strings.Join(fs.Args(), " ")
	}
	if countSources(f) != 1 {
		_, _ = fmt.Fprintln(stderr, "exactly one of -file, -object, -pg-query or -demo is required")
		fs.Usage()
		return 2
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	if f.envFile != "" {
		withFile, err := config.ReadDotEnv(f.envFile, lookup)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		lookup = withFile
	}
	cfg, err := config.Load("askframe", lookup)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	if f.strict {
		cfg.Sandbox.StrictFence = true
	}
	logger := observability.NewLogger(cfg, stderr)

	newGenerator := opts.NewGenerator
	if newGenerator == nil {
		newGenerator = codegen.New
	}
	generator, err := newGenerator(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	tbl, err := loadTable(ctx, cfg, f)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load dataset: %v\n", err)
		return 1
	}
	logger.Info("dataset loaded", slog.Int("rows", tbl.NumRows()), slog.Int("columns", tbl.NumColumns()))

	engine := opts.Engine
	if engine == nil {
		engine = duckdbengine.NewEngine()
	}
	analyst, err := pipeline.NewAnalyst(cfg, generator, engine, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	terminal := render.NewTerminal(stdout, f.figureDir)
	writeDataset(stdout, tbl, cfg.Dataset.PreviewRows)

	if f.question != "" {
		if !answer(ctx, analyst, terminal, tbl, f.question, f.showPrompt) {
			return 1
		}
		return 0
	}

	stdin := opts.Stdin
	if stdin == nil {
		return 0
	}
	failed := false
	scanner := bufio.NewScanner(stdin)
	_, _ = fmt.Fprint(stdout, "question> ")
	for scanner.Scan() {
		if question := strings.TrimSpace(scanner.Text()); question != "" {
			if !answer(ctx, analyst, terminal, tbl, question, f.showPrompt) {
				failed = true
			}
		}
		_, _ = fmt.Fprint(stdout, "question> ")
	}
	_, _ = fmt.Fprintln(stdout)
	if failed {
		return 1
	}
	return 0
}

func answer(ctx context.Context, analyst *pipeline.Analyst, terminal *render.Terminal, tbl *table.Table, question string, showPrompt bool) bool {
	outcome := analyst.Run(ctx, pipeline.Request{Table: tbl, Question: question})
	if showPrompt && outcome.Prompt != "" {
		terminal.RenderCode(outcome.Prompt)
	}
	if outcome.Code != "" {
		terminal.RenderCode(outcome.Code)
	}
	if failure := outcome.Failure; failure != nil {
		terminal.RenderFailure(string(failure.Stage), string(failure.Kind), failure.Err.Error(), failure.Trace)
		return false
	}
	if _, err := terminal.Render(outcome.Report); err != nil {
		terminal.RenderFailure(string(pipeline.StageClassify), string(pipeline.KindRender), err.Error(), "")
		return false
	}
	return true
}

func countSources(f flags) int {
	count := 0
	if f.demoRows > 0 {
		count++
	}
	for _, source := range []string{f.file, f.object, f.pgQuery} {
		if strings.TrimSpace(source) != "" {
			count++
		}
	}
	return count
}

func loadTable(ctx context.Context, cfg config.Config, f flags) (*table.Table, error) {
	loader := dataset.NewLoader(cfg.Dataset.MaxUploadBytes)
	switch {
	case f.demoRows > 0:
		events := demo.DefaultConfig()
		events.Rows = f.demoRows
		return demo.Events(events), nil
	case f.file != "":
		return loader.LoadFile(ctx, f.file)
	case f.object != "":
		store, err := s3store.New(s3store.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return loader.LoadObject(ctx, store, f.object)
	default:
		db, err := postgres.Open(ctx, postgres.DBConfig{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		defer func() { _ = db.Close() }()
		return postgres.NewSource(db, cfg.Postgres.MaxRows).Load(ctx, f.pgQuery)
	}
}

func writeDataset(w io.Writer, tbl *table.Table, previewRows int) {
	_, _ = fmt.Fprintln(w, "Columns:")
	for _, line := range table.Describe(tbl).Lines() {
		_, _ = fmt.Fprintln(w, "  "+line)
	}
	_, _ = fmt.Fprintln(w, render.TableString(tbl.Head(previewRows)))
	if shown := tbl.Head(previewRows).NumRows(); shown < tbl.NumRows() {
		_, _ = fmt.Fprintf(w, "showing %d of %d rows\n", shown, tbl.NumRows())
	}
}
