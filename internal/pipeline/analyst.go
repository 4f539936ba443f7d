package pipeline

import (
	"log/slog"

	"github.com/askframe/askframe/internal/codegen"
	"github.com/askframe/askframe/internal/config"
	"github.com/askframe/askframe/internal/extract"
	"github.com/askframe/askframe/internal/prompt"
	"github.com/askframe/askframe/internal/query"
	"github.com/askframe/askframe/internal/render"
	"github.com/askframe/askframe/internal/sandbox"
)

// NewAnalyst wires an Analyst from resolved configuration. engine backs
// df.query and pd.merge inside the sandbox and may be nil.
func NewAnalyst(cfg config.Config, generator codegen.Generator, engine query.Engine, logger *slog.Logger) (*Analyst, error) {
	builder, err := prompt.LoadFile(cfg.AI.PromptTemplateFile)
	if err != nil {
		return nil, err
	}
	policy := extract.PolicyLenient
	if cfg.Sandbox.StrictFence {
		policy = extract.PolicyStrict
	}
	return &Analyst{
		Prompt:    builder,
		Generator: generator,
		Policy:    policy,
		Executor: sandbox.New(sandbox.Config{
			Timeout:        cfg.Sandbox.Timeout,
			MaxSteps:       cfg.Sandbox.MaxSteps,
			MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
			Engine:         engine,
		}),
		Render: render.Options{
			PreviewRows:  cfg.Dataset.PreviewRows,
			FigureWidth:  cfg.Sandbox.FigureWidth,
			FigureHeight: cfg.Sandbox.FigureHeight,
		},
		Logger: logger,
	}, nil
}
