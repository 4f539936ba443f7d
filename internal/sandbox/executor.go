package sandbox

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/askframe/askframe/internal/figure"
	"github.com/askframe/askframe/internal/query"
	"github.com/askframe/askframe/internal/table"
)

const (
	scriptName = "generated.py"
	runKey     = "askframe.run"
	inputName  = "_local_df"
)

var (
	ErrLoadNotAllowed     = errors.New("load statements are not allowed")
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

type Config struct {
	// Timeout cancels a run that is still executing; zero disables it.
	Timeout time.Duration
	// MaxSteps bounds the interpreter's step count; zero disables it.
	MaxSteps       uint64
	MaxOutputBytes int
	// Engine backs df.query and pd.merge. Nil leaves them unavailable.
	Engine query.Engine
}

type Executor struct {
	cfg Config
}

func New(cfg Config) *Executor {
	return &Executor{cfg: cfg}
}

// Result is what a successful run leaves behind.
type Result struct {
	Stdout    string
	Truncated bool
	Bindings  starlark.StringDict
	Figure    *figure.Figure
	Steps     uint64
	Duration  time.Duration
}

// Lookup returns a top-level binding. A name bound to None is still bound.
func (r Result) Lookup(name string) (starlark.Value, bool) {
	value, ok := r.Bindings[name]
	return value, ok
}

// ExecutionError reports any failure of generated code: syntax, forbidden
// names, runtime errors, cancellation and host panics.
type ExecutionError struct {
	Err       error
	Backtrace string
}

func (e *ExecutionError) Error() string {
	return "execute generated code: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// run is the per-execution state builtins reach through the thread.
type run struct {
	ctx    context.Context
	figure *figure.Figure
	engine query.Engine
}

func currentRun(thread *starlark.Thread) *run {
	r, _ := thread.Local(runKey).(*run)
	return r
}

type outputBuffer struct {
	b         strings.Builder
	limit     int
	truncated bool
}

func (o *outputBuffer) writeLine(line string) {
	if o.truncated {
		return
	}
	line += "\n"
	if o.limit > 0 && o.b.Len()+len(line) > o.limit {
		o.b.WriteString(strings.ToValidUTF8(line[:o.limit-o.b.Len()], ""))
		o.truncated = true
		return
	}
	o.b.WriteString(line)
}

// Check parses code and verifies it references only capabilities.
func Check(code string) error {
	f, err := fileOptions.Parse(scriptName, code, 0)
	if err != nil {
		return err
	}
	for _, stmt := range f.Stmts {
		if _, ok := stmt.(*syntax.LoadStmt); ok {
			return ErrLoadNotAllowed
		}
	}
	return resolve.File(f, isCapability, isAllowedUniversal)
}

// Execute runs code against a private copy of tbl. The caller's table is
// never handed to the interpreter.
func (e *Executor) Execute(ctx context.Context, code string, tbl *table.Table) (result Result, err error) {
	started := time.Now()
	if tbl == nil {
		tbl = &table.Table{}
	}
	if err := Check(code); err != nil {
		return Result{}, &ExecutionError{Err: err, Backtrace: err.Error()}
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	r := &run{ctx: ctx, figure: figure.New(), engine: e.cfg.Engine}
	ns := newNamespace(r, tbl)
	predeclared := make(starlark.StringDict, len(ns.Globals)+1)
	for name, value := range ns.Globals {
		predeclared[name] = value
	}
	predeclared[inputName] = ns.Locals[dfName]

	f, err := fileOptions.Parse(scriptName, code, 0)
	if err != nil {
		return Result{}, &ExecutionError{Err: err, Backtrace: err.Error()}
	}
	// Bind df as a module global so generated code can rebind it.
	start := syntax.MakePosition(&f.Path, 1, 1)
	f.Stmts = append([]syntax.Stmt{&syntax.AssignStmt{
		OpPos: start,
		Op:    syntax.EQ,
		LHS:   &syntax.Ident{NamePos: start, Name: dfName},
		RHS:   &syntax.Ident{NamePos: start, Name: inputName},
	}}, f.Stmts...)
	prog, err := starlark.FileProgram(f, predeclared.Has)
	if err != nil {
		return Result{}, &ExecutionError{Err: err, Backtrace: err.Error()}
	}

	output := &outputBuffer{limit: e.cfg.MaxOutputBytes}
	thread := &starlark.Thread{
		Name:  "askframe",
		Print: func(_ *starlark.Thread, msg string) { output.writeLine(msg) },
	}
	thread.SetLocal(runKey, r)
	if e.cfg.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(e.cfg.MaxSteps)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	defer func() {
		if p := recover(); p != nil {
			result = Result{}
			err = &ExecutionError{Err: fmt.Errorf("host panic: %v", p), Backtrace: string(debug.Stack())}
		}
	}()

	globals, err := prog.Init(thread, predeclared)
	if err != nil {
		return Result{}, e.executionError(ctx, thread, err)
	}
	return Result{
		Stdout:    output.b.String(),
		Truncated: output.truncated,
		Bindings:  globals,
		Figure:    r.figure,
		Steps:     thread.ExecutionSteps(),
		Duration:  time.Since(started),
	}, nil
}

func (e *Executor) executionError(ctx context.Context, thread *starlark.Thread, err error) *ExecutionError {
	backtrace := err.Error()
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		backtrace = evalErr.Backtrace()
	}
	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	case e.cfg.MaxSteps > 0 && thread.ExecutionSteps() >= e.cfg.MaxSteps:
		err = fmt.Errorf("%w (%d steps): %v", ErrStepBudgetExceeded, e.cfg.MaxSteps, err)
	}
	return &ExecutionError{Err: err, Backtrace: backtrace}
}
