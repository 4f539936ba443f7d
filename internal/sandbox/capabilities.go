package sandbox

import (
	"sort"

	"go.starlark.net/starlark"

	"github.com/askframe/askframe/internal/table"
)

// capabilityTable lists every host-provided global. Each entry builds a
// fresh value for one run, so no mutable state survives between runs.
var capabilityTable = map[string]func(r *run) starlark.Value{
	"sum":   func(*run) starlark.Value { return builtin("sum", pySum) },
	"round": func(*run) starlark.Value { return builtin("round", pyRound) },
	"pd":    func(*run) starlark.Value { return newPandas() },
	"plt":   newPyplot,
	"sns":   func(*run) starlark.Value { return newSeaborn() },
}

// allowedUniversal is the subset of the interpreter's own builtins generated
// code may reference. getattr, hasattr, dir, type, fail and friends are not in
// it and are rejected before execution.
var allowedUniversal = map[string]bool{
	"None":      true,
	"True":      true,
	"False":     true,
	"abs":       true,
	"all":       true,
	"any":       true,
	"bool":      true,
	"dict":      true,
	"enumerate": true,
	"float":     true,
	"int":       true,
	"len":       true,
	"list":      true,
	"max":       true,
	"min":       true,
	"print":     true,
	"range":     true,
	"reversed":  true,
	"set":       true,
	"sorted":    true,
	"str":       true,
	"tuple":     true,
	"zip":       true,
}

// dfName is the binding generated code sees the table under.
const dfName = "df"

// Namespace is what one run's code can see: Globals from the capability
// table and Locals holding the private table copy.
type Namespace struct {
	Globals starlark.StringDict
	Locals  starlark.StringDict
}

func newNamespace(r *run, tbl *table.Table) Namespace {
	globals := make(starlark.StringDict, len(capabilityTable))
	for name, build := range capabilityTable {
		globals[name] = build(r)
	}
	return Namespace{
		Globals: globals,
		Locals:  starlark.StringDict{dfName: NewDataFrame(tbl.Clone())},
	}
}

// Capabilities returns every name generated code may reference, sorted.
func Capabilities() []string {
	names := []string{dfName}
	for name := range allowedUniversal {
		names = append(names, name)
	}
	for name := range capabilityTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isAllowedUniversal(name string) bool {
	return allowedUniversal[name] && starlark.Universe.Has(name)
}

func isCapability(name string) bool {
	_, ok := capabilityTable[name]
	return ok || name == dfName
}
