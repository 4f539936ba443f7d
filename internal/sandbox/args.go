package sandbox

import (
	"strings"

	"go.starlark.net/starlark"
)

// unpack behaves like starlark.UnpackArgs but drops keyword arguments it does
// not know, so pandas- and matplotlib-style styling options are tolerated.
func unpack(fnname string, args starlark.Tuple, kwargs []starlark.Tuple, pairs ...any) error {
	known := make(map[string]bool, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, _ := pairs[i].(string)
		known[strings.TrimRight(name, "?")] = true
	}
	filtered := make([]starlark.Tuple, 0, len(kwargs))
	for _, kv := range kwargs {
		if known[string(kv[0].(starlark.String))] {
			filtered = append(filtered, kv)
		}
	}
	return starlark.UnpackArgs(fnname, args, filtered, pairs...)
}

func kwarg(kwargs []starlark.Tuple, name string) (starlark.Value, bool) {
	for _, kv := range kwargs {
		if string(kv[0].(starlark.String)) == name {
			return kv[1], true
		}
	}
	return nil, false
}

func isNone(value starlark.Value) bool {
	return value == nil || value == starlark.None
}

func intArg(value starlark.Value, fallback int) (int, error) {
	if isNone(value) {
		return fallback, nil
	}
	return starlark.AsInt32(value)
}

func boolArg(value starlark.Value, fallback bool) bool {
	if isNone(value) {
		return fallback
	}
	return bool(value.Truth())
}

func stringArg(value starlark.Value) (string, bool) {
	s, ok := value.(starlark.String)
	return string(s), ok
}

func builtin(name string, fn func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return fn(thread, args, kwargs)
	})
}
