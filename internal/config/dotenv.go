package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadDotEnv copies settings from the given .env files into the process
// environment. Variables already set in the environment win. Missing files
// are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// ReadDotEnv parses a .env file without touching the environment and returns a
// LookupFunc that consults env first, then the file.
func ReadDotEnv(path string, env LookupFunc) (LookupFunc, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		if env != nil {
			if value, ok := env(key); ok {
				return value, true
			}
		}
		value, ok := values[key]
		return value, ok
	}, nil
}
