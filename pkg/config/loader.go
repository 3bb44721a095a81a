package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are read once before the first Load. Earlier files win:
// godotenv never overrides a variable that is already set.
var DefaultEnvFiles = []string{".env.local", ".env"}

var (
	cacheMu sync.Mutex
	cache   = make(map[reflect.Type]any)

	defaultEnvOnce sync.Once
)

// Load parses environment variables into v according to its `env` tags.
// Each config type is parsed once; later calls return the cached copy.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	defaultEnvOnce.Do(func() {
		_ = loadFiles(DefaultEnvFiles, true)
	})

	key := reflect.TypeFor[T]()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := cache[key]; ok {
		*v = cached.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	cache[key] = parsed
	*v = parsed

	return nil
}

// MustLoad is Load for configuration the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// LoadEnv reads the given dotenv files into the process environment.
// Variables that are already set are kept. Unlike the default files,
// every path must exist.
func LoadEnv(paths ...string) error {
	return loadFiles(paths, false)
}

// ResetCache drops every cached config so the next Load parses again.
func ResetCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	clear(cache)
}

func loadFiles(paths []string, skipMissing bool) error {
	for _, path := range paths {
		if skipMissing {
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				continue
			}
		}
		if err := godotenv.Load(path); err != nil {
			return errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", path, err))
		}
	}
	return nil
}
