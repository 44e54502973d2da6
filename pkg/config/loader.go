package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by config structs with cross-field rules.
type Validator interface {
	Validate() error
}

var (
	cacheMu sync.Mutex
	cache   = map[reflect.Type]any{}

	dotenvOnce sync.Once
)

// Load parses environment variables into v. Each type is parsed once;
// later calls for the same type receive the cached copy.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		// the .env file is optional
		_ = godotenv.Load()
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

	if val, ok := any(&parsed).(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	cache[key] = parsed
	*v = parsed
	return nil
}

// MustLoad works like Load but panics on failure. Use it for settings the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// Reset drops every cached configuration. Intended for tests.
func Reset() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	clear(cache)
}
