package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Values - плоский набор переменных окружения, из которого собирается конфиг.
type Values map[string]string

// Source is where configuration values come from. Read is called on every
// reload, so implementations must return fresh values each time.
type Source interface {
	Read() (Values, error)
}

// EnvSource reads the process environment.
type EnvSource struct{}

func (EnvSource) Read() (Values, error) {
	return environ(), nil
}

// DotenvSource layers a .env file over the process environment.
// Values from the file win, a missing file is not an error.
type DotenvSource struct {
	Path string
}

func (s DotenvSource) Read() (Values, error) {
	values := environ()
	if s.Path == "" {
		return values, nil
	}

	fileValues, err := godotenv.Read(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}

	for k, v := range fileValues {
		values[k] = v
	}
	return values, nil
}

// StaticSource отдает фиксированный набор значений, удобно в тестах
type StaticSource Values

func (s StaticSource) Read() (Values, error) {
	out := make(Values, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

func environ() Values {
	env := os.Environ()
	values := make(Values, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		values[k] = v
	}
	return values
}

func (v Values) get(key string) string {
	return strings.TrimSpace(v[key])
}

func (v Values) getOrDefault(key, defaultValue string) string {
	if value := v.get(key); value != "" {
		return value
	}
	return defaultValue
}

func (v Values) getIntOrDefault(key string, defaultValue int) int {
	if value := v.get(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func (v Values) getSecondsOrDefault(key string, defaultValue int) time.Duration {
	return time.Duration(v.getIntOrDefault(key, defaultValue)) * time.Second
}
