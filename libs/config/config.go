package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Source resolves keys from an optional YAML file overlaid by the process environment.
// Keys are flat upper-case names (DATABASE_URL, PORT, ...) in both layers.
type Source struct {
	k *koanf.Koanf
}

// Load builds a Source. path may be empty, in which case only the environment is used.
func Load(path string) (*Source, error) {
	k := koanf.New(".")
	if path = strings.TrimSpace(path); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	// The callback keeps env names verbatim so they line up with the YAML keys.
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return &Source{k: k}, nil
}

var (
	defaultMu  sync.Mutex
	defaultSrc *Source
)

// Default returns the process-wide Source, loading CONFIG_PATH on first use.
func Default() *Source {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSrc == nil {
		src, err := Load(os.Getenv("CONFIG_PATH"))
		if err != nil {
			// A broken file must not hide the environment.
			src, _ = Load("")
		}
		defaultSrc = src
	}
	return defaultSrc
}

// Reset drops the cached default Source so the next call reloads it.
func Reset() {
	defaultMu.Lock()
	defaultSrc = nil
	defaultMu.Unlock()
}

func (s *Source) String(key, fallback string) string {
	v := strings.TrimSpace(s.k.String(key))
	if v == "" {
		return fallback
	}
	return v
}

func (s *Source) RequiredString(key string) (string, error) {
	v := s.String(key, "")
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func (s *Source) Port(key, fallback string) (string, error) {
	v := s.String(key, fallback)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

func (s *Source) Int(key string, fallback int) (int, error) {
	v := s.String(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", key, v)
	}
	return n, nil
}

func (s *Source) Bool(key string, fallback bool) bool {
	v := strings.ToLower(s.String(key, ""))
	switch v {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Duration multiplies an integer key by unit, e.g. Duration("SESSION_TTL_HOURS", 168, time.Hour).
func (s *Source) Duration(key string, fallback int, unit time.Duration) (time.Duration, error) {
	n, err := s.Int(key, fallback)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return time.Duration(n) * unit, nil
}

// List splits a comma separated key, dropping blanks.
func (s *Source) List(key string) []string {
	var out []string
	for _, part := range strings.Split(s.String(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func String(key, fallback string) string {
	return Default().String(key, fallback)
}

func RequiredString(key string) (string, error) {
	return Default().RequiredString(key)
}

func Port(key, fallback string) (string, error) {
	return Default().Port(key, fallback)
}

func Int(key string, fallback int) (int, error) {
	return Default().Int(key, fallback)
}

func Bool(key string, fallback bool) bool {
	return Default().Bool(key, fallback)
}

func Duration(key string, fallback int, unit time.Duration) (time.Duration, error) {
	return Default().Duration(key, fallback, unit)
}

func List(key string) []string {
	return Default().List(key)
}
