package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/goclaw/memkeeper/pkg/memory"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "MEMKEEPER_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// Loader handles configuration loading from various sources.
type Loader struct {
	k          *koanf.Koanf
	projectDir string
	dotenv     []string
}

// LoaderOption is a functional option for Loader configuration.
type LoaderOption func(*Loader)

// WithProjectDir sets the project whose .memory/config.* and .env files are
// considered. Defaults to the working directory.
func WithProjectDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.projectDir = dir
	}
}

// WithDotEnv replaces the list of .env files read before the environment.
func WithDotEnv(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.dotenv = paths
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k:          koanf.New(Delimiter),
		projectDir: ".",
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.dotenv == nil {
		l.dotenv = []string{filepath.Join(l.projectDir, ".env")}
	}
	return l
}

// Load loads configuration from all sources with the following priority:
// 1. Command line overrides (highest)
// 2. Environment variables
// 3. .env files
// 4. Configuration file
// 5. Defaults (lowest)
//
// Invalid numeric memory knobs are replaced by their defaults and listed in
// Config.Warnings instead of failing the load.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	l.k = koanf.New(Delimiter)

	// 1. Load defaults
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load from file if specified
	if configPath != "" {
		if err := l.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else if err := l.loadDefaultFiles(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// 3. Load .env files, then the real environment
	if err := l.loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Apply command line overrides (merge, not replace)
	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	if err := l.fillDefaults(); err != nil {
		return nil, fmt.Errorf("failed to fill defaults: %w", err)
	}

	warnings, err := l.sanitizeMemoryKnobs()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Warnings = warnings

	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults loads the default configuration.
func (l *Loader) loadDefaults() error {
	return l.k.Load(confmap.Provider(structToMap(DefaultConfig(), ""), Delimiter), nil)
}

// loadFile loads configuration from a file.
func (l *Loader) loadFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser

	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config file not found: %s", path)
	}

	return l.k.Load(file.Provider(path), parser)
}

// DefaultFiles lists the config files tried, in order, when no path is given.
func (l *Loader) DefaultFiles() []string {
	candidates := []string{
		filepath.Join(l.projectDir, ".memory", "config.yaml"),
		filepath.Join(l.projectDir, ".memory", "config.json"),
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "memkeeper", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "memkeeper", "config.yaml"))
	}
	return candidates
}

// loadDefaultFiles loads the first default file that exists. A file that
// exists but cannot be parsed is an error.
func (l *Loader) loadDefaultFiles() error {
	for _, path := range l.DefaultFiles() {
		if _, err := os.Stat(path); err == nil {
			return l.loadFile(path)
		}
	}
	return nil
}

// envKey maps MEMKEEPER_MEMORY_DEDUP_THRESHOLD to memory.dedup_threshold:
// only the first underscore after the prefix separates section and key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(key, "_", Delimiter, 1)
}

// loadDotEnv reads the configured .env files without touching the process
// environment. Only MEMKEEPER_ variables are used.
func (l *Loader) loadDotEnv() error {
	values := make(map[string]interface{})
	for _, path := range l.dotenv {
		vars, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%s: %w", path, err)
		}
		for name, value := range vars {
			if strings.HasPrefix(name, EnvPrefix) {
				values[envKey(name)] = value
			}
		}
	}
	if len(values) == 0 {
		return nil
	}
	return l.k.Load(confmap.Provider(values, Delimiter), nil)
}

// loadEnv loads configuration from environment variables.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(EnvPrefix, Delimiter, envKey), nil)
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// GetString returns a string configuration value.
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetInt returns an int configuration value.
func (l *Loader) GetInt(key string) int {
	return l.k.Int(key)
}

// GetBool returns a bool configuration value.
func (l *Loader) GetBool(key string) bool {
	return l.k.Bool(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) error {
	return l.k.Set(key, value)
}

// fillDefaults sets every key that is still missing after all sources were
// merged, for instance when an override replaced a whole section.
func (l *Loader) fillDefaults() error {
	for key, value := range structToMap(DefaultConfig(), "") {
		if l.k.Get(key) == nil {
			if err := l.k.Set(key, value); err != nil {
				return fmt.Errorf("failed to set default for %s: %w", key, err)
			}
		}
	}
	return nil
}

type knob struct {
	key     string
	integer bool
	valid   func(float64) bool
}

var memoryKnobs = []knob{
	{key: "memory.search_limit", integer: true, valid: func(v float64) bool { return v >= 1 }},
	{key: "memory.dedup_threshold", valid: func(v float64) bool { return v > 0 && v <= 1 }},
	{key: "memory.max_archival_per_session", integer: true, valid: func(v float64) bool { return v >= 0 }},
	{key: "memory.max_local_per_category", integer: true, valid: func(v float64) bool { return v >= 1 }},
	{key: "memory.summary_per_category", integer: true, valid: func(v float64) bool { return v >= 1 }},
	{key: "memory.prompt_results", integer: true, valid: func(v float64) bool { return v >= 1 }},
}

// sanitizeMemoryKnobs replaces unparsable or out-of-range memory knobs with
// their defaults and reports each replacement.
func (l *Loader) sanitizeMemoryKnobs() ([]*memory.ConfigError, error) {
	defaults := structToMap(DefaultConfig(), "")

	var warnings []*memory.ConfigError
	for _, kb := range memoryKnobs {
		raw := l.k.Get(kb.key)
		v, ok := toFloat(raw)
		reason := ""
		switch {
		case !ok:
			reason = "is not a number"
		case kb.integer && v != math.Trunc(v):
			reason = "is not an integer"
		case !kb.valid(v):
			reason = "is out of range"
		}
		if reason == "" {
			continue
		}

		def := defaults[kb.key]
		if err := l.k.Set(kb.key, def); err != nil {
			return nil, fmt.Errorf("failed to reset %s: %w", kb.key, err)
		}
		warnings = append(warnings, &memory.ConfigError{Key: kb.key, Value: raw, Default: def, Reason: reason})
	}
	return warnings, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// structToMap recursively converts a struct to a flat map with dot-separated keys.
func structToMap(v interface{}, prefix string) map[string]interface{} {
	result := make(map[string]interface{})
	val := reflect.ValueOf(v)

	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return result
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		fieldVal := val.Field(i)

		if !field.IsExported() {
			continue
		}

		key := field.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}

		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		switch fieldVal.Kind() {
		case reflect.Struct:
			for k, v := range structToMap(fieldVal.Interface(), fullKey) {
				result[k] = v
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			result[fullKey] = fieldVal.Int()
		case reflect.Float32, reflect.Float64:
			result[fullKey] = fieldVal.Float()
		case reflect.Bool:
			result[fullKey] = fieldVal.Bool()
		case reflect.String:
			result[fullKey] = fieldVal.String()
		case reflect.Map:
			if fieldVal.Len() > 0 {
				result[fullKey] = fieldVal.Interface()
			}
		default:
			result[fullKey] = fieldVal.Interface()
		}
	}

	return result
}

// Print prints the loaded configuration for debugging.
func (l *Loader) Print() string {
	return l.k.Sprint()
}

// Load is a convenience function to load configuration.
func Load(configPath string, overrides map[string]interface{}, opts ...LoaderOption) (*Config, error) {
	return NewLoader(opts...).Load(configPath, overrides)
}
