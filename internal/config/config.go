// Package config resolves the perftest configuration.
//
// Resolution order is built-in defaults, then a YAML or TOML config file,
// then command-line flags. The merged configuration is checked against an
// embedded CUE schema before use.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/perftest/internal/uci"
)

//go:embed schema.cue
var schemaCUE string

// Default locations relative to the base directory.
const (
	DefaultCorpus = "tests/perft.epd"
	DefaultEngine = "build/byak"
)

// FileNames are the config files discovered in the base directory, in order.
var FileNames = []string{"perftest.yaml", "perftest.yml", "perftest.toml"}

// Config is a resolved configuration.
type Config struct {
	Engine           string
	EngineArgs       []string
	Corpus           string
	HandshakeTimeout time.Duration
	PerftTimeout     time.Duration
	FailFast         bool
	Quiet            bool
	Format           string
	Database         string
	Parquet          string
}

// fileConfig is the on-disk shape. Pointers distinguish unset from zero.
type fileConfig struct {
	Engine           *string  `yaml:"engine" toml:"engine"`
	EngineArgs       []string `yaml:"engine_args" toml:"engine_args"`
	Corpus           *string  `yaml:"corpus" toml:"corpus"`
	HandshakeTimeout *string  `yaml:"handshake_timeout" toml:"handshake_timeout"`
	PerftTimeout     *string  `yaml:"perft_timeout" toml:"perft_timeout"`
	FailFast         *bool    `yaml:"fail_fast" toml:"fail_fast"`
	Quiet            *bool    `yaml:"quiet" toml:"quiet"`
	Format           *string  `yaml:"format" toml:"format"`
	Database         *string  `yaml:"database" toml:"database"`
	Parquet          *string  `yaml:"parquet" toml:"parquet"`
}

// LoadError reports a config file that could not be read or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// BaseDir returns the directory containing the running executable.
// Default paths are resolved against it.
func BaseDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// Defaults returns the built-in configuration for baseDir.
func Defaults(baseDir string) Config {
	return Config{
		Engine:           filepath.Join(baseDir, DefaultEngine),
		EngineArgs:       []string{},
		Corpus:           filepath.Join(baseDir, DefaultCorpus),
		HandshakeTimeout: uci.DefaultHandshakeTimeout,
		PerftTimeout:     uci.DefaultPerftTimeout,
		Format:           "text",
	}
}

// Discover returns the first config file from FileNames present in dir.
func Discover(dir string) (string, bool) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// Load overlays the file at path onto base. Relative paths in the file are
// resolved against the file's directory.
//
// The format follows the extension: .yaml/.yml or .toml. Unknown keys are
// errors in both formats.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &LoadError{Path: path, Err: err}
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &fc)
	case ".toml":
		err = decodeTOML(data, &fc)
	default:
		err = fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", ext)
	}
	if err != nil {
		return Config{}, &LoadError{Path: path, Err: err}
	}

	cfg, err := overlay(base, fc, filepath.Dir(path))
	if err != nil {
		return Config{}, &LoadError{Path: path, Err: err}
	}
	return cfg, nil
}

func decodeYAML(data []byte, fc *fileConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func decodeTOML(data []byte, fc *fileConfig) error {
	md, err := toml.Decode(string(data), fc)
	if err != nil {
		return fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func overlay(cfg Config, fc fileConfig, dir string) (Config, error) {
	if fc.Engine != nil {
		cfg.Engine = resolvePath(dir, *fc.Engine)
	}
	if fc.EngineArgs != nil {
		cfg.EngineArgs = append([]string{}, fc.EngineArgs...)
	}
	if fc.Corpus != nil {
		cfg.Corpus = resolvePath(dir, *fc.Corpus)
	}
	if fc.HandshakeTimeout != nil {
		d, err := parseDuration(*fc.HandshakeTimeout, "handshake_timeout")
		if err != nil {
			return Config{}, err
		}
		cfg.HandshakeTimeout = d
	}
	if fc.PerftTimeout != nil {
		d, err := parseDuration(*fc.PerftTimeout, "perft_timeout")
		if err != nil {
			return Config{}, err
		}
		cfg.PerftTimeout = d
	}
	if fc.FailFast != nil {
		cfg.FailFast = *fc.FailFast
	}
	if fc.Quiet != nil {
		cfg.Quiet = *fc.Quiet
	}
	if fc.Format != nil {
		cfg.Format = *fc.Format
	}
	if fc.Database != nil {
		cfg.Database = resolvePath(dir, *fc.Database)
	}
	if fc.Parquet != nil {
		cfg.Parquet = resolvePath(dir, *fc.Parquet)
	}
	return cfg, nil
}

func parseDuration(value, key string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// resolvePath joins relative paths onto dir. Empty stays empty.
func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate checks c against the embedded schema and the rules the schema
// cannot express.
func (c Config) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("invalid config: handshake_timeout must be positive, got %s", c.HandshakeTimeout)
	}
	if c.PerftTimeout <= 0 {
		return fmt.Errorf("invalid config: perft_timeout must be positive, got %s", c.PerftTimeout)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	args := c.EngineArgs
	if args == nil {
		args = []string{}
	}
	value := ctx.Encode(map[string]any{
		"engine":            c.Engine,
		"engine_args":       args,
		"corpus":            c.Corpus,
		"handshake_timeout": c.HandshakeTimeout.String(),
		"perft_timeout":     c.PerftTimeout.String(),
		"fail_fast":         c.FailFast,
		"quiet":             c.Quiet,
		"format":            c.Format,
		"database":          c.Database,
		"parquet":           c.Parquet,
	})
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
