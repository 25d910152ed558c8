// Package config loads analyzer settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete analyzer configuration.
type Config struct {
	Engine   Engine   `yaml:"engine"`
	Analysis Analysis `yaml:"analysis"`
	Server   Server   `yaml:"server"`
	Cache    Cache    `yaml:"cache"`
}

// Engine describes the external engine process.
type Engine struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args,omitempty"`
	// Options are sent as setoption commands during the handshake.
	Options          map[string]string `yaml:"options,omitempty"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	StopTimeout      time.Duration     `yaml:"stop_timeout"`
	ShutdownGrace    time.Duration     `yaml:"shutdown_grace"`
	// ScorePOV is "side-to-move" (UCI) or "white".
	ScorePOV string `yaml:"score_pov"`
}

// Analysis tunes the continuous analysis loop.
type Analysis struct {
	Lines           int           `yaml:"lines"`
	Depth           int           `yaml:"depth"`
	Pacing          time.Duration `yaml:"pacing"`
	EngineMoveDepth int           `yaml:"engine_move_depth"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `yaml:"addr"`
}

// Cache configures the finished-analysis cache. An empty Path keeps it in memory.
type Cache struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Engine: Engine{
			Path:             defaultEngineName(),
			HandshakeTimeout: 10 * time.Second,
			StopTimeout:      2 * time.Second,
			ShutdownGrace:    2 * time.Second,
			ScorePOV:         "side-to-move",
		},
		Analysis: Analysis{
			Lines:           3,
			Depth:           12,
			Pacing:          2 * time.Second,
			EngineMoveDepth: 15,
		},
		Server: Server{Addr: ":8080"},
		Cache:  Cache{Enabled: true},
	}
}

// Load reads path over the defaults. Fields absent from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that every bound is usable.
func (c Config) Validate() error {
	var errs []error
	if c.Engine.Path == "" {
		errs = append(errs, errors.New("engine.path is empty"))
	}
	if c.Engine.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("engine.handshake_timeout must be positive"))
	}
	if c.Engine.StopTimeout <= 0 {
		errs = append(errs, errors.New("engine.stop_timeout must be positive"))
	}
	if c.Engine.ShutdownGrace <= 0 {
		errs = append(errs, errors.New("engine.shutdown_grace must be positive"))
	}
	switch c.Engine.ScorePOV {
	case "", "side-to-move", "white":
	default:
		errs = append(errs, fmt.Errorf("engine.score_pov %q is not side-to-move or white", c.Engine.ScorePOV))
	}
	if c.Analysis.Lines < 1 {
		errs = append(errs, errors.New("analysis.lines must be at least 1"))
	}
	if c.Analysis.Depth < 1 {
		errs = append(errs, errors.New("analysis.depth must be at least 1"))
	}
	if c.Analysis.EngineMoveDepth < 1 {
		errs = append(errs, errors.New("analysis.engine_move_depth must be at least 1"))
	}
	if c.Analysis.Pacing < 0 {
		errs = append(errs, errors.New("analysis.pacing must not be negative"))
	}
	return errors.Join(errs...)
}

// ResolveEnginePath finds the engine executable. A bare name is looked up
// next to the running binary first, then on PATH.
func ResolveEnginePath(name string) (string, error) {
	if name == "" {
		name = defaultEngineName()
	}
	if filepath.Base(name) != name {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("engine %s: %w", name, err)
		}
		return name, nil
	}
	if exe, err := os.Executable(); err == nil {
		local := filepath.Join(filepath.Dir(exe), name)
		if info, err := os.Stat(local); err == nil && !info.IsDir() {
			return local, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("engine %s not found next to the analyzer or on PATH: %w", name, err)
	}
	return path, nil
}

func defaultEngineName() string {
	if runtime.GOOS == "windows" {
		return "stockfish.exe"
	}
	return "stockfish"
}
