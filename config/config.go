// Package config loads session settings from an optional YAML file and
// CHRONOHOOK_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/sliverarmory/chronohook/dettime"
	"github.com/sliverarmory/chronohook/logging"
	"github.com/sliverarmory/chronohook/registry"
)

// Real sleep implementations.
const (
	RealSleepResolved = "resolved"
	RealSleepSyscall  = "syscall"
)

var (
	ErrInvalidFoldPolicy = errors.New("config: invalid fold policy")
	ErrInvalidRealSleep  = errors.New("config: invalid real sleep mode")
	ErrInvalidFrameRate  = errors.New("config: frame rate must be positive")
	ErrInvalidMemoSize   = errors.New("config: registry memo size must not be negative")
)

type Config struct {
	FrameRate     int      `yaml:"frame_rate"`
	FoldPolicy    string   `yaml:"fold_policy"`
	LogLevel      string   `yaml:"log_level"`
	LogCategories []string `yaml:"log_categories"`
	MapsPath      string   `yaml:"maps_path"`
	SeedLibraries bool     `yaml:"seed_libraries"`
	RealSleep     string   `yaml:"real_sleep"`
	RegistryMemo  int      `yaml:"registry_memo"`
}

func Default() *Config {
	return &Config{
		FrameRate:     dettime.DefaultFrameRate,
		FoldPolicy:    dettime.Immediate.String(),
		LogLevel:      log.InfoLevel.String(),
		LogCategories: []string{"error"},
		MapsPath:      registry.DefaultMapsPath,
		SeedLibraries: true,
		RealSleep:     RealSleepResolved,
		RegistryMemo:  registry.DefaultMemoSize,
	}
}

// Load reads path from fs over the defaults, applies the environment and
// validates the result. An empty path skips the file.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseBool(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ApplyEnv overrides fields from CHRONOHOOK_* variables that are set and
// not empty.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("CHRONOHOOK_FRAME_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: CHRONOHOOK_FRAME_RATE: %w", err)
		}
		c.FrameRate = n
	}
	if v := os.Getenv("CHRONOHOOK_FOLD_POLICY"); v != "" {
		c.FoldPolicy = v
	}
	if v := os.Getenv("CHRONOHOOK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CHRONOHOOK_LOG_CATEGORIES"); v != "" {
		c.LogCategories = splitList(v)
	}
	if v := os.Getenv("CHRONOHOOK_MAPS"); v != "" {
		c.MapsPath = v
	}
	if v := os.Getenv("CHRONOHOOK_SEED_LIBRARIES"); v != "" {
		c.SeedLibraries = parseBool(v)
	}
	if v := os.Getenv("CHRONOHOOK_REAL_SLEEP"); v != "" {
		c.RealSleep = v
	}
	if v := os.Getenv("CHRONOHOOK_REGISTRY_MEMO"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: CHRONOHOOK_REGISTRY_MEMO: %w", err)
		}
		c.RegistryMemo = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c.FrameRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFrameRate, c.FrameRate)
	}
	if _, ok := dettime.ParseFoldPolicy(c.FoldPolicy); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidFoldPolicy, c.FoldPolicy)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := logging.ParseCategories(c.LogCategories); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.RealSleep {
	case RealSleepResolved, RealSleepSyscall:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRealSleep, c.RealSleep)
	}
	if c.RegistryMemo < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMemoSize, c.RegistryMemo)
	}
	return nil
}

// Policy returns the parsed fold policy. Call Validate first.
func (c *Config) Policy() dettime.FoldPolicy {
	p, _ := dettime.ParseFoldPolicy(c.FoldPolicy)
	return p
}

func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

func (c *Config) Categories() logging.Category {
	cats, err := logging.ParseCategories(c.LogCategories)
	if err != nil {
		return logging.Error
	}
	return cats
}
