// Package config loads the YAML build manifest used by the ragfile
// command. A manifest names the output file, the format options and one
// entry per strategy section with the JSONL file its records come from.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jpl-au/ragfile"
	"gopkg.in/yaml.v3"
)

// Config is a build manifest.
type Config struct {
	Output        string    `yaml:"output"`
	Version       string    `yaml:"version"`
	Endianness    string    `yaml:"endianness"`
	IndexReserve  int       `yaml:"index_reserve"`
	MaxRecordSize int       `yaml:"max_record_size"`
	Sections      []Section `yaml:"sections"`
	Logging       Logging   `yaml:"logging"`
}

// Section describes one strategy section and where its records come from.
type Section struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"` // keyword or embedding
	Padding   int    `yaml:"padding"`
	Precision int    `yaml:"precision"` // embedding only
	Input     string `yaml:"input"`     // JSONL file, relative to the manifest
}

// Logging contains logging configuration.
type Logging struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a manifest with every option at its default.
func DefaultConfig() *Config {
	return &Config{
		Version:      ragfile.CurrentVersion.String(),
		Endianness:   "little",
		IndexReserve: ragfile.DefaultIndexReserve,
		Logging:      Logging{Level: "info"},
	}
}

// Load reads and validates the manifest at path. Relative output and input
// paths are resolved against the manifest's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	dir := filepath.Dir(path)
	if cfg.Output != "" && !filepath.IsAbs(cfg.Output) {
		cfg.Output = filepath.Join(dir, cfg.Output)
	}
	for i := range cfg.Sections {
		if in := cfg.Sections[i].Input; in != "" && !filepath.IsAbs(in) {
			cfg.Sections[i].Input = filepath.Join(dir, in)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the manifest without touching the file system.
func (c *Config) Validate() error {
	var errs []error
	if c.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}
	if _, err := c.Options(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Sections) == 0 {
		errs = append(errs, errors.New("at least one section is required"))
	}
	seen := make(map[string]bool)
	for i, s := range c.Sections {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sections[%d]: name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("sections[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Input == "" {
			errs = append(errs, fmt.Errorf("sections[%d]: input is required", i))
		}
		if _, err := s.SectionConfig(); err != nil {
			errs = append(errs, fmt.Errorf("sections[%d]: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Options converts the format settings to writer options.
func (c *Config) Options() (ragfile.Options, error) {
	var opts ragfile.Options
	v, err := ParseVersion(c.Version)
	if err != nil {
		return opts, err
	}
	opts.Version = v
	switch c.Endianness {
	case "", "little":
		opts.Endianness = ragfile.LittleEndian
	case "big":
		opts.Endianness = ragfile.BigEndian
	default:
		return opts, fmt.Errorf("endianness must be little or big, got %q", c.Endianness)
	}
	if c.IndexReserve < 0 {
		return opts, fmt.Errorf("index_reserve must not be negative, got %d", c.IndexReserve)
	}
	if c.MaxRecordSize < 0 {
		return opts, fmt.Errorf("max_record_size must not be negative, got %d", c.MaxRecordSize)
	}
	opts.IndexReserve = c.IndexReserve
	opts.MaxRecordSize = c.MaxRecordSize
	return opts, nil
}

// SectionConfig converts the section's encoding settings.
func (s Section) SectionConfig() (ragfile.SectionConfig, error) {
	cfg := ragfile.SectionConfig{Padding: s.Padding}
	switch s.Kind {
	case "keyword":
		cfg.Kind = ragfile.KindKeyword
		if s.Precision != 0 {
			return cfg, fmt.Errorf("precision is only valid for embedding sections")
		}
	case "embedding":
		cfg.Kind = ragfile.KindEmbedding
		cfg.Precision = ragfile.Precision(s.Precision)
		if !cfg.Precision.Valid() {
			return cfg, fmt.Errorf("precision must be 16, 32 or 64, got %d", s.Precision)
		}
	default:
		return cfg, fmt.Errorf("kind must be keyword or embedding, got %q", s.Kind)
	}
	if s.Padding != 4 && s.Padding != 8 && s.Padding != 16 {
		return cfg, fmt.Errorf("padding must be 4, 8 or 16, got %d", s.Padding)
	}
	return cfg, nil
}

// ParseVersion parses "major.minor.patch". An empty string is the current
// version.
func ParseVersion(s string) (ragfile.Version, error) {
	if s == "" {
		return ragfile.CurrentVersion, nil
	}
	var major, minor, patch uint8
	var rest string
	n, _ := fmt.Sscanf(s, "%d.%d.%d%s", &major, &minor, &patch, &rest)
	if n != 3 {
		return ragfile.Version{}, fmt.Errorf("version must be major.minor.patch, got %q", s)
	}
	v := ragfile.Version{Major: major, Minor: minor, Patch: patch}
	if v != ragfile.CurrentVersion && v != ragfile.DelimitedVersion {
		return v, fmt.Errorf("cannot write version %s", v)
	}
	return v, nil
}
