package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// CLIConfig is the optional per-user configuration file. CategoryHints
// maps description regex patterns to category names; the first
// matching pattern supplies the hint attached to imported rows.
type CLIConfig struct {
	ServerURL     string            `yaml:"server_url,omitempty"`
	CategoryHints map[string]string `yaml:"category_hints,omitempty"`

	// compiled patterns in file order (not serialized)
	patterns []hintPattern `yaml:"-"`
}

type hintPattern struct {
	re       *regexp.Regexp
	category string
}

// LoadCLIConfig reads the config at path, or ~/.bilancio.yaml when
// path is empty. A missing file is not an error.
func LoadCLIConfig(path string) (*CLIConfig, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return &CLIConfig{}, nil
		}
		path = filepath.Join(home, ".bilancio.yaml")
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &CLIConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg CLIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	for pattern, category := range cfg.CategoryHints {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid category hint pattern %q: %w", pattern, err)
		}
		cfg.patterns = append(cfg.patterns, hintPattern{re: re, category: category})
	}

	return &cfg, nil
}

// HintFor returns the configured category hint for a statement
// description, or "" when no pattern matches.
func (c *CLIConfig) HintFor(description string) string {
	if c == nil {
		return ""
	}
	for _, p := range c.patterns {
		if p.re.MatchString(description) {
			return p.category
		}
	}
	return ""
}
