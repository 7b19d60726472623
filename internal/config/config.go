// Package config loads the optional YAML configuration file whose
// keys mirror stationrec's long-form CLI flag names. Adapted from the
// teacher's config loader: same ${VAR}/${VAR:-default} environment
// substitution pass before YAML unmarshal, same load/save shape, with
// the Hermod-specific struct replaced by stationrec's option set.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config mirrors the CLI option table (spec.md §6) plus the
// ambient/domain-stack additions (SPEC_FULL.md §6). Flags always
// override a value set here; this struct exists so a station's
// standing configuration doesn't need to be re-typed on every run.
type Config struct {
	Ports       string `yaml:"ports"`
	Out         string `yaml:"out"`
	Len         int    `yaml:"len"`
	SizeHead    bool   `yaml:"sizehead"`
	Check       bool   `yaml:"check"`
	Timeout     int    `yaml:"timeout"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	Duration    int    `yaml:"duration"`
	MaxFileSize int64  `yaml:"maxfilesize"`
	BufSize     int64  `yaml:"bufsize"`
	MaxWrite    int    `yaml:"maxwrite"`
	Compress    bool   `yaml:"compress"`
	CompCommand string `yaml:"compcommand"`
	Path        string `yaml:"path"`
	Verbose     bool   `yaml:"verbose"`

	MetricsAddr     string `yaml:"metrics-addr"`
	ArchiveBucket   string `yaml:"archive-bucket"`
	ArchiveEndpoint string `yaml:"archive-endpoint"`
	ArchiveRegion   string `yaml:"archive-region"`
	ArchivePrefix   string `yaml:"archive-prefix"`
	LogLevel        string `yaml:"log-level"`
}

// Load reads and parses path, substituting ${VAR}/${VAR:-default}
// environment references before unmarshaling as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	content := SubstituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

var envRegex = regexp.MustCompile(`\${(\w+)(?::-([^}]*))?}`)

// SubstituteEnvVars replaces ${VAR} with the environment value of VAR
// (or, for ${VAR:-default}, a default when VAR is unset), leaving the
// placeholder untouched when VAR is unset and no default is given.
func SubstituteEnvVars(input string) string {
	return envRegex.ReplaceAllStringFunc(input, func(m string) string {
		matches := envRegex.FindStringSubmatch(m)
		if len(matches) < 2 {
			return m
		}
		name := matches[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if len(matches) > 2 && strings.Contains(m, ":-") {
			return matches[2]
		}
		return m
	})
}
