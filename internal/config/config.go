package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xab-mack/contractscan/internal/model"
)

// FileNames are searched in order in every directory.
var FileNames = []string{".scanner-config.json", ".scanner-config.yaml", ".scanner-config.yml"}

type IgnoreRule struct {
	Rule    string `json:"rule" yaml:"rule"`
	Path    string `json:"path" yaml:"path"`
	Reason  string `json:"reason" yaml:"reason"`
	Expires string `json:"expires,omitempty" yaml:"expires,omitempty"`
}

type Config struct {
	// SeverityThreshold is the minimum severity reported.
	SeverityThreshold string `json:"severityThreshold" yaml:"severityThreshold"`
	// FailOn is the minimum severity that makes the run fail.
	FailOn        string       `json:"failOn" yaml:"failOn"`
	Rules         []string     `json:"rules" yaml:"rules,omitempty"`
	DisabledRules []string     `json:"disabledRules" yaml:"disabledRules,omitempty"`
	Ignore        []IgnoreRule `json:"ignore" yaml:"ignore,omitempty"`
	Workers       int          `json:"workers" yaml:"workers"`
	TimeBudgetMs  int          `json:"timeBudgetMs" yaml:"timeBudgetMs"`
	// ProtectedStorage names state variables only authorized callers may
	// write.
	ProtectedStorage        []string `json:"protectedStorage" yaml:"protectedStorage,omitempty"`
	AssumeCheckedArithmetic bool     `json:"assumeCheckedArithmetic" yaml:"assumeCheckedArithmetic"`
	Cache                   bool     `json:"cache" yaml:"cache"`
	LogLevel                string   `json:"logLevel" yaml:"logLevel"`
}

func Default() Config {
	return Config{
		SeverityThreshold:       "info",
		FailOn:                  "high",
		TimeBudgetMs:            30000,
		AssumeCheckedArithmetic: true,
		Cache:                   true,
		LogLevel:                "warn",
	}
}

// Load searches upwards from start (a file or directory) for a config file
// and returns the defaults overlaid with its contents, plus the file used.
func Load(start string) (Config, string, error) {
	dir := start
	if fi, err := os.Stat(start); err == nil && !fi.IsDir() {
		dir = filepath.Dir(start)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	for {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				cfg, err := LoadFile(candidate)
				return cfg, candidate, err
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached root
			break
		}
		dir = parent
	}
	return Default(), "", nil
}

// LoadFile reads one config file; the format follows the extension.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, model.ReadError(path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

var severityNames = map[string]bool{"info": true, "low": true, "medium": true, "high": true, "critical": true}

// Validate rejects unknown severities and negative limits.
func (c Config) Validate() error {
	var errs []error
	for field, v := range map[string]string{"severityThreshold": c.SeverityThreshold, "failOn": c.FailOn} {
		if v != "" && !severityNames[strings.ToLower(v)] {
			errs = append(errs, fmt.Errorf("%s: unknown severity %q", field, v))
		}
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers: must not be negative"))
	}
	if c.TimeBudgetMs < 0 {
		errs = append(errs, fmt.Errorf("timeBudgetMs: must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) MinSeverity() model.Severity { return model.ParseSeverity(c.SeverityThreshold) }

func (c Config) FailSeverity() model.Severity { return model.ParseSeverity(c.FailOn) }

// Marshal renders the config in the format implied by path.
func Marshal(c Config, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(c)
	}
	return json.MarshalIndent(c, "", "  ")
}
