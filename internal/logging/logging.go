package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// EnvLevel overrides the configured log level when set.
const EnvLevel = "CONTRACTSCAN_LOG_LEVEL"

// New creates a named logger. The environment variable has priority over the
// configured level; both empty means WARN so that reports on stdout stay
// readable. Output goes to stderr when out is nil.
func New(name, level string, out io.Writer) hclog.Logger {
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:        name,
		DisableTime: true,
		Output:      out,
		Level:       determineLevel(level),
	})
}

func determineLevel(configured string) hclog.Level {
	if env := os.Getenv(EnvLevel); env != "" {
		return ParseLevel(env)
	}
	if configured == "" {
		return hclog.Warn
	}
	return ParseLevel(configured)
}

// ParseLevel converts a level name to hclog.Level, defaulting to INFO.
func ParseLevel(s string) hclog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "INFO":
		return hclog.Info
	case "WARN", "WARNING":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	case "OFF":
		return hclog.Off
	}
	return hclog.Info
}
