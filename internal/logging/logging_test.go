package logging

import (
	"bytes"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]hclog.Level{
		"trace":   hclog.Trace,
		"DEBUG":   hclog.Debug,
		" warn ":  hclog.Warn,
		"warning": hclog.Warn,
		"error":   hclog.Error,
		"off":     hclog.Off,
		"bogus":   hclog.Info,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	var buf bytes.Buffer
	log := New("scan", "error", &buf)
	log.Debug("parsed file", "path", "a.sol")
	assert.Contains(t, buf.String(), "[DEBUG] scan: parsed file: path=a.sol")
}

func TestDefaultLevelIsWarn(t *testing.T) {
	t.Setenv(EnvLevel, "")
	var buf bytes.Buffer
	log := New("scan", "", &buf)
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
