package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xab-mack/contractscan/internal/model"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadSearchesUpwards(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, ".scanner-config.json"), `{"failOn":"medium","protectedStorage":["fee"]}`)
	write(t, filepath.Join(root, "contracts", "sub", "Bank.sol"), "contract Bank {}")

	cfg, path, err := Load(filepath.Join(root, "contracts", "sub", "Bank.sol"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".scanner-config.json"), path)
	assert.Equal(t, model.SeverityMedium, cfg.FailSeverity())
	assert.Equal(t, []string{"fee"}, cfg.ProtectedStorage)
	assert.True(t, cfg.AssumeCheckedArithmetic, "unset fields keep their defaults")
}

func TestLoadYAML(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, ".scanner-config.yaml"), `
severityThreshold: low
rules: [SOL-REENTRANCY]
assumeCheckedArithmetic: false
workers: 2
ignore:
  - rule: SOL-TX-ORIGIN
    path: legacy/
    reason: audited
`)
	cfg, path, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, ".scanner-config.yaml", filepath.Base(path))
	assert.Equal(t, model.SeverityLow, cfg.MinSeverity())
	assert.Equal(t, []string{"SOL-REENTRANCY"}, cfg.Rules)
	assert.False(t, cfg.AssumeCheckedArithmetic)
	assert.Equal(t, 2, cfg.Workers)
	require.Len(t, cfg.Ignore, 1)
	assert.Equal(t, "legacy/", cfg.Ignore[0].Path)
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	cfg, path, err := Load(t.TempDir())
	require.NoError(t, err)
	if path != "" {
		// a config file above the temp dir belongs to the machine, not the test
		t.Skipf("found ambient config %s", path)
	}
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".scanner-config.json")
	write(t, path, `{"failOn":"severe","workers":-1}`)
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown severity "severe"`)
	assert.Contains(t, err.Error(), "workers")

	write(t, path, `{"failOn":`)
	_, err = LoadFile(path)
	assert.ErrorContains(t, err, "parse")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	var ioe *model.IOError
	assert.ErrorAs(t, err, &ioe)
}

func TestMarshalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.json", "c.yaml"} {
		b, err := Marshal(Default(), name)
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		write(t, path, string(b))
		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg, name)
	}
}
