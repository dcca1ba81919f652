package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndLoad(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "nested", "cache"))
	require.NoError(t, err)

	key := Key("v1", "contracts/a.sol", "deadbeef")
	_, ok := c.Load(key)
	assert.False(t, ok)

	require.NoError(t, c.Store(key, []byte(`{"path":"a.sol"}`)))
	got, ok := c.Load(key)
	require.True(t, ok)
	assert.Equal(t, `{"path":"a.sol"}`, string(got))

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestKeySeparatesParts(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("x"), 64)
}
