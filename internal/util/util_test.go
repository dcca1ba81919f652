package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSnippet(t *testing.T) {
	src := "l1\nl2\nl3\nl4\nl5\nl6\nl7"
	assert.Equal(t, "l2\nl3\nl4\nl5\nl6", ExtractSnippet(src, 4, 4, 4))
	assert.Equal(t, "l1\nl2\nl3", ExtractSnippet(src, 1, 1, 4))
	assert.Equal(t, "l5\nl6\nl7", ExtractSnippet(src, 7, 6, 4), "end before start collapses to start")
	assert.Empty(t, ExtractSnippet(src, 20, 20, 4))
}

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint("SOL-REENTRANCY", "Bank.sol", 8, 8, "balance[msg.sender] = 0;")
	assert.Equal(t, a, Fingerprint("SOL-REENTRANCY", "Bank.sol", 8, 8, "balance[msg.sender] = 0;"))
	assert.NotEqual(t, a, Fingerprint("SOL-REENTRANCY", "Bank.sol", 9, 9, "balance[msg.sender] = 0;"))
	assert.Equal(t, a, Fingerprint("SOL-REENTRANCY", "Bank.sol", 8, 8, "balance[msg.sender]   =\t0;"))
	assert.Len(t, a, 64)
}
