package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// Fingerprint identifies a finding across runs. Runs of whitespace in context
// are collapsed, so reindenting the flagged code keeps the fingerprint.
func Fingerprint(ruleID, file string, start, end int, context string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%d\x00%s", ruleID, filepath.ToSlash(file), start, end, strings.Join(strings.Fields(context), " "))
	return hex.EncodeToString(h.Sum(nil))
}
