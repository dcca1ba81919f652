package engine

import (
	"path"
	"strings"
	"time"

	"github.com/xab-mack/contractscan/internal/config"
	"github.com/xab-mack/contractscan/internal/model"
)

// applyIgnores drops findings matched by a config ignore rule or an inline
// suppression marker in src.
func applyIgnores(findings []model.Finding, rules []config.IgnoreRule, src string, now time.Time) []model.Finding {
	var lines []string
	var out []model.Finding
	for _, f := range findings {
		if isIgnored(f, rules, now) {
			continue
		}
		if lines == nil {
			lines = strings.Split(src, "\n")
		}
		if hasInlineSuppression(lines, f.RuleID, f.StartLine) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func isIgnored(f model.Finding, rules []config.IgnoreRule, now time.Time) bool {
	for _, ig := range rules {
		if ig.Rule != "" && !strings.EqualFold(ig.Rule, f.RuleID) {
			continue
		}
		if ig.Path != "" && !pathMatches(ig.Path, f.File) {
			continue
		}
		if expired(ig.Expires, now) {
			continue
		}
		return true
	}
	return false
}

// pathMatches accepts a directory prefix or a glob.
func pathMatches(pattern, file string) bool {
	if strings.HasPrefix(file, pattern) {
		return true
	}
	ok, _ := path.Match(pattern, file)
	return ok
}

// expired reports whether an expiry date (2006-01-02) lies in the past. An
// unparseable date never expires.
func expired(date string, now time.Time) bool {
	if date == "" {
		return false
	}
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return false
	}
	return !now.Before(t.AddDate(0, 0, 1))
}

// hasInlineSuppression looks around the finding location for a suppression comment
// Format: // scanner:ignore RULE_ID reason="..."
func hasInlineSuppression(lines []string, ruleID string, startLine int) bool {
	if len(lines) == 0 || startLine < 1 {
		return false
	}
	// window: 0-based indices
	from := startLine - 1 - 5
	if from < 0 {
		from = 0
	}
	to := startLine - 1 + 1
	if to >= len(lines) {
		to = len(lines) - 1
	}
	needle := "scanner:ignore " + ruleID
	for i := from; i <= to; i++ {
		if strings.Contains(lines[i], needle) {
			return true
		}
	}
	return false
}
