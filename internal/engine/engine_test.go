package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/cache"
	"github.com/xab-mack/contractscan/internal/config"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/plugins"
)

const bank = `pragma solidity ^0.8.0;
contract Bank {
    mapping(address => uint256) balance;
    function withdraw() public {
        uint256 amount = balance[msg.sender];
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok);
        balance[msg.sender] = 0;
    }
}`

const safe = `pragma solidity ^0.8.0;
contract Safe {
    mapping(address => uint256) balance;
    function withdraw() public {
        uint256 amount = balance[msg.sender];
        balance[msg.sender] = 0;
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok);
    }
}`

const partlyBroken = `pragma solidity ^0.8.0;
contract A {
    function broken( public {
    }
}
contract Bank {
    mapping(address => uint256) balance;
    function withdraw() public {
        (bool ok, ) = msg.sender.call{value: balance[msg.sender]}("");
        require(ok);
        balance[msg.sender] = 0;
    }
}`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func reentrancyOnly() config.Config {
	cfg := config.Default()
	cfg.Rules = []string{"SOL-REENTRANCY"}
	cfg.Workers = 2
	return cfg
}

func scan(t *testing.T, cfg config.Config, paths []string, opts ...Option) *model.ScanResult {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	res, err := e.Scan(context.Background(), model.ScanRequest{Paths: paths})
	require.NoError(t, err)
	return res
}

func fileReport(t *testing.T, res *model.ScanResult, suffix string) model.FileReport {
	t.Helper()
	for _, fr := range res.Files {
		if strings.HasSuffix(fr.Path, suffix) {
			return fr
		}
	}
	t.Fatalf("no report for %s", suffix)
	return model.FileReport{}
}

func TestScanWithdrawScenario(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"contracts/Bank.sol": bank,
		"contracts/Safe.sol": safe,
		"broken.sol":         "contract {",
		"README.md":          "not solidity",
	})

	res := scan(t, reentrancyOnly(), []string{dir})
	_, err := uuid.Parse(res.RunID)
	assert.NoError(t, err)

	require.Len(t, res.Files, 3, "every input file is reported")
	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, "SOL-REENTRANCY", f.RuleID)
	assert.Equal(t, 8, f.StartLine)
	assert.True(t, strings.HasSuffix(f.File, "contracts/Bank.sol"))

	assert.Empty(t, fileReport(t, res, "Safe.sol").Findings)
	broken := fileReport(t, res, "broken.sol")
	require.NotEmpty(t, broken.Errors)
	assert.Equal(t, model.ErrKindSyntax, broken.Errors[0].Kind)
	assert.Equal(t, 1, res.Summary.FailedFiles)
	assert.True(t, res.Failed(model.SeverityCritical))
}

func TestSyntaxErrorsDoNotStopOtherDeclarations(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"mixed.sol": partlyBroken})

	res := scan(t, reentrancyOnly(), []string{filepath.Join(dir, "mixed.sol")})
	fr := fileReport(t, res, "mixed.sol")
	require.Len(t, fr.Errors, 1)
	assert.Equal(t, model.ErrKindSyntax, fr.Errors[0].Kind)
	assert.Equal(t, 3, fr.Errors[0].Line)
	require.Len(t, fr.Findings, 1)
	assert.Equal(t, "Bank.withdraw", fr.Findings[0].Entity)
}

func TestUnresolvedReferenceIsReportedPerFunction(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"typo.sol": `contract C {
    uint256 balance;
    function good() public { balance = 1; }
    function bad() public { balanse = 2; }
}`})

	res := scan(t, reentrancyOnly(), []string{dir})
	fr := fileReport(t, res, "typo.sol")
	require.Len(t, fr.Errors, 1)
	e := fr.Errors[0]
	assert.Equal(t, model.ErrKindUnresolved, e.Kind)
	assert.Equal(t, "C.bad", e.Function)
	assert.Equal(t, 4, e.Line)
	assert.Contains(t, e.Message, "did you mean balance")
	assert.False(t, fr.Failed(), "resolution errors do not fail the file")
}

func TestMissingFileIsIOError(t *testing.T) {
	res := scan(t, reentrancyOnly(), []string{filepath.Join(t.TempDir(), "missing.sol")})
	require.Len(t, res.Files, 1)
	require.Len(t, res.Files[0].Errors, 1)
	assert.Equal(t, model.ErrKindIO, res.Files[0].Errors[0].Kind)
	assert.Contains(t, res.Files[0].Errors[0].Message, "read")
	assert.True(t, res.Failed(model.SeverityCritical))
}

func TestCancelledScanReportsEveryFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.sol": bank, "b.sol": safe})

	e, err := New(reentrancyOnly())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Scan(ctx, model.ScanRequest{Paths: []string{dir}})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	for _, fr := range res.Files {
		require.Len(t, fr.Errors, 1, fr.Path)
		assert.Equal(t, model.ErrKindCancelled, fr.Errors[0].Kind)
	}
	assert.Empty(t, res.Findings)
}

func TestSuppression(t *testing.T) {
	dir := t.TempDir()
	inline := strings.Replace(bank, "require(ok);", "require(ok); // scanner:ignore SOL-REENTRANCY audited", 1)
	writeFiles(t, dir, map[string]string{
		"inline/Bank.sol": inline,
		"legacy/Bank.sol": bank,
		"live/Bank.sol":   bank,
	})

	cfg := reentrancyOnly()
	cfg.Ignore = []config.IgnoreRule{
		{Rule: "SOL-REENTRANCY", Path: filepath.ToSlash(filepath.Join(dir, "legacy")), Reason: "frozen"},
		{Rule: "SOL-REENTRANCY", Path: filepath.ToSlash(filepath.Join(dir, "live")), Expires: "2000-01-01"},
	}
	res := scan(t, cfg, []string{dir})
	require.Len(t, res.Findings, 1)
	assert.Contains(t, res.Findings[0].File, "live/Bank.sol")

	cfg.SeverityThreshold = "critical"
	assert.Len(t, scan(t, cfg, []string{dir}).Findings, 1)
	cfg.Ignore = nil
	cfg.Rules = []string{"SOL-UNCHECKED-CALL"}
	assert.Empty(t, scan(t, cfg, []string{dir}).Findings)
}

func TestBaselineHidesKnownFindings(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"Bank.sol": bank})
	first := scan(t, reentrancyOnly(), []string{dir})
	require.Len(t, first.Findings, 1)

	path := filepath.Join(t.TempDir(), "baseline.json")
	require.NoError(t, WriteBaseline(path, first.Findings))
	b, err := LoadBaseline(path)
	require.NoError(t, err)
	assert.True(t, b.Fingerprints[first.Findings[0].Fingerprint])

	second := scan(t, reentrancyOnly(), []string{dir}, WithBaseline(b))
	assert.Empty(t, second.Findings)

	_, err = LoadBaseline(filepath.Join(t.TempDir(), "none.json"))
	var ioe *model.IOError
	assert.ErrorAs(t, err, &ioe)
}

func TestCacheReusesFileReports(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"Bank.sol": bank, "Safe.sol": safe})
	c, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	first := scan(t, reentrancyOnly(), []string{dir}, WithCache(c))
	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	second := scan(t, reentrancyOnly(), []string{dir}, WithCache(c))
	assert.Equal(t, first.Findings, second.Findings)
	assert.NotEqual(t, first.RunID, second.RunID)

	// a different rule set must not reuse the entries
	cfg := reentrancyOnly()
	cfg.Rules = nil
	scan(t, cfg, []string{dir}, WithCache(c))
	entries, err = os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

type exploding struct{}

func (exploding) Meta() model.RuleMeta {
	return model.RuleMeta{ID: "TEST-EXPLODE", Severity: model.SeverityLow}
}

func (exploding) Evaluate(*analysis.FunctionFacts) ([]model.Finding, error) {
	return nil, errors.New("boom")
}

func TestRuleFailuresAreWarnings(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"Bank.sol": bank})
	reg := plugins.NewRegistry()
	reg.Register(exploding{})
	reg.Register(plugins.Builtin().Detectors()[0])

	res := scan(t, reentrancyOnly(), []string{dir}, WithRegistry(reg))
	fr := res.Files[0]
	require.Len(t, fr.Warnings, 1)
	assert.Equal(t, model.ErrKindRule, fr.Warnings[0].Kind)
	assert.Equal(t, "Bank.withdraw", fr.Warnings[0].Function)
	assert.Contains(t, fr.Warnings[0].Message, "boom")
	assert.Len(t, fr.Findings, 1, "other rules keep running")
}

func TestUnknownRuleIsRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Rules = []string{"SOL-REENTRANCE"}
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean SOL-REENTRANCY")
}

func TestDiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.sol":                    "",
		"sub/B.SOL":                "",
		"sub/notes.txt":            "",
		"node_modules/dep/Dep.sol": "",
		".git/objects/x.sol":       "",
	})
	files, err := discoverFiles([]string{dir, filepath.Join(dir, "a.sol"), filepath.Join(dir, "sub", "notes.txt")})
	require.NoError(t, err)
	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(dir, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"a.sol", "sub/B.SOL", "sub/notes.txt"}, rel)
}

func TestDeltaScansChangedFiles(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	writeFiles(t, dir, map[string]string{"Old.sol": bank, "Touched.sol": safe})
	for _, name := range []string{"Old.sol", "Touched.sol"} {
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	writeFiles(t, dir, map[string]string{"Touched.sol": safe + "\n", "New.sol": bank})

	e, err := New(reentrancyOnly())
	require.NoError(t, err)
	res, err := e.Scan(context.Background(), model.ScanRequest{Paths: []string{dir}, DeltaOnly: true})
	require.NoError(t, err)
	var names []string
	for _, fr := range res.Files {
		names = append(names, filepath.Base(fr.Path))
	}
	assert.Equal(t, []string{"New.sol", "Touched.sol"}, names)
}

func TestIgnoreExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f := model.Finding{RuleID: "SOL-TX-ORIGIN", File: "src/Wallet.sol"}
	rule := func(expires string) []config.IgnoreRule {
		return []config.IgnoreRule{{Rule: "sol-tx-origin", Path: "src/*.sol", Expires: expires}}
	}
	assert.True(t, isIgnored(f, rule(""), now))
	assert.True(t, isIgnored(f, rule("2024-06-01"), now), "an ignore is valid through its expiry day")
	assert.False(t, isIgnored(f, rule("2024-05-31"), now))
	assert.True(t, isIgnored(f, rule("someday"), now))
}
