package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xab-mack/contractscan/internal/model"
)

const vulnerable = `pragma solidity ^0.8.0;
contract Bank {
    mapping(address => uint256) balance;
    function withdraw() public {
        uint256 amount = balance[msg.sender];
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok);
        balance[msg.sender] = 0;
    }
}`

const harmless = `pragma solidity ^0.8.0;
contract Counter {
    uint256 count;
    function get() external view returns (uint256) { return count; }
}`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "contractscan", SilenceUsage: true, SilenceErrors: true}
	AddCommands(root)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeSource(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestScanExitContract(t *testing.T) {
	bad := writeSource(t, "Bank.sol", vulnerable)
	out, err := run(t, "scan", "--no-cache", "--format", "json", bad)
	require.Error(t, err)

	var res model.ScanResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.Findings)
	assert.Equal(t, "SOL-REENTRANCY", res.Findings[0].RuleID)

	_, err = run(t, "scan", "--no-cache", "--format", "json", "--rules", "SOL-TX-ORIGIN", bad)
	assert.NoError(t, err, "threshold not met once the rule is deselected")

	good := writeSource(t, "Counter.sol", harmless)
	_, err = run(t, "scan", "--no-cache", "--format", "json", good)
	assert.NoError(t, err)

	broken := writeSource(t, "Broken.sol", "contract {")
	_, err = run(t, "scan", "--no-cache", "--format", "json", broken)
	assert.Error(t, err, "a file that fails to parse fails the run")
}

func TestScanWritesReportAndBaseline(t *testing.T) {
	bad := writeSource(t, "Bank.sol", vulnerable)
	dir := t.TempDir()
	sarifPath := filepath.Join(dir, "report.sarif")
	baseline := filepath.Join(dir, "baseline.json")

	_, err := run(t, "scan", "--no-cache", "--format", "sarif", "--out", sarifPath, "--write-baseline", baseline, "--fail-on", "critical", bad)
	require.Error(t, err)
	b, err := os.ReadFile(sarifPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"version": "2.1.0"`)

	_, err = run(t, "scan", "--no-cache", "--format", "json", "--baseline", baseline, bad)
	assert.NoError(t, err, "baselined findings do not fail the run")
}

func TestScanRejectsBadFlags(t *testing.T) {
	good := writeSource(t, "Counter.sol", harmless)
	_, err := run(t, "scan", "--format", "xml", good)
	assert.ErrorContains(t, err, "unknown format")
	_, err = run(t, "scan", "--no-cache", "--rules", "SOL-REENTRANCE", good)
	assert.ErrorContains(t, err, "did you mean SOL-REENTRANCY")
	_, err = run(t, "scan", "--no-cache", "--fail-on", "severe", good)
	assert.ErrorContains(t, err, "unknown severity")
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "init", "--dir", dir, "--yaml")
	require.NoError(t, err)
	assert.Contains(t, out, ".scanner-config.yaml")
	b, err := os.ReadFile(filepath.Join(dir, ".scanner-config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "assumeCheckedArithmetic: true")

	_, err = run(t, "init", "--dir", dir, "--yaml")
	assert.ErrorContains(t, err, "already exists")
	_, err = run(t, "init", "--dir", dir, "--yaml", "--force")
	assert.NoError(t, err)
}

func TestRulesList(t *testing.T) {
	out, err := run(t, "rules", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 7)
	assert.Contains(t, out, "SOL-REENTRANCY\tcritical")
}

func TestCfg(t *testing.T) {
	bad := writeSource(t, "Bank.sol", vulnerable)
	out, err := run(t, "cfg", bad, "Bank.withdraw")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")

	_, err = run(t, "cfg", bad, "Bank.deposit")
	assert.ErrorContains(t, err, "no function deposit")
	_, err = run(t, "cfg", bad, "withdraw")
	assert.ErrorContains(t, err, "Contract.function")
}
