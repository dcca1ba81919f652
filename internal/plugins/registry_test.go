package plugins

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// functions builds the facts of every function declared in src.
func functions(t *testing.T, src string, opts analysis.Options) []*analysis.FunctionFacts {
	t.Helper()
	unit, errs := solidity.Parse("contracts/test.sol", src)
	require.Empty(t, errs)
	tbl, rerrs := semantic.Resolve(unit)
	require.Empty(t, rerrs)
	var out []*analysis.FunctionFacts
	for _, c := range tbl.Contracts {
		if c.IsInterface() {
			continue
		}
		cf := analysis.NewContractFacts(unit, tbl, c, opts)
		for _, fn := range cf.Targets() {
			ff, err := cf.Facts(fn)
			require.NoError(t, err)
			out = append(out, ff)
		}
	}
	return out
}

func defaults() analysis.Options { return analysis.Options{AssumeCheckedArithmetic: true} }

// findings runs one rule over every function of src.
func findings(t *testing.T, d Detector, src string, opts analysis.Options) []model.Finding {
	t.Helper()
	var out []model.Finding
	for _, ff := range functions(t, src, opts) {
		fs, warn := Run(d, ff)
		require.Nil(t, warn)
		out = append(out, fs...)
	}
	return out
}

func entities(fs []model.Finding) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Entity
	}
	return out
}

type panicky struct{}

func (panicky) Meta() model.RuleMeta { return model.RuleMeta{ID: "TEST-PANIC"} }

func (panicky) Evaluate(*analysis.FunctionFacts) ([]model.Finding, error) { panic("boom") }

type failing struct{}

func (failing) Meta() model.RuleMeta { return model.RuleMeta{ID: "TEST-FAIL"} }

func (failing) Evaluate(*analysis.FunctionFacts) ([]model.Finding, error) {
	return nil, errors.New("malformed")
}

func TestRuleFailuresBecomeWarnings(t *testing.T) {
	fns := functions(t, withdrawVulnerable, defaults())
	require.Len(t, fns, 1)

	r := NewRegistry()
	r.Register(panicky{})
	r.Register(failing{})
	r.Register(&solidityReentrancy{})

	fs, warns := r.Evaluate(fns[0])
	require.Len(t, warns, 2)
	assert.Equal(t, "TEST-PANIC", warns[0].RuleID)
	assert.Equal(t, "Bank.withdraw", warns[0].Function)
	assert.Contains(t, warns[0].Error(), "boom")

	var target *RuleExecutionWarning
	require.True(t, errors.As(error(warns[1]), &target))
	assert.EqualError(t, errors.Unwrap(target), "malformed")

	require.Len(t, fs, 1)
	assert.Equal(t, "SOL-REENTRANCY", fs[0].RuleID)
}

func TestSelect(t *testing.T) {
	r := Builtin()
	assert.Len(t, r.Detectors(), 7)

	sel, err := r.Select([]string{"sol-reentrancy", "SOL-TX-ORIGIN"})
	require.NoError(t, err)
	ids := []string{}
	for _, m := range sel.Metas() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"SOL-REENTRANCY", "SOL-TX-ORIGIN"}, ids)

	_, err = r.Select([]string{"SOL-REENTRANCI"})
	assert.ErrorContains(t, err, "did you mean SOL-REENTRANCY")

	all, err := r.Select(nil)
	require.NoError(t, err)
	assert.Same(t, r, all)

	assert.Len(t, r.Without([]string{"SOL-SELFDESTRUCT"}).Detectors(), 6)
}

func TestMetasAreComplete(t *testing.T) {
	for _, m := range Builtin().Metas() {
		t.Run(m.ID, func(t *testing.T) {
			assert.True(t, m.Severity.Valid())
			assert.NotEmpty(t, m.Title)
			assert.NotEmpty(t, m.References)
		})
	}
}
