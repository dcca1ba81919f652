package plugins

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
)

// Detector is a stateless rule evaluated once per function. Implementations
// must not retain or mutate the facts they are given.
type Detector interface {
	Meta() model.RuleMeta
	Evaluate(ff *analysis.FunctionFacts) ([]model.Finding, error)
}

// RuleExecutionWarning reports a rule that failed on one function. Other
// rules and functions are unaffected.
type RuleExecutionWarning struct {
	RuleID   string
	Function string
	Err      error
}

func (w *RuleExecutionWarning) Error() string {
	return fmt.Sprintf("rule %s failed on %s: %v", w.RuleID, w.Function, w.Err)
}

func (w *RuleExecutionWarning) Unwrap() error { return w.Err }

type Registry struct{ detectors []Detector }

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Register(d Detector) { r.detectors = append(r.detectors, d) }

func (r *Registry) RegisterBuiltin() {
	r.Register(&solidityReentrancy{})
	r.Register(&solidityUncheckedCalls{})
	r.Register(&solidityIntegerOverflow{})
	r.Register(&solidityAccessControl{})
	r.Register(&solidityTxOrigin{})
	r.Register(&soliditySelfdestruct{})
	r.Register(&solidityDelegatecallUnsafe{})
}

// Builtin returns a registry holding every builtin rule.
func Builtin() *Registry {
	r := NewRegistry()
	r.RegisterBuiltin()
	return r
}

func (r *Registry) Detectors() []Detector { return r.detectors }

// Select returns a registry restricted to ids. An empty list selects every
// rule. Unknown ids are an error naming the closest known rule.
func (r *Registry) Select(ids []string) (*Registry, error) {
	if len(ids) == 0 {
		return r, nil
	}
	byID := map[string]Detector{}
	for _, d := range r.detectors {
		byID[d.Meta().ID] = d
	}
	out := NewRegistry()
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		d, ok := byID[id]
		if !ok {
			return nil, r.unknownRule(id)
		}
		out.Register(d)
	}
	return out, nil
}

// Without drops the rules named by ids; unknown ids are ignored.
func (r *Registry) Without(ids []string) *Registry {
	if len(ids) == 0 {
		return r
	}
	skip := map[string]bool{}
	for _, id := range ids {
		skip[strings.ToUpper(strings.TrimSpace(id))] = true
	}
	out := NewRegistry()
	for _, d := range r.detectors {
		if !skip[d.Meta().ID] {
			out.Register(d)
		}
	}
	return out
}

func (r *Registry) unknownRule(id string) error {
	best, bestDist := "", -1
	for _, d := range r.detectors {
		known := d.Meta().ID
		if dist := levenshtein.ComputeDistance(id, known); bestDist < 0 || dist < bestDist {
			best, bestDist = known, dist
		}
	}
	if best != "" && bestDist <= len(id)/2 {
		return fmt.Errorf("unknown rule %q (did you mean %s?)", id, best)
	}
	return fmt.Errorf("unknown rule %q", id)
}

// Metas lists the rule metadata sorted by id.
func (r *Registry) Metas() []model.RuleMeta {
	out := make([]model.RuleMeta, 0, len(r.detectors))
	for _, d := range r.detectors {
		out = append(out, d.Meta())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Evaluate runs every rule on one function. A rule that errors or panics
// yields a warning instead of findings.
func (r *Registry) Evaluate(ff *analysis.FunctionFacts) ([]model.Finding, []*RuleExecutionWarning) {
	var out []model.Finding
	var warns []*RuleExecutionWarning
	for _, d := range r.detectors {
		fs, err := Run(d, ff)
		if err != nil {
			warns = append(warns, err)
			continue
		}
		out = append(out, fs...)
	}
	return out, warns
}

// Run evaluates one rule on one function, converting a panic into a warning.
func Run(d Detector, ff *analysis.FunctionFacts) (fs []model.Finding, warn *RuleExecutionWarning) {
	id := d.Meta().ID
	defer func() {
		if p := recover(); p != nil {
			fs = nil
			warn = &RuleExecutionWarning{RuleID: id, Function: ff.Entity, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	fs, err := d.Evaluate(ff)
	if err != nil {
		return nil, &RuleExecutionWarning{RuleID: id, Function: ff.Entity, Err: err}
	}
	for i := range fs {
		fs[i].File = filepath.ToSlash(fs[i].File)
	}
	return fs, nil
}
