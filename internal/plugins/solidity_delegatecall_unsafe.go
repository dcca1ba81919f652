package plugins

import (
	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
)

// solidityDelegatecallUnsafe flags delegatecall whose target address comes
// from call data or the caller.
type solidityDelegatecallUnsafe struct{}

func (d *solidityDelegatecallUnsafe) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "SOL-TAINTED-DELEGATECALL",
		Title:       "delegatecall to untrusted target",
		Severity:    model.SeverityCritical,
		Tags:        []string{"delegatecall", "taint"},
		References:  []string{"SWC-112"},
		SupportsFix: true,
	}
}

func (d *solidityDelegatecallUnsafe) Evaluate(ff *analysis.FunctionFacts) ([]model.Finding, error) {
	if ff.Flow == nil {
		return nil, nil
	}
	meta := d.Meta()
	var out []model.Finding
	ff.Visit(func(blk *analysis.BasicBlock, i int, in *analysis.Instr) {
		if in.Kind != analysis.InstrExternalCall || in.Call.LowLevel != "delegatecall" || in.Call.Receiver == nil {
			return
		}
		v := ff.Flow.ValueAt(blk.ID, i, in.Call.Receiver)
		if !v.Labels.Has(analysis.UntrustedInput) && !v.Labels.Has(analysis.CallerControlled) {
			return
		}
		out = append(out, newFinding(meta, ff, in.Call.Call, "delegatecall target derived from user-controlled input",
			"Restrict and validate delegatecall targets. Use UUPS/transparent proxy patterns with access control."))
	})
	return out, nil
}
