package analysis

import (
	"strings"

	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// CallSite describes a call that ends a basic block.
type CallSite struct {
	Call     *solidity.CallExpr
	External bool
	// LowLevel is call, delegatecall, staticcall, send or transfer on an
	// address; empty for typed calls.
	LowLevel string
	// Receiver is the expression the call is made on, nil for plain calls.
	Receiver solidity.Expr
	// Callee is the resolved function for internal calls.
	Callee *semantic.Symbol
	Target string
	// Value is the {value: ...} option, if any.
	Value solidity.Expr
}

const unknownTarget = "unknown"

var lowLevelCalls = map[string]bool{
	"call": true, "delegatecall": true, "staticcall": true, "send": true, "transfer": true,
}

// builtinCallee returns the builtin a call invokes by plain name, or "".
func builtinCallee(t *semantic.Table, c *solidity.CallExpr) string {
	id, ok := solidity.Unparen(c.Fun).(*solidity.Identifier)
	if !ok {
		return ""
	}
	if sym := t.Ref(id); sym != nil && sym.Kind == semantic.Builtin {
		return id.Name
	}
	return ""
}

// classifyCall returns the call site for c, or nil when c is not a call in
// the control-flow sense: builtins, type conversions, event and error
// constructors, abi helpers and array push/pop.
func classifyCall(t *semantic.Table, contract *semantic.ContractInfo, c *solidity.CallExpr) *CallSite {
	site := &CallSite{Call: c}
	fun := solidity.Unparen(c.Fun)
	if opts, ok := fun.(*solidity.CallOptionsExpr); ok {
		for i, name := range opts.Names {
			if name == "value" {
				site.Value = opts.Values[i]
			}
		}
		fun = solidity.Unparen(opts.X)
	}

	switch f := fun.(type) {
	case *solidity.Identifier:
		sym := t.Ref(f)
		if sym == nil {
			return nil
		}
		switch sym.Kind {
		case semantic.Function:
			site.Callee = sym
			site.Target = semantic.Entity(sym.Owner, sym.Decl)
			return site
		case semantic.Opaque:
			// capitalized imported names are almost always type conversions
			if f.Name != "" && strings.ToUpper(f.Name[:1]) == f.Name[:1] {
				return nil
			}
			site.Target = unknownTarget
			return site
		case semantic.StateVar, semantic.Local, semantic.Parameter:
			if ft, ok := sym.TypeNode.(*solidity.FunctionType); ok {
				site.External = ft.Visibility == "external"
				site.Target = unknownTarget
				return site
			}
		}
		return nil
	case *solidity.MemberExpr:
		return classifyMember(t, contract, site, f)
	case *solidity.NewExpr:
		if ut, ok := f.Type.(*solidity.UserType); ok {
			site.External = true
			site.Target = "new " + ut.String()
			return site
		}
	}
	return nil
}

func classifyMember(t *semantic.Table, contract *semantic.ContractInfo, site *CallSite, f *solidity.MemberExpr) *CallSite {
	if id, ok := solidity.Unparen(f.X).(*solidity.Identifier); ok {
		if sym := t.Ref(id); sym != nil {
			switch {
			case sym.Kind == semantic.Builtin && id.Name == "super":
				if contract != nil {
					for _, base := range contract.Linearized()[1:] {
						if fns := base.FindFunctions(f.Name); len(fns) > 0 {
							site.Callee = fns[0]
							site.Target = semantic.Entity(fns[0].Owner, fns[0].Decl)
							return site
						}
					}
				}
				site.Target = unknownTarget
				return site
			case sym.Kind == semantic.Builtin && id.Name != "this":
				// abi.encode, string.concat, type(x).min and friends
				return nil
			case sym.Kind == semantic.Contract:
				info := t.Contract(sym.Name)
				if info == nil {
					return nil
				}
				if fns := info.FindFunctions(f.Name); len(fns) > 0 {
					site.Callee = fns[0]
					site.Target = semantic.Entity(fns[0].Owner, fns[0].Decl)
					return site
				}
				return nil
			}
		}
	}

	recv := t.TypeOf(f.X)
	switch {
	case lowLevelCalls[f.Name] && (semantic.IsAddressType(recv) || recv == "" && f.Name != "transfer"):
		site.External = true
		site.LowLevel = f.Name
		site.Receiver = f.X
		site.Target = unknownTarget
		return site
	case semantic.IsAddressType(recv) || t.IsContractType(recv):
		site.External = true
		site.Receiver = f.X
		site.Target = unknownTarget
		if info := t.Contract(recv); info != nil {
			if fns := info.FindFunctions(f.Name); len(fns) > 0 {
				site.Callee = fns[0]
				site.Target = semantic.Entity(fns[0].Owner, fns[0].Decl)
			}
		}
		return site
	case f.Name == "push" || f.Name == "pop":
		return nil
	}
	// using-for library functions attached to a value
	site.Target = unknownTarget
	return site
}

// classifyGuard guesses what an unresolvable modifier checks from its name.
func classifyGuard(name string) GuardKind {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "nonreentrant") || strings.Contains(n, "lock") || strings.Contains(n, "mutex"):
		return GuardLock
	case strings.HasPrefix(n, "only") || strings.Contains(n, "owner") || strings.Contains(n, "admin") ||
		strings.Contains(n, "role") || strings.Contains(n, "auth"):
		return GuardAuth
	}
	return GuardNone
}
