package analysis

import (
	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// Write is a storage write performed by an instruction.
type Write struct {
	Symbol *semantic.Symbol
	Target solidity.Expr
}

// RootSymbol resolves the variable an lvalue ultimately refers to.
func RootSymbol(t *semantic.Table, e solidity.Expr) *semantic.Symbol {
	if e == nil {
		return nil
	}
	id := RootIdent(solidity.Unparen(e))
	if id == nil {
		return nil
	}
	return t.Ref(id)
}

// StateWrites lists the storage writes of in, including ones nested in its
// expressions and array push/pop.
func StateWrites(t *semantic.Table, in *Instr) []Write {
	var out []Write
	var add func(target solidity.Expr)
	add = func(target solidity.Expr) {
		if tup, ok := solidity.Unparen(target).(*solidity.TupleExpr); ok {
			for _, el := range tup.Elems {
				if el != nil {
					add(el)
				}
			}
			return
		}
		if sym := RootSymbol(t, target); sym.IsState() {
			out = append(out, Write{Symbol: sym, Target: target})
		}
	}
	if in.Kind == InstrAssign {
		add(in.LHS)
	}
	if in.Expr == nil {
		return out
	}
	solidity.Inspect(in.Expr, func(n solidity.Node) bool {
		switch x := n.(type) {
		case *solidity.AssignExpr:
			add(x.LHS)
		case *solidity.UnaryExpr:
			if x.Op == "++" || x.Op == "--" || x.Op == "delete" {
				add(x.X)
			}
		case *solidity.CallExpr:
			if m, ok := solidity.Unparen(x.Fun).(*solidity.MemberExpr); ok && (m.Name == "push" || m.Name == "pop") {
				if !semantic.IsAddressType(t.TypeOf(m.X)) {
					add(m.X)
				}
			}
		}
		return true
	})
	return out
}

// IsCaller matches msg.sender, tx.origin and _msgSender().
func IsCaller(t *semantic.Table, e solidity.Expr) bool {
	switch x := solidity.Unparen(e).(type) {
	case *solidity.MemberExpr:
		id, ok := solidity.Unparen(x.X).(*solidity.Identifier)
		if !ok {
			return false
		}
		sym := t.Ref(id)
		if sym == nil || sym.Kind != semantic.Builtin {
			return false
		}
		return id.Name == "msg" && x.Name == "sender" || id.Name == "tx" && x.Name == "origin"
	case *solidity.CallExpr:
		id, ok := solidity.Unparen(x.Fun).(*solidity.Identifier)
		return ok && id.Name == "_msgSender" && len(x.Args) == 0
	}
	return false
}

// IsTxOrigin matches tx.origin.
func IsTxOrigin(t *semantic.Table, e solidity.Expr) bool {
	m, ok := solidity.Unparen(e).(*solidity.MemberExpr)
	if !ok || m.Name != "origin" {
		return false
	}
	id, ok := solidity.Unparen(m.X).(*solidity.Identifier)
	if !ok || id.Name != "tx" {
		return false
	}
	sym := t.Ref(id)
	return sym != nil && sym.Kind == semantic.Builtin
}

// authCondition reports whether a single condition atom checks the caller's
// identity: a comparison against msg.sender or tx.origin, a role lookup keyed
// by the caller, or a predicate call given the caller or named like an
// ownership check.
func authCondition(t *semantic.Table, e solidity.Expr) bool {
	switch x := solidity.Unparen(e).(type) {
	case *solidity.BinaryExpr:
		switch x.Op {
		case "==", "!=":
			// tx.origin == msg.sender tests for an EOA, not an identity
			return IsCaller(t, x.X) != IsCaller(t, x.Y)
		case "&&", "||":
			return authCondition(t, x.X) || authCondition(t, x.Y)
		}
	case *solidity.UnaryExpr:
		if x.Op == "!" {
			return authCondition(t, x.X)
		}
	case *solidity.IndexExpr:
		return callerIndexed(t, x)
	case *solidity.CallExpr:
		for _, a := range x.Args {
			if IsCaller(t, a) {
				return true
			}
		}
		if id, ok := solidity.Unparen(x.Fun).(*solidity.Identifier); ok {
			return classifyGuard(id.Name) == GuardAuth && builtinCallee(t, x) == ""
		}
	}
	return false
}

func callerIndexed(t *semantic.Table, x *solidity.IndexExpr) bool {
	for {
		if IsCaller(t, x.Index) {
			return true
		}
		inner, ok := solidity.Unparen(x.X).(*solidity.IndexExpr)
		if !ok {
			return false
		}
		x = inner
	}
}

// authPolarity reports whether the true edge of an auth condition is the
// authorized one.
func authPolarity(e solidity.Expr) bool {
	switch x := solidity.Unparen(e).(type) {
	case *solidity.BinaryExpr:
		return x.Op != "!="
	case *solidity.UnaryExpr:
		if x.Op == "!" {
			return !authPolarity(x.X)
		}
	}
	return true
}

// identities returns the state variables an auth condition compares the
// caller against.
func identities(t *semantic.Table, e solidity.Expr) []*semantic.Symbol {
	var out []*semantic.Symbol
	solidity.Inspect(e, func(n solidity.Node) bool {
		switch x := n.(type) {
		case *solidity.BinaryExpr:
			if x.Op != "==" && x.Op != "!=" {
				return true
			}
			for _, pair := range [][2]solidity.Expr{{x.X, x.Y}, {x.Y, x.X}} {
				if IsCaller(t, pair[0]) {
					if sym := RootSymbol(t, pair[1]); sym != nil && sym.Kind == semantic.StateVar {
						out = append(out, sym)
					}
				}
			}
		case *solidity.IndexExpr:
			if callerIndexed(t, x) {
				if sym := RootSymbol(t, x); sym != nil && sym.Kind == semantic.StateVar {
					out = append(out, sym)
				}
				return false
			}
		}
		return true
	})
	return out
}

// References reports whether e mentions sym.
func References(t *semantic.Table, e solidity.Node, sym *semantic.Symbol) bool {
	if e == nil || sym == nil {
		return false
	}
	found := false
	solidity.Inspect(e, func(n solidity.Node) bool {
		if id, ok := n.(*solidity.Identifier); ok && t.Ref(id) == sym {
			found = true
		}
		return !found
	})
	return found
}

// boolConstant folds a bool literal or a constant bool state variable.
func boolConstant(t *semantic.Table, e solidity.Expr) (bool, bool) {
	switch x := solidity.Unparen(e).(type) {
	case *solidity.BoolLit:
		return x.Value, true
	case *solidity.Identifier:
		sym := t.Ref(x)
		if sym == nil || sym.Storage != semantic.StorageConstant {
			return false, false
		}
		if d, ok := sym.Decl.(*solidity.StateVarDecl); ok && d.Value != nil {
			return boolConstant(t, d.Value)
		}
	}
	return false, false
}

// lockTest matches a condition that is true exactly when a bool state
// variable holds want: `v`, `!v`, `v == c` and `v != c` with c constant.
func lockTest(t *semantic.Table, e solidity.Expr) (sym *semantic.Symbol, want bool, ok bool) {
	switch x := solidity.Unparen(e).(type) {
	case *solidity.Identifier:
		sym = t.Ref(x)
		if sym == nil || sym.Kind != semantic.StateVar || !sym.IsState() || sym.Type != "bool" {
			return nil, false, false
		}
		return sym, true, true
	case *solidity.UnaryExpr:
		if x.Op == "!" {
			sym, want, ok = lockTest(t, x.X)
			return sym, !want, ok
		}
	case *solidity.BinaryExpr:
		if x.Op != "==" && x.Op != "!=" {
			break
		}
		for _, pair := range [][2]solidity.Expr{{x.X, x.Y}, {x.Y, x.X}} {
			c, isConst := boolConstant(t, pair[1])
			if !isConst {
				continue
			}
			if sym, want, ok = lockTest(t, pair[0]); ok {
				return sym, want == c == (x.Op == "=="), true
			}
		}
	}
	return nil, false, false
}
