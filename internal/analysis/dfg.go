package analysis

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// ErrIterationBound is returned when the worklist does not converge within
// the bound implied by the lattice height.
var ErrIterationBound = errors.New("data-flow iteration bound exceeded")

type slotKey struct {
	sym    int
	member string
}

// slotIndex numbers the variables tracked by one flow.
type slotIndex struct {
	byKey map[slotKey]int
	syms  []*semantic.Symbol
	// members is "value" or "data" for msg pseudo-slots.
	members []string
}

func (x *slotIndex) len() int { return len(x.syms) }

func (x *slotIndex) add(sym *semantic.Symbol, member string) {
	k := slotKey{sym.ID, member}
	if _, ok := x.byKey[k]; ok {
		return
	}
	x.byKey[k] = len(x.syms)
	x.syms = append(x.syms, sym)
	x.members = append(x.members, member)
}

// Flow is the converged taint and range solution for one CFG. Block
// in-states are frozen; queries return copies.
type Flow struct {
	cfg   *CFG
	table *semantic.Table
	slots *slotIndex
	in    []*State
	// Iterations counts transfer applications; Bound is the hard limit.
	Iterations int
	Bound      int
}

func isVariable(sym *semantic.Symbol) bool {
	if sym == nil {
		return false
	}
	switch sym.Kind {
	case semantic.StateVar, semantic.Local, semantic.Parameter, semantic.ReturnVar:
		return true
	}
	return false
}

// Solve runs the forward worklist to a fixpoint.
func Solve(g *CFG, table *semantic.Table) (*Flow, error) {
	f := &Flow{cfg: g, table: table, slots: &slotIndex{byKey: map[slotKey]int{}}}
	f.collectSlots()

	n := len(g.Blocks)
	s := f.slots.len()
	f.Bound = n * (int(numLabels)*s + 4*s + 1)
	f.in = make([]*State, n)
	for i := range f.in {
		f.in[i] = newState(f.slots)
	}
	f.in[g.Entry].joinFrom(f.entryState())

	queued := make([]bool, n)
	work := []int{g.Entry}
	queued[g.Entry] = true
	for len(work) > 0 {
		id := work[0]
		work = work[1:]
		queued[id] = false

		f.Iterations++
		if f.Iterations > f.Bound {
			return f, fmt.Errorf("%s: %w (%d)", g.Name, ErrIterationBound, f.Bound)
		}
		blk := g.Blocks[id]
		out := f.in[id].clone()
		for _, in := range blk.Instrs {
			f.transfer(out, in)
		}
		for _, ei := range blk.Succs {
			e := g.Edges[ei]
			to := e.To
			sent := out
			if last := blk.Last(); last != nil && last.Kind == InstrCond && (e.Kind == EdgeTrue || e.Kind == EdgeFalse) {
				sent = out.clone()
				f.refine(sent, last.Expr, e.Kind == EdgeTrue)
			}
			if f.in[to].joinFrom(sent) && !queued[to] {
				queued[to] = true
				work = append(work, to)
			}
		}
	}
	return f, nil
}

func (f *Flow) collectSlots() {
	fn := f.cfg.Function
	for _, ps := range [][]*solidity.Param{fn.Params, fn.Returns} {
		for _, p := range ps {
			if sym := f.table.SymbolOf(p); sym != nil {
				f.slots.add(sym, "")
			}
		}
	}
	visit := func(e solidity.Node) {
		solidity.Inspect(e, func(n solidity.Node) bool {
			switch x := n.(type) {
			case *solidity.Identifier:
				if sym := f.table.Ref(x); isVariable(sym) {
					f.slots.add(sym, "")
				}
			case *solidity.MemberExpr:
				if sym, ok := f.msgMember(x); ok {
					f.slots.add(sym, x.Name)
				}
			}
			return true
		})
	}
	for _, blk := range f.cfg.Blocks {
		for _, in := range blk.Instrs {
			for _, v := range in.Vars {
				if v != nil {
					f.slots.add(v, "")
				}
			}
			if in.Expr != nil {
				visit(in.Expr)
			}
			if in.LHS != nil {
				visit(in.LHS)
			}
		}
	}
}

// msgMember matches msg.value and msg.data.
func (f *Flow) msgMember(m *solidity.MemberExpr) (*semantic.Symbol, bool) {
	if m.Name != "value" && m.Name != "data" {
		return nil, false
	}
	id, ok := solidity.Unparen(m.X).(*solidity.Identifier)
	if !ok || id.Name != "msg" {
		return nil, false
	}
	sym := f.table.Ref(id)
	return sym, sym != nil && sym.Kind == semantic.Builtin
}

func (f *Flow) entryState() *State {
	st := newState(f.slots)
	st.reached = true
	fn := f.cfg.Function
	own := map[*semantic.Symbol]bool{}
	for _, p := range fn.Params {
		if sym := f.table.SymbolOf(p); sym != nil {
			own[sym] = true
		}
	}
	for i, sym := range f.slots.syms {
		switch {
		case f.slots.members[i] != "":
			st.set(i, Value{Labels: LabelsOf(UntrustedInput), Range: Unbounded()})
		case sym.Kind == semantic.Parameter && own[sym]:
			v := Value{Range: declaredRange(sym.Type)}
			if fn.IsEntryPoint() {
				v.Labels = LabelsOf(UntrustedInput)
			}
			st.set(i, v)
		case sym.Kind == semantic.ReturnVar:
			st.set(i, Value{Range: ConstUint(0)})
		case sym.Kind == semantic.StateVar && sym.Storage == semantic.StorageConstant:
			if d, ok := sym.Decl.(*solidity.StateVarDecl); ok && d.Value != nil {
				v := f.eval(st, d.Value)
				st.set(i, Value{Range: v.Range})
			}
		case sym.Kind == semantic.StateVar:
			st.set(i, Value{Range: declaredRange(sym.Type)})
		}
	}
	return st
}

// Before returns a copy of the state just before instruction i of block.
func (f *Flow) Before(block, i int) *State {
	st := f.in[block].clone()
	instrs := f.cfg.Blocks[block].Instrs
	for j := 0; j < i && j < len(instrs); j++ {
		f.transfer(st, instrs[j])
	}
	return st
}

// ValueAt evaluates e in the state before instruction i of block.
func (f *Flow) ValueAt(block, i int, e solidity.Expr) Value {
	return f.eval(f.Before(block, i), e)
}

// Eval evaluates e in st without changing it.
func (f *Flow) Eval(st *State, e solidity.Expr) Value { return f.eval(st, e) }

// Lookup returns the value of a tracked variable.
func (f *Flow) Lookup(st *State, sym *semantic.Symbol) (Value, bool) {
	slot, ok := f.slots.byKey[slotKey{sym.ID, ""}]
	if !ok {
		return Value{}, false
	}
	return st.get(slot), true
}

func (f *Flow) slotOf(e solidity.Expr) (int, bool) {
	switch x := solidity.Unparen(e).(type) {
	case *solidity.Identifier:
		if sym := f.table.Ref(x); isVariable(sym) {
			slot, ok := f.slots.byKey[slotKey{sym.ID, ""}]
			return slot, ok
		}
	case *solidity.MemberExpr:
		if sym, ok := f.msgMember(x); ok {
			slot, ok := f.slots.byKey[slotKey{sym.ID, x.Name}]
			return slot, ok
		}
	}
	return 0, false
}

// RootIdent strips index, slice and member accesses down to the base
// identifier.
func RootIdent(e solidity.Expr) *solidity.Identifier {
	for {
		switch x := e.(type) {
		case *solidity.Identifier:
			return x
		case *solidity.IndexExpr:
			e = x.X
		case *solidity.SliceExpr:
			e = x.X
		case *solidity.MemberExpr:
			e = x.X
		case *solidity.ParenExpr:
			e = x.X
		default:
			return nil
		}
	}
}

func (f *Flow) transfer(st *State, in *Instr) {
	switch in.Kind {
	case InstrDecl, InstrBind:
		f.nested(st, in.Expr)
		f.declare(st, in.Vars, in.Expr)
	case InstrAssign:
		f.nested(st, in.Expr)
		f.assign(st, in.LHS, in.Op, in.Expr)
	case InstrCond, InstrEval, InstrReturn:
		f.nested(st, in.Expr)
	}
}

func (f *Flow) declare(st *State, vars []*semantic.Symbol, e solidity.Expr) {
	if len(vars) == 1 {
		if vars[0] == nil {
			return
		}
		v := Value{Range: ConstUint(0)}
		if e != nil {
			v = f.eval(st, e)
		}
		f.setSym(st, vars[0], v)
		return
	}
	if t, ok := solidity.Unparen(e).(*solidity.TupleExpr); ok && len(t.Elems) == len(vars) {
		for i, sym := range vars {
			if sym != nil && t.Elems[i] != nil {
				f.setSym(st, sym, f.eval(st, t.Elems[i]))
			}
		}
		return
	}
	v := Value{Range: Unbounded()}
	if e != nil {
		v = f.eval(st, e)
	}
	for _, sym := range vars {
		if sym != nil {
			f.setSym(st, sym, v)
		}
	}
}

func (f *Flow) setSym(st *State, sym *semantic.Symbol, v Value) {
	if slot, ok := f.slots.byKey[slotKey{sym.ID, ""}]; ok {
		st.set(slot, v)
	}
}

// nested applies assignments and increments buried inside an expression.
func (f *Flow) nested(st *State, e solidity.Expr) {
	if e == nil {
		return
	}
	solidity.Inspect(e, func(n solidity.Node) bool {
		switch x := n.(type) {
		case *solidity.AssignExpr:
			f.nested(st, x.RHS)
			f.assign(st, x.LHS, x.Op, x.RHS)
			return false
		case *solidity.UnaryExpr:
			if x.Op == "++" || x.Op == "--" || x.Op == "delete" {
				f.assign(st, x.X, x.Op, nil)
				return false
			}
		case *solidity.CallExpr:
			if m, ok := solidity.Unparen(x.Fun).(*solidity.MemberExpr); ok && m.Name == "push" && len(x.Args) == 1 {
				f.write(st, m.X, f.eval(st, x.Args[0]), true)
			}
		}
		return true
	})
}

func (f *Flow) assign(st *State, lhs solidity.Expr, op string, rhs solidity.Expr) {
	lhs = solidity.Unparen(lhs)
	if t, ok := lhs.(*solidity.TupleExpr); ok {
		if rt, ok := solidity.Unparen(rhs).(*solidity.TupleExpr); ok && len(rt.Elems) == len(t.Elems) {
			for i, el := range t.Elems {
				if el != nil && rt.Elems[i] != nil {
					f.assign(st, el, "=", rt.Elems[i])
				}
			}
			return
		}
		v := f.eval(st, rhs)
		for _, el := range t.Elems {
			if el != nil {
				f.write(st, el, v, false)
			}
		}
		return
	}

	var v Value
	switch op {
	case "=":
		v = f.eval(st, rhs)
	case "++", "--":
		v = arith(op[:1], f.eval(st, lhs), Value{Range: ConstUint(1)})
	case "delete":
		v = Value{Range: ConstUint(0)}
	default:
		v = arith(strings.TrimSuffix(op, "="), f.eval(st, lhs), f.eval(st, rhs))
	}
	f.write(st, lhs, v, false)
}

// write updates a plain variable strongly and a mapping, array or struct
// element weakly through its root variable.
func (f *Flow) write(st *State, lhs solidity.Expr, v Value, weak bool) {
	if slot, ok := f.slotOf(lhs); ok {
		if weak {
			st.weaken(slot, v)
		} else {
			st.set(slot, v)
		}
		return
	}
	if root := RootIdent(lhs); root != nil {
		if slot, ok := f.slotOf(root); ok {
			st.weaken(slot, v)
		}
	}
}

var comparisonMirror = map[string]string{
	"==": "==", "!=": "!=", "<": ">", ">": "<", "<=": ">=", ">=": "<=",
}

var comparisonNegation = map[string]string{
	"==": "!=", "!=": "==", "<": ">=", ">=": "<", ">": "<=", "<=": ">",
}

// refine applies what taking one edge out of a condition block proves:
// holds says whether cond evaluated true.
func (f *Flow) refine(st *State, cond solidity.Expr, holds bool) {
	switch x := solidity.Unparen(cond).(type) {
	case *solidity.UnaryExpr:
		if x.Op == "!" {
			f.refine(st, x.X, !holds)
		}
	case *solidity.BinaryExpr:
		switch x.Op {
		case "&&":
			if holds {
				f.refine(st, x.X, true)
				f.refine(st, x.Y, true)
			}
			return
		case "||":
			if !holds {
				f.refine(st, x.X, false)
				f.refine(st, x.Y, false)
			}
			return
		}
		if _, ok := comparisonMirror[x.Op]; !ok {
			return
		}
		op := x.Op
		if !holds {
			op = comparisonNegation[op]
		}
		// Both sides are evaluated before either is narrowed.
		l, r := f.eval(st, x.X), f.eval(st, x.Y)
		f.narrow(st, x.X, op, r)
		f.narrow(st, x.Y, comparisonMirror[op], l)
	}
}

// narrow bounds x after `x op other` is known to hold. Only <, <= and ==
// bound x from above; the other comparisons leave it untouched.
func (f *Flow) narrow(st *State, x solidity.Expr, op string, other Value) {
	slot, ok := f.slotOf(x)
	if !ok {
		return
	}
	if op != "<" && op != "<=" && op != "==" {
		return
	}
	r := Bounded()
	if upper, ok := other.Range.Upper(); ok {
		r = BoundedBy(upper)
		if op == "==" && other.Range.Kind == RangeConst {
			r = other.Range
		}
	}
	cur := st.get(slot).Range
	if cu, ok := cur.Upper(); ok {
		if bound, ok := r.Upper(); !ok || cu.Lt(bound) {
			r = cur
		}
	}
	st.set(slot, Value{Range: r})
}

func (f *Flow) eval(st *State, e solidity.Expr) Value {
	switch x := solidity.Unparen(e).(type) {
	case nil:
		return Value{}
	case *solidity.Identifier:
		if slot, ok := f.slotOf(x); ok {
			return st.get(slot)
		}
		if sym := f.table.Ref(x); sym != nil && sym.Kind == semantic.Builtin && x.Name == "now" {
			return Value{Range: Bounded()}
		}
		return Value{Range: Unbounded()}
	case *solidity.NumberLit:
		if v, ok := literalValue(x); ok {
			return Value{Range: Const(v)}
		}
		return Value{Range: Unbounded()}
	case *solidity.BoolLit:
		if x.Value {
			return Value{Range: ConstUint(1)}
		}
		return Value{Range: ConstUint(0)}
	case *solidity.StringLit:
		return Value{Range: Bounded()}
	case *solidity.MemberExpr:
		if slot, ok := f.slotOf(x); ok {
			return st.get(slot)
		}
		if id, ok := solidity.Unparen(x.X).(*solidity.Identifier); ok {
			if sym := f.table.Ref(id); sym != nil && sym.Kind == semantic.Builtin {
				switch {
				case id.Name == "msg" && x.Name == "sender", id.Name == "tx" && x.Name == "origin":
					return Value{Labels: LabelsOf(CallerControlled), Range: Bounded()}
				case id.Name == "block", id.Name == "tx", id.Name == "msg":
					return Value{Range: Bounded()}
				}
			}
		}
		base := f.eval(st, x.X)
		return Value{Labels: base.Labels, Range: Unbounded()}
	case *solidity.IndexExpr:
		return f.eval(st, x.X)
	case *solidity.SliceExpr:
		return f.eval(st, x.X)
	case *solidity.BinaryExpr:
		l, r := f.eval(st, x.X), f.eval(st, x.Y)
		switch x.Op {
		case "==", "!=", "<", ">", "<=", ">=", "&&", "||":
			return Value{Labels: l.Labels | r.Labels, Range: BoundedBy(uint256.NewInt(1))}
		}
		return arith(x.Op, l, r)
	case *solidity.UnaryExpr:
		v := f.eval(st, x.X)
		switch x.Op {
		case "!":
			return Value{Labels: v.Labels, Range: BoundedBy(uint256.NewInt(1))}
		case "++", "--":
			return arith(x.Op[:1], v, Value{Range: ConstUint(1)})
		case "delete":
			return Value{Range: ConstUint(0)}
		}
		return Value{Labels: v.Labels, Range: Unbounded()}
	case *solidity.ConditionalExpr:
		return f.eval(st, x.Then).join(f.eval(st, x.Else))
	case *solidity.AssignExpr:
		return f.eval(st, x.RHS)
	case *solidity.TupleExpr:
		var v Value
		for _, el := range x.Elems {
			if el != nil {
				v = v.join(f.eval(st, el))
			}
		}
		return v
	case *solidity.ArrayLit:
		v := Value{Range: Unbounded()}
		for _, el := range x.Elems {
			v.Labels |= f.eval(st, el).Labels
		}
		return v
	case *solidity.CallExpr:
		return f.callValue(st, x)
	}
	return Value{Range: Unbounded()}
}

func (f *Flow) callValue(st *State, c *solidity.CallExpr) Value {
	var args Labels
	for _, a := range c.Args {
		args |= f.eval(st, a).Labels
	}
	if site := classifyCall(f.table, f.cfg.Contract, c); site != nil {
		if site.External {
			return Value{Labels: LabelsOf(ExternalCallResult), Range: Unbounded()}
		}
		return Value{Labels: args, Range: Unbounded()}
	}

	name := ""
	switch fun := solidity.Unparen(c.Fun).(type) {
	case *solidity.Identifier:
		name = fun.Name
	case *solidity.TypeExpr:
		if et, ok := fun.Type.(*solidity.ElementaryType); ok {
			name = et.Name
		}
	}
	if len(c.Args) == 1 && name != "" && (solidity.IsElementaryType(name) || name == "payable" || isTypeName(f.table, c.Fun)) {
		v := f.eval(st, c.Args[0])
		if bits, ok := uintBits(name); ok && bits < 256 {
			max := maxUint(bits)
			if upper, ok := v.Range.Upper(); !ok || upper.Gt(max) {
				v.Range = BoundedBy(max)
			}
		}
		if strings.HasPrefix(name, "address") || name == "payable" {
			v.Range = Bounded()
		}
		return v
	}
	return Value{Labels: args, Range: Unbounded()}
}

// isTypeName reports whether fun names a user type, making the call a
// conversion.
func isTypeName(t *semantic.Table, fun solidity.Expr) bool {
	id, ok := solidity.Unparen(fun).(*solidity.Identifier)
	if !ok {
		return false
	}
	sym := t.Ref(id)
	if sym == nil {
		return false
	}
	switch sym.Kind {
	case semantic.Contract, semantic.Struct, semantic.Enum:
		return true
	case semantic.Opaque:
		return strings.ToUpper(id.Name[:1]) == id.Name[:1]
	}
	return false
}

func maxUint(bits int) *uint256.Int {
	max := new(uint256.Int).Lsh(uint256.NewInt(1), uint(bits))
	return max.SubUint64(max, 1)
}

// declaredRange is the range every value of an elementary type lies in.
func declaredRange(typ string) Range {
	if bits, ok := uintBits(typ); ok && bits < 256 {
		return BoundedBy(maxUint(bits))
	}
	switch {
	case typ == "bool":
		return BoundedBy(uint256.NewInt(1))
	case strings.HasPrefix(typ, "address"):
		return Bounded()
	}
	return Unbounded()
}

func uintBits(name string) (int, bool) {
	if name == "uint" {
		return 256, true
	}
	if !strings.HasPrefix(name, "uint") {
		return 0, false
	}
	n, err := strconv.Atoi(name[4:])
	if err != nil {
		return 0, false
	}
	return n, true
}

var unitMultipliers = map[string]int64{
	"wei": 1, "gwei": 1e9, "szabo": 1e12, "finney": 1e15, "ether": 1e18,
	"seconds": 1, "minutes": 60, "hours": 3600, "days": 86400, "weeks": 604800, "years": 31536000,
}

// literalValue folds a number literal with its unit into a 256-bit constant.
// Fractions that do not resolve to an integer and overflowing values fail.
func literalValue(lit *solidity.NumberLit) (*uint256.Int, bool) {
	s := strings.ReplaceAll(lit.Value, "_", "")
	b := new(big.Int)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if _, ok := b.SetString(s[2:], 16); !ok {
			return nil, false
		}
	} else {
		mant, exp := s, 0
		if i := strings.IndexAny(s, "eE"); i >= 0 {
			var err error
			mant = s[:i]
			if exp, err = strconv.Atoi(s[i+1:]); err != nil || exp > 100 || exp < -100 {
				return nil, false
			}
		}
		if j := strings.IndexByte(mant, '.'); j >= 0 {
			exp -= len(mant) - j - 1
			mant = mant[:j] + mant[j+1:]
		}
		if _, ok := b.SetString(mant, 10); !ok {
			return nil, false
		}
		if m, ok := unitMultipliers[lit.Unit]; ok {
			b.Mul(b, big.NewInt(m))
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs(exp))), nil)
		if exp >= 0 {
			b.Mul(b, scale)
		} else {
			var rem big.Int
			b.QuoRem(b, scale, &rem)
			if rem.Sign() != 0 {
				return nil, false
			}
		}
		return fromBig(b)
	}
	if m, ok := unitMultipliers[lit.Unit]; ok {
		b.Mul(b, big.NewInt(m))
	}
	return fromBig(b)
}

func fromBig(b *big.Int) (*uint256.Int, bool) {
	v, overflow := uint256.FromBig(b)
	return v, !overflow
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func arith(op string, x, y Value) Value {
	return Value{Labels: x.Labels | y.Labels, Range: foldRange(op, x.Range, y.Range)}
}

func foldRange(op string, x, y Range) Range {
	if x.Kind == RangeConst && y.Kind == RangeConst {
		if v, ok := foldConst(op, &x.Value, &y.Value); ok {
			return Const(v)
		}
		return Unbounded()
	}
	xu, xok := x.Upper()
	yu, yok := y.Upper()
	switch op {
	case "&":
		if yok {
			return BoundedBy(yu)
		}
		if xok {
			return BoundedBy(xu)
		}
	case "%":
		if yok && !yu.IsZero() {
			return BoundedBy(new(uint256.Int).SubUint64(yu, 1))
		}
	case "/", ">>":
		if xok {
			return BoundedBy(xu)
		}
	}
	if x.Kind == RangeUnbounded || y.Kind == RangeUnbounded || x.Kind == RangeUnknown || y.Kind == RangeUnknown {
		return Unbounded()
	}
	if !xok || !yok {
		return Bounded()
	}
	switch op {
	case "+", "*", "**":
		if v, ok := foldConst(op, xu, yu); ok {
			return BoundedBy(v)
		}
		return Unbounded()
	case "-":
		return BoundedBy(xu)
	}
	return Bounded()
}

func foldConst(op string, a, b *uint256.Int) (*uint256.Int, bool) {
	z := new(uint256.Int)
	switch op {
	case "+":
		_, overflow := z.AddOverflow(a, b)
		return z, !overflow
	case "-":
		_, underflow := z.SubOverflow(a, b)
		return z, !underflow
	case "*":
		_, overflow := z.MulOverflow(a, b)
		return z, !overflow
	case "/":
		if b.IsZero() {
			return nil, false
		}
		return z.Div(a, b), true
	case "%":
		if b.IsZero() {
			return nil, false
		}
		return z.Mod(a, b), true
	case "**":
		return expChecked(a, b)
	case "<<":
		if !b.IsUint64() || b.Uint64() >= 256 {
			return z, true
		}
		return z.Lsh(a, uint(b.Uint64())), true
	case ">>":
		if !b.IsUint64() || b.Uint64() >= 256 {
			return z, true
		}
		return z.Rsh(a, uint(b.Uint64())), true
	case "&":
		return z.And(a, b), true
	case "|":
		return z.Or(a, b), true
	case "^":
		return z.Xor(a, b), true
	}
	return nil, false
}

func expChecked(a, b *uint256.Int) (*uint256.Int, bool) {
	if b.IsZero() {
		return uint256.NewInt(1), true
	}
	if a.IsZero() || a.Eq(uint256.NewInt(1)) {
		return new(uint256.Int).Set(a), true
	}
	if !b.IsUint64() || b.Uint64() > 256 {
		return nil, false
	}
	z := uint256.NewInt(1)
	for i := uint64(0); i < b.Uint64(); i++ {
		next, overflow := new(uint256.Int).MulOverflow(z, a)
		if overflow {
			return nil, false
		}
		z = next
	}
	return z, true
}
