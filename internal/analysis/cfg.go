package analysis

import (
	"github.com/dominikbraun/graph"

	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

type EdgeKind int

const (
	EdgeFallthrough EdgeKind = iota
	EdgeTrue
	EdgeFalse
	EdgeBack
	EdgeCall
	EdgeExternalCall
	EdgeReturn
	EdgeRevert
)

var edgeKindNames = [...]string{
	EdgeFallthrough:  "fallthrough",
	EdgeTrue:         "true",
	EdgeFalse:        "false",
	EdgeBack:         "back",
	EdgeCall:         "call",
	EdgeExternalCall: "external-call",
	EdgeReturn:       "return",
	EdgeRevert:       "revert",
}

func (k EdgeKind) String() string { return edgeKindNames[k] }

func (k EdgeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

type Edge struct {
	From int      `json:"from"`
	To   int      `json:"to"`
	Kind EdgeKind `json:"kind"`
	// Target names the callee of call edges, "unknown" when unresolved.
	Target string `json:"target,omitempty"`
}

type InstrKind int

const (
	InstrDecl InstrKind = iota
	InstrAssign
	InstrEval
	InstrCond
	InstrCall
	InstrExternalCall
	InstrReturn
	InstrRevert
	InstrBind
	InstrGuard
	InstrAssembly
)

// GuardKind classifies modifiers that are declared outside the unit and so
// cannot be inlined.
type GuardKind int

const (
	GuardNone GuardKind = iota
	GuardAuth
	GuardLock
)

// Instr is one step of a basic block. Node is the syntax the instruction was
// lowered from and supplies its span.
type Instr struct {
	Kind InstrKind
	Node solidity.Node
	Expr solidity.Expr
	LHS  solidity.Expr
	Op   string
	// Vars holds declared or bound symbols; tuple holes are nil.
	Vars  []*semantic.Symbol
	Call  *CallSite
	Guard GuardKind
	// Unchecked is set inside unchecked { } blocks.
	Unchecked bool
	// Modifier names the inlined modifier the instruction came from.
	Modifier string
}

type BasicBlock struct {
	ID      int      `json:"id"`
	Label   string   `json:"label"`
	StartLn int      `json:"startLine,omitempty"`
	EndLn   int      `json:"endLine,omitempty"`
	Dead    bool     `json:"dead,omitempty"`
	Instrs  []*Instr `json:"-"`
	// Succs and Preds index into CFG.Edges.
	Succs []int `json:"-"`
	Preds []int `json:"-"`
}

// Last returns the final instruction, or nil for an empty block.
func (b *BasicBlock) Last() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	return b.Instrs[len(b.Instrs)-1]
}

// CFG is the control-flow graph of one function with its modifiers inlined.
// Blocks live in an arena and refer to each other by index.
type CFG struct {
	Name       string        `json:"function"`
	Blocks     []*BasicBlock `json:"blocks"`
	Edges      []Edge        `json:"edges"`
	Entry      int           `json:"entry"`
	Exit       int           `json:"exit"`
	RevertExit int           `json:"revertExit"`

	Function *solidity.FunctionDecl `json:"-"`
	Contract *semantic.ContractInfo `json:"-"`

	view graph.Graph[int, int]
}

// Successors returns the outgoing edges of block id.
func (g *CFG) Successors(id int) []Edge {
	out := make([]Edge, 0, len(g.Blocks[id].Succs))
	for _, e := range g.Blocks[id].Succs {
		out = append(out, g.Edges[e])
	}
	return out
}

func (g *CFG) Predecessors(id int) []Edge {
	out := make([]Edge, 0, len(g.Blocks[id].Preds))
	for _, e := range g.Blocks[id].Preds {
		out = append(out, g.Edges[e])
	}
	return out
}

type loopTargets struct {
	brk      int
	cont     int
	contKind EdgeKind
}

type builder struct {
	g         *CFG
	table     *semantic.Table
	contract  *semantic.ContractInfo
	cur       int
	loops     []loopTargets
	returns   []int
	holes     []func()
	unchecked int
	modifier  string
}

// BuildCFG lowers fn into a control-flow graph. Modifiers are inlined at
// their placeholder with their parameters bound to the invocation arguments.
func BuildCFG(fn *solidity.FunctionDecl, contract *semantic.ContractInfo, table *semantic.Table) *CFG {
	g := &CFG{Name: semantic.Entity(contract, fn), Function: fn, Contract: contract}
	b := &builder{g: g, table: table, contract: contract}
	g.Entry = b.newBlock("entry")
	g.Exit = b.newBlock("exit")
	g.RevertExit = b.newBlock("revert")

	body := b.newBlock("body")
	b.edge(g.Entry, body, EdgeFallthrough, "")
	b.cur = body
	b.returns = []int{g.Exit}
	b.inline(fn, 0)
	b.jump(g.Exit, EdgeFallthrough)

	g.markDead()
	g.lineRanges()
	return g
}

func (b *builder) newBlock(label string) int {
	id := len(b.g.Blocks)
	b.g.Blocks = append(b.g.Blocks, &BasicBlock{ID: id, Label: label})
	return id
}

func (b *builder) edge(from, to int, kind EdgeKind, target string) {
	idx := len(b.g.Edges)
	b.g.Edges = append(b.g.Edges, Edge{From: from, To: to, Kind: kind, Target: target})
	b.g.Blocks[from].Succs = append(b.g.Blocks[from].Succs, idx)
	b.g.Blocks[to].Preds = append(b.g.Blocks[to].Preds, idx)
}

// jump ends the current block with an edge to target. Code that follows is
// unreachable until a new block is entered.
func (b *builder) jump(target int, kind EdgeKind) {
	if b.cur >= 0 {
		b.edge(b.cur, target, kind, "")
	}
	b.cur = -1
}

func (b *builder) emit(in *Instr) {
	if b.cur < 0 {
		b.cur = b.newBlock("dead")
	}
	in.Unchecked = b.unchecked > 0
	in.Modifier = b.modifier
	blk := b.g.Blocks[b.cur]
	blk.Instrs = append(blk.Instrs, in)
}

func (b *builder) inline(fn *solidity.FunctionDecl, i int) {
	if i == len(fn.Modifiers) {
		if fn.Body != nil {
			b.stmt(fn.Body)
		}
		return
	}
	inv := fn.Modifiers[i]
	name := inv.Name.String()

	var mod *semantic.Symbol
	if b.contract != nil {
		mod = b.contract.Modifier(name)
	}
	if mod == nil {
		if sym := b.table.Ref(inv.Name.Path[0]); sym != nil && sym.Kind == semantic.Opaque {
			b.guard(inv, name)
		}
		b.inline(fn, i+1)
		return
	}
	decl := mod.Decl.(*solidity.ModifierDecl)
	if decl.Body == nil {
		b.inline(fn, i+1)
		return
	}

	for j, p := range decl.Params {
		if j >= len(inv.Args) || p.Name == nil {
			continue
		}
		b.calls(inv.Args[j])
		b.emit(&Instr{Kind: InstrBind, Node: inv, Expr: inv.Args[j], Vars: []*semantic.Symbol{b.table.SymbolOf(p)}})
	}

	saved := b.modifier
	b.modifier = name
	after := b.newBlock("after " + name)
	b.holes = append(b.holes, func() {
		cont := b.newBlock("resume " + name)
		b.returns = append(b.returns, cont)
		b.modifier = ""
		if i+1 < len(fn.Modifiers) {
			b.modifier = fn.Modifiers[i+1].Name.String()
		}
		b.inline(fn, i+1)
		b.modifier = name
		b.returns = b.returns[:len(b.returns)-1]
		b.jump(cont, EdgeFallthrough)
		b.cur = cont
	})
	b.returns = append(b.returns, after)
	b.stmt(decl.Body)
	b.returns = b.returns[:len(b.returns)-1]
	b.holes = b.holes[:len(b.holes)-1]
	b.jump(after, EdgeFallthrough)
	b.cur = after
	b.modifier = saved
}

func (b *builder) guard(inv *solidity.ModifierInvocation, name string) {
	kind := classifyGuard(name)
	if kind == GuardNone {
		return
	}
	b.emit(&Instr{Kind: InstrGuard, Node: inv, Guard: kind})
	next := b.newBlock("guarded")
	b.jump(next, EdgeFallthrough)
	b.cur = next
}

func (b *builder) stmt(s solidity.Stmt) {
	switch s := s.(type) {
	case *solidity.Block:
		if s.Unchecked {
			b.unchecked++
			defer func() { b.unchecked-- }()
		}
		for _, st := range s.Stmts {
			b.stmt(st)
		}
	case *solidity.VarDeclStmt:
		b.calls(s.Value)
		vars := make([]*semantic.Symbol, len(s.Vars))
		for i, v := range s.Vars {
			if v != nil {
				vars[i] = b.table.SymbolOf(v)
			}
		}
		b.emit(&Instr{Kind: InstrDecl, Node: s, Expr: s.Value, Vars: vars})
	case *solidity.ExprStmt:
		b.exprStmt(s)
	case *solidity.IfStmt:
		then := b.newBlock("if.then")
		join := b.newBlock("if.end")
		els := join
		if s.Else != nil {
			els = b.newBlock("if.else")
		}
		b.branch(s.Cond, then, els)
		b.cur = then
		b.stmt(s.Then)
		b.jump(join, EdgeFallthrough)
		if s.Else != nil {
			b.cur = els
			b.stmt(s.Else)
			b.jump(join, EdgeFallthrough)
		}
		b.cur = join
	case *solidity.WhileStmt:
		header := b.newBlock("while.cond")
		body := b.newBlock("while.body")
		exit := b.newBlock("while.end")
		b.jump(header, EdgeFallthrough)
		b.cur = header
		b.branch(s.Cond, body, exit)
		b.loops = append(b.loops, loopTargets{brk: exit, cont: header, contKind: EdgeBack})
		b.cur = body
		b.stmt(s.Body)
		b.jump(header, EdgeBack)
		b.loops = b.loops[:len(b.loops)-1]
		b.cur = exit
	case *solidity.DoWhileStmt:
		body := b.newBlock("do.body")
		cond := b.newBlock("do.cond")
		latch := b.newBlock("do.latch")
		exit := b.newBlock("do.end")
		b.jump(body, EdgeFallthrough)
		b.loops = append(b.loops, loopTargets{brk: exit, cont: cond, contKind: EdgeFallthrough})
		b.cur = body
		b.stmt(s.Body)
		b.jump(cond, EdgeFallthrough)
		b.loops = b.loops[:len(b.loops)-1]
		b.cur = cond
		b.branch(s.Cond, latch, exit)
		b.edge(latch, body, EdgeBack, "")
		b.cur = exit
	case *solidity.ForStmt:
		if s.Init != nil {
			b.stmt(s.Init)
		}
		header := b.newBlock("for.cond")
		body := b.newBlock("for.body")
		post := b.newBlock("for.post")
		exit := b.newBlock("for.end")
		b.jump(header, EdgeFallthrough)
		b.cur = header
		if s.Cond != nil {
			b.branch(s.Cond, body, exit)
		} else {
			b.jump(body, EdgeFallthrough)
		}
		b.loops = append(b.loops, loopTargets{brk: exit, cont: post, contKind: EdgeFallthrough})
		b.cur = body
		b.stmt(s.Body)
		b.jump(post, EdgeFallthrough)
		b.loops = b.loops[:len(b.loops)-1]
		b.cur = post
		if s.Post != nil {
			b.calls(s.Post)
			b.emit(exprInstr(s.Post, s.Post))
		}
		b.jump(header, EdgeBack)
		b.cur = exit
	case *solidity.ReturnStmt:
		b.calls(s.Value)
		b.emit(&Instr{Kind: InstrReturn, Node: s, Expr: s.Value})
		b.jump(b.returns[len(b.returns)-1], EdgeReturn)
	case *solidity.BreakStmt:
		if n := len(b.loops); n > 0 {
			b.jump(b.loops[n-1].brk, EdgeFallthrough)
		}
	case *solidity.ContinueStmt:
		if n := len(b.loops); n > 0 {
			b.jump(b.loops[n-1].cont, b.loops[n-1].contKind)
		}
	case *solidity.EmitStmt:
		for _, a := range s.Call.Args {
			b.calls(a)
		}
		b.emit(&Instr{Kind: InstrEval, Node: s, Expr: s.Call})
	case *solidity.RevertStmt:
		for _, a := range s.Args {
			b.calls(a)
		}
		b.emit(&Instr{Kind: InstrRevert, Node: s})
		b.jump(b.g.RevertExit, EdgeRevert)
	case *solidity.ThrowStmt:
		b.emit(&Instr{Kind: InstrRevert, Node: s})
		b.jump(b.g.RevertExit, EdgeRevert)
	case *solidity.PlaceholderStmt:
		if n := len(b.holes); n > 0 {
			b.holes[n-1]()
		}
	case *solidity.AssemblyStmt:
		b.emit(&Instr{Kind: InstrAssembly, Node: s})
	case *solidity.TryStmt:
		b.tryStmt(s)
	}
}

func (b *builder) tryStmt(s *solidity.TryStmt) {
	b.calls(s.Call)
	b.emit(&Instr{Kind: InstrCond, Node: s.Call, Expr: s.Call})
	from := b.cur
	body := b.newBlock("try")
	join := b.newBlock("try.end")
	b.edge(from, body, EdgeTrue, "")

	b.cur = body
	b.emit(&Instr{Kind: InstrDecl, Node: s, Expr: s.Call, Vars: b.paramSymbols(s.Returns)})
	b.stmt(s.Body)
	b.jump(join, EdgeFallthrough)
	for _, c := range s.Catches {
		cb := b.newBlock("catch")
		b.edge(from, cb, EdgeFalse, "")
		b.cur = cb
		if len(c.Params) > 0 {
			b.emit(&Instr{Kind: InstrDecl, Node: c, Expr: s.Call, Vars: b.paramSymbols(c.Params)})
		}
		b.stmt(c.Body)
		b.jump(join, EdgeFallthrough)
	}
	b.cur = join
}

func (b *builder) paramSymbols(ps []*solidity.Param) []*semantic.Symbol {
	out := make([]*semantic.Symbol, len(ps))
	for i, p := range ps {
		if p.Name != nil {
			out[i] = b.table.SymbolOf(p)
		}
	}
	return out
}

func (b *builder) exprStmt(s *solidity.ExprStmt) {
	if call, ok := solidity.Unparen(s.X).(*solidity.CallExpr); ok {
		switch builtinCallee(b.table, call) {
		case "require", "assert":
			if len(call.Args) == 0 {
				break
			}
			for _, a := range call.Args[1:] {
				b.calls(a)
			}
			ok := b.newBlock("require.ok")
			b.branch(call.Args[0], ok, b.g.RevertExit)
			b.cur = ok
			return
		case "selfdestruct", "suicide":
			b.calls(s.X)
			b.emit(&Instr{Kind: InstrEval, Node: s, Expr: s.X})
			b.jump(b.g.Exit, EdgeReturn)
			return
		}
	}
	b.calls(s.X)
	b.emit(exprInstr(s.X, s))
}

func exprInstr(x solidity.Expr, node solidity.Node) *Instr {
	switch e := solidity.Unparen(x).(type) {
	case *solidity.AssignExpr:
		return &Instr{Kind: InstrAssign, Node: node, LHS: e.LHS, Expr: e.RHS, Op: e.Op}
	case *solidity.UnaryExpr:
		if e.Op == "++" || e.Op == "--" || e.Op == "delete" {
			return &Instr{Kind: InstrAssign, Node: node, LHS: e.X, Op: e.Op}
		}
	}
	return &Instr{Kind: InstrEval, Node: node, Expr: x}
}

// branch lowers a condition into the current block. Short-circuit operators
// become separate blocks so every condition block has exactly one true and
// one false successor.
func (b *builder) branch(e solidity.Expr, t, f int) {
	if x, ok := solidity.Unparen(e).(*solidity.BinaryExpr); ok {
		switch x.Op {
		case "&&":
			mid := b.newBlock("and")
			b.branch(x.X, mid, f)
			b.cur = mid
			b.branch(x.Y, t, f)
			return
		case "||":
			mid := b.newBlock("or")
			b.branch(x.X, t, mid)
			b.cur = mid
			b.branch(x.Y, t, f)
			return
		}
	}
	b.calls(e)
	b.emit(&Instr{Kind: InstrCond, Node: e, Expr: e})
	from := b.cur
	b.edge(from, t, EdgeTrue, "")
	b.edge(from, f, EdgeFalse, "")
	b.cur = -1
}

// calls splits out every call inside e, innermost first, so each call ends
// its block with a call or external-call edge.
func (b *builder) calls(e solidity.Expr) {
	if e == nil {
		return
	}
	if c, ok := e.(*solidity.CallExpr); ok {
		b.calls(c.Fun)
		for _, a := range c.Args {
			b.calls(a)
		}
		if site := classifyCall(b.table, b.contract, c); site != nil {
			b.callSite(site)
		}
		return
	}
	for _, ch := range e.Children() {
		if x, ok := ch.(solidity.Expr); ok {
			b.calls(x)
		}
	}
}

func (b *builder) callSite(site *CallSite) {
	kind, edge := InstrCall, EdgeCall
	if site.External {
		kind, edge = InstrExternalCall, EdgeExternalCall
	}
	b.emit(&Instr{Kind: kind, Node: site.Call, Expr: site.Call, Call: site})
	next := b.newBlock("")
	b.edge(b.cur, next, edge, site.Target)
	b.cur = next
}

// lineRanges fills the block line spans from their instructions.
func (g *CFG) lineRanges() {
	for _, blk := range g.Blocks {
		for _, in := range blk.Instrs {
			sp := in.Node.Span()
			if blk.StartLn == 0 || sp.Start.Line < blk.StartLn {
				blk.StartLn = sp.Start.Line
			}
			if sp.End.Line > blk.EndLn {
				blk.EndLn = sp.End.Line
			}
		}
	}
}
