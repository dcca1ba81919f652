package analysis

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

func contractFacts(t *testing.T, src, contract string) *ContractFacts {
	t.Helper()
	unit, errs := solidity.Parse("test.sol", src)
	require.Empty(t, errs)
	tbl, rerrs := semantic.Resolve(unit)
	require.Empty(t, rerrs)
	c := tbl.Contract(contract)
	require.NotNil(t, c)
	return NewContractFacts(unit, tbl, c, Options{AssumeCheckedArithmetic: true})
}

func functionFacts(t *testing.T, cf *ContractFacts, name string) *FunctionFacts {
	t.Helper()
	for _, fn := range cf.Targets() {
		if fn.DisplayName() == name {
			ff, err := cf.Facts(fn)
			require.NoError(t, err)
			require.NotNil(t, ff)
			return ff
		}
	}
	t.Fatalf("function %s not found", name)
	return nil
}

// locate returns the block and index of the first instruction matching pred.
func locate(t *testing.T, g *CFG, pred func(*Instr) bool) (*BasicBlock, int) {
	t.Helper()
	for _, blk := range g.Blocks {
		for i, in := range blk.Instrs {
			if pred(in) {
				return blk, i
			}
		}
	}
	t.Fatalf("no matching instruction in %s", g.Name)
	return nil, 0
}

func ofKind(k InstrKind) func(*Instr) bool {
	return func(in *Instr) bool { return in.Kind == k }
}

func edgeKinds(edges []Edge) []EdgeKind {
	out := make([]EdgeKind, len(edges))
	for i, e := range edges {
		out[i] = e.Kind
	}
	return out
}

func countEdges(g *CFG, kind EdgeKind) int {
	n := 0
	for _, e := range g.Edges {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

const shapes = `pragma solidity ^0.8.0;
interface IToken { function transfer(address to, uint256 amount) external returns (bool); }
contract Shapes {
    uint256 total;
    IToken token;

    function branch(uint256 a) public {
        if (a > 10) { total = 1; } else { total = 2; }
        total = 3;
    }
    function guard(uint256 a) public {
        require(a != 0, "zero");
        total = a;
    }
    function both(uint256 a, uint256 b) public {
        if (a > 1 && b > 1) { total = a; }
    }
    function loops(uint256 n) public {
        uint256 i = 0;
        while (i < n) { i++; if (i == 5) { continue; } }
        for (uint256 j = 0; j < n; j++) { total += j; }
    }
    function calls(address payable to) public {
        _bump();
        token.transfer(to, 1);
        (bool ok, ) = to.call{value: 1}("");
        require(ok);
    }
    function early() public returns (uint256) {
        return 1;
        uint256 unused = 2;
    }
    function _bump() internal { total += 1; }
}`

func TestConditionalsHaveTrueAndFalseEdges(t *testing.T) {
	cf := contractFacts(t, shapes, "Shapes")

	for _, name := range []string{"branch", "guard", "both"} {
		t.Run(name, func(t *testing.T) {
			ff := functionFacts(t, cf, name)
			conds := 0
			for _, blk := range ff.CFG.Blocks {
				last := blk.Last()
				if last == nil || last.Kind != InstrCond {
					continue
				}
				conds++
				assert.ElementsMatch(t, []EdgeKind{EdgeTrue, EdgeFalse}, edgeKinds(ff.CFG.Successors(blk.ID)))
			}
			assert.NotZero(t, conds)
		})
	}
}

func TestRequireFalseEdgeReverts(t *testing.T) {
	ff := functionFacts(t, contractFacts(t, shapes, "Shapes"), "guard")
	blk, _ := locate(t, ff.CFG, ofKind(InstrCond))
	var toRevert bool
	for _, e := range ff.CFG.Successors(blk.ID) {
		if e.Kind == EdgeFalse {
			toRevert = e.To == ff.CFG.RevertExit
		}
	}
	assert.True(t, toRevert)
	assert.False(t, ff.CFG.Blocks[ff.CFG.RevertExit].Dead)
}

func TestShortCircuitSplitsConditions(t *testing.T) {
	ff := functionFacts(t, contractFacts(t, shapes, "Shapes"), "both")
	conds := 0
	ff.Visit(func(_ *BasicBlock, _ int, in *Instr) {
		if in.Kind == InstrCond {
			conds++
			_, isAnd := in.Expr.(*solidity.BinaryExpr)
			assert.True(t, isAnd)
			assert.NotEqual(t, "&&", in.Expr.(*solidity.BinaryExpr).Op)
		}
	})
	assert.Equal(t, 2, conds)
}

func TestLoopsHaveBackEdges(t *testing.T) {
	ff := functionFacts(t, contractFacts(t, shapes, "Shapes"), "loops")
	// while latch, continue, for post
	assert.Equal(t, 3, countEdges(ff.CFG, EdgeBack))
	for _, e := range ff.CFG.Edges {
		if e.Kind == EdgeBack {
			assert.True(t, ff.Dom.Dominates(e.To, e.From), "back edge %d->%d", e.From, e.To)
		}
	}
}

func TestReachable(t *testing.T) {
	cf := contractFacts(t, shapes, "Shapes")

	loops := functionFacts(t, cf, "loops")
	for _, e := range loops.CFG.Edges {
		if e.Kind == EdgeBack {
			assert.True(t, loops.Reachable(e.To, e.To), "loop header %d", e.To)
		}
	}

	branch := functionFacts(t, cf, "branch")
	g := branch.CFG
	assert.True(t, g.Reachable(g.Entry, g.Entry))
	assert.False(t, branch.Reachable(g.Entry, g.Entry), "no loop returns to the entry")
	assert.True(t, branch.Reachable(g.Entry, g.Exit))
	assert.False(t, branch.Reachable(g.Exit, g.Entry))
}

func TestCallsEndBlocks(t *testing.T) {
	ff := functionFacts(t, contractFacts(t, shapes, "Shapes"), "calls")

	var targets []string
	for _, e := range ff.CFG.Edges {
		switch e.Kind {
		case EdgeCall, EdgeExternalCall:
			targets = append(targets, e.Kind.String()+" "+e.Target)
		}
	}
	assert.Equal(t, []string{
		"call Shapes._bump",
		"external-call IToken.transfer",
		"external-call unknown",
	}, targets)

	blk, _ := locate(t, ff.CFG, func(in *Instr) bool { return in.Call != nil && in.Call.LowLevel == "call" })
	assert.Equal(t, InstrExternalCall, blk.Last().Kind)
	assert.NotNil(t, blk.Last().Call.Value)
}

func TestFunctionPointerCalls(t *testing.T) {
	src := `pragma solidity ^0.8.0;
contract Hooks {
    function(uint256) external returns (uint256) cb;
    function(uint256) internal pure returns (uint256) fn;
    function run(bytes calldata d) public {
        cb(d[4:].length);
        fn(1);
    }
}`
	ff := functionFacts(t, contractFacts(t, src, "Hooks"), "run")
	assert.Equal(t, 1, countEdges(ff.CFG, EdgeExternalCall))
	assert.Equal(t, 1, countEdges(ff.CFG, EdgeCall))
}

func TestCodeAfterReturnIsDead(t *testing.T) {
	ff := functionFacts(t, contractFacts(t, shapes, "Shapes"), "early")
	blk, _ := locate(t, ff.CFG, ofKind(InstrDecl))
	assert.True(t, blk.Dead)
	assert.False(t, ff.CFG.Blocks[ff.CFG.Exit].Dead)
	assert.False(t, ff.CFG.Blocks[ff.CFG.Entry].Dead)
}

func TestDominators(t *testing.T) {
	ff := functionFacts(t, contractFacts(t, shapes, "Shapes"), "branch")
	g := ff.CFG
	for _, blk := range g.Blocks {
		if !blk.Dead {
			assert.True(t, ff.Dom.Dominates(g.Entry, blk.ID))
		}
	}
	cond, _ := locate(t, g, ofKind(InstrCond))
	final, _ := locate(t, g, func(in *Instr) bool {
		return in.Kind == InstrAssign && solidity.ExprString(in.Expr) == "3"
	})
	assert.True(t, ff.Dom.StrictlyDominates(cond.ID, final.ID))
	for _, e := range g.Successors(cond.ID) {
		assert.False(t, ff.Dom.Dominates(e.To, final.ID))
	}
}

func TestWriteDOT(t *testing.T) {
	ff := functionFacts(t, contractFacts(t, shapes, "Shapes"), "branch")
	var buf bytes.Buffer
	require.NoError(t, ff.CFG.WriteDOT(&buf))
	assert.Contains(t, buf.String(), "digraph")
	assert.Contains(t, buf.String(), "true")
}

const guarded = `pragma solidity ^0.8.0;
contract Vault {
    address owner;
    uint256 x;
    bool locked;

    modifier onlyOwner() { require(msg.sender == owner); _; }
    modifier noReentry() { require(!locked); locked = true; _; locked = false; }

    function set(uint256 v) public onlyOwner { x = v; }
    function open(uint256 v) public { x = v; }
    function viaHelper(uint256 v) public { _checkOwner(); x = v; }
    function ownerOnly(uint256 v) public { if (msg.sender == owner) { x = v; } x = 0; }
    function negated(uint256 v) public { if (msg.sender != owner) { revert(); } x = v; }
    function wrapped(uint256 v) public noReentry { _setX(v); }
    function _checkOwner() internal view { require(msg.sender == owner, "owner"); }
    function _setX(uint256 v) internal { x = v; }
}`

func authorizedAt(t *testing.T, ff *FunctionFacts, rhs string) bool {
	t.Helper()
	blk, _ := locate(t, ff.CFG, func(in *Instr) bool {
		return in.Kind == InstrAssign && solidity.ExprString(in.Expr) == rhs
	})
	return ff.Authorized(blk.ID)
}

func TestAuthorization(t *testing.T) {
	cf := contractFacts(t, guarded, "Vault")
	tests := []struct {
		fn   string
		rhs  string
		want bool
	}{
		{fn: "set", rhs: "v", want: true},
		{fn: "open", rhs: "v", want: false},
		{fn: "viaHelper", rhs: "v", want: true},
		{fn: "ownerOnly", rhs: "v", want: true},
		{fn: "ownerOnly", rhs: "0", want: false},
		{fn: "negated", rhs: "v", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.fn+" "+tt.rhs, func(t *testing.T) {
			assert.Equal(t, tt.want, authorizedAt(t, functionFacts(t, cf, tt.fn), tt.rhs))
		})
	}
}

func TestModifierInlining(t *testing.T) {
	ff := functionFacts(t, contractFacts(t, guarded, "Vault"), "set")
	blk, i := locate(t, ff.CFG, ofKind(InstrCond))
	assert.Equal(t, "onlyOwner", blk.Instrs[i].Modifier)
	body, j := locate(t, ff.CFG, ofKind(InstrAssign))
	assert.Empty(t, body.Instrs[j].Modifier)
}

func TestProtectedStorageAndSummaries(t *testing.T) {
	cf := contractFacts(t, guarded, "Vault")
	byName := map[string]*semantic.Symbol{}
	for _, sym := range cf.Contract.StateVars() {
		byName[sym.Name] = sym
	}
	assert.True(t, cf.Protected(byName["owner"]))
	assert.False(t, cf.Protected(byName["x"]))

	ff := functionFacts(t, cf, "wrapped")
	blk, i := locate(t, ff.CFG, func(in *Instr) bool { return in.Kind == InstrCall })
	callee := blk.Instrs[i].Call.Callee
	require.NotNil(t, callee)
	assert.Equal(t, []*semantic.Symbol{byName["x"]}, ff.CalleeWrites(callee))
	assert.Equal(t, []*semantic.Symbol{byName["x"]}, ff.ExposedWrites(callee))
	assert.True(t, ff.IsLockVar(byName["locked"]))
	assert.True(t, ff.Locked(blk.ID, i))
}

func TestLockVariables(t *testing.T) {
	src := `pragma solidity ^0.8.0;
contract Locks {
    bool locked;
    bool open;
    uint256 round;
    bool constant SET = true;
    function a() public { require(!locked); locked = true; }
    function b() public { require(locked != SET); locked = SET; }
    function c() public { require(open); open = true; }
    function d() public { require(round == 0); round = 1; }
    function e() public { if (locked) { open = false; } locked = true; }
}`
	cf := contractFacts(t, src, "Locks")
	byName := map[string]*semantic.Symbol{}
	for _, sym := range cf.Contract.StateVars() {
		byName[sym.Name] = sym
	}
	tests := []struct {
		fn   string
		sym  string
		want bool
	}{
		{fn: "a", sym: "locked", want: true},
		{fn: "b", sym: "locked", want: true},
		{fn: "c", sym: "open", want: false},
		{fn: "d", sym: "round", want: false},
		{fn: "e", sym: "locked", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			ff := functionFacts(t, cf, tt.fn)
			assert.Equal(t, tt.want, ff.IsLockVar(byName[tt.sym]))
		})
	}
}

func TestClassifyGuard(t *testing.T) {
	tests := map[string]GuardKind{
		"onlyOwner":     GuardAuth,
		"onlyRole":      GuardAuth,
		"requiresAuth":  GuardAuth,
		"nonReentrant":  GuardLock,
		"lock":          GuardLock,
		"whenNotPaused": GuardNone,
	}
	for name, want := range tests {
		assert.Equal(t, want, classifyGuard(name), name)
	}
}
