package solidity

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vaultSource = `// SPDX-License-Identifier: MIT
pragma solidity ^0.8.19;

import "./IERC20.sol";
import {Ownable as O} from "./Ownable.sol";

interface IReceiver {
    function onReceive(address from, uint256 amount) external returns (bool);
}

library SafeCast {
    function toUint128(uint256 v) internal pure returns (uint128) {
        require(v <= type(uint128).max, "overflow");
        return uint128(v);
    }
}

/// @title Vault
/// @notice Holds deposits.
abstract contract Vault is IReceiver, Base(1, "x") {
    using SafeCast for uint256;

    struct Position { uint256 amount; address owner; }
    enum State { Open, Closed }

    event Deposited(address indexed who, uint256 amount);
    error NotOwner(address caller);

    /// @custom:protected
    address public owner;
    mapping(address => uint256) internal balances;
    mapping(address => mapping(uint256 => Position)) positions;
    uint256 public constant FEE = 3 ether;
    uint256[] values;
    bool private locked;

    modifier onlyOwner() {
        if (msg.sender != owner) revert NotOwner(msg.sender);
        _;
    }

    modifier nonReentrant {
        require(!locked);
        locked = true;
        _;
        locked = false;
    }

    constructor(address o) payable {
        owner = o;
    }

    receive() external payable {}

    fallback() external {}

    function deposit() external payable virtual {
        balances[msg.sender] += msg.value;
        emit Deposited(msg.sender, msg.value);
    }

    function withdraw(uint256 amount) public nonReentrant returns (bool ok, bytes memory data) {
        require(balances[msg.sender] >= amount, "insufficient");
        (ok, data) = msg.sender.call{value: amount, gas: 5000}("");
        (bool sent, ) = payable(owner).call{value: 0}("");
        unchecked {
            balances[msg.sender] -= amount;
        }
        for (uint256 i = 0; i < values.length; i++) {
            if (values[i] == 0) continue;
            else if (values[i] > 10) {
                break;
            }
        }
        while (amount > 0) amount--;
        do {
            amount = amount ** 2 ** 1;
        } while (amount < 100 && !sent);
        uint256[] memory tmp = new uint256[](3);
        tmp[0] = amount > 1 ? -(-1) : (1 + 2) * 3;
        delete values;
        IReceiver(owner).onReceive({from: msg.sender, amount: amount});
        try IReceiver(owner).onReceive(msg.sender, 1) returns (bool r) {
            ok = r;
        } catch Error(string memory reason) {
            revert(reason);
        } catch {
            revert();
        }
        assembly {
            let x := mload(0x40)
        }
        address payable p = payable(msg.sender);
        p.transfer(1 wei);
        return (ok, data);
    }

    function abstractOne() public view virtual returns (uint256);
}
`

func TestParseVault(t *testing.T) {
	unit, errs := Parse("Vault.sol", vaultSource)
	require.Empty(t, errs)

	contracts := unit.Contracts()
	require.Len(t, contracts, 3)
	assert.Equal(t, "interface", contracts[0].Keyword)
	assert.Equal(t, "library", contracts[1].Keyword)

	vault := contracts[2]
	assert.True(t, vault.Abstract)
	assert.Equal(t, "Vault", vault.Name.Name)
	assert.Equal(t, "@title Vault\n@notice Holds deposits.", vault.Doc)
	require.Len(t, vault.Bases, 2)
	assert.True(t, vault.Bases[1].HasArgs)
	assert.Len(t, vault.Bases[1].Args, 2)

	var owner *StateVarDecl
	var withdraw *FunctionDecl
	for _, m := range vault.Members {
		switch d := m.(type) {
		case *StateVarDecl:
			if d.Name.Name == "owner" {
				owner = d
			}
		case *FunctionDecl:
			if d.DisplayName() == "withdraw" {
				withdraw = d
			}
		}
	}
	require.NotNil(t, owner)
	assert.Equal(t, "@custom:protected", owner.Doc)
	assert.Equal(t, "public", owner.Visibility)

	require.NotNil(t, withdraw)
	assert.Equal(t, "public", withdraw.Visibility)
	require.Len(t, withdraw.Modifiers, 1)
	assert.Equal(t, "nonReentrant", withdraw.Modifiers[0].Name.String())
	assert.Len(t, withdraw.Returns, 2)
	assert.True(t, withdraw.IsEntryPoint())

	major, minor, ok := unit.MinCompilerVersion()
	require.True(t, ok)
	assert.Equal(t, 0, major)
	assert.Equal(t, 8, minor)
	assert.True(t, unit.CheckedArithmetic())
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, e Expr)
	}{
		{
			name:  "multiplication binds tighter than addition",
			input: "a + b * c",
			check: func(t *testing.T, e Expr) {
				b := e.(*BinaryExpr)
				assert.Equal(t, "+", b.Op)
				assert.Equal(t, "*", b.Y.(*BinaryExpr).Op)
			},
		},
		{
			name:  "exponent is right associative",
			input: "a ** b ** c",
			check: func(t *testing.T, e Expr) {
				b := e.(*BinaryExpr)
				assert.Equal(t, "a", b.X.(*Identifier).Name)
				assert.Equal(t, "**", b.Y.(*BinaryExpr).Op)
			},
		},
		{
			name:  "subtraction is left associative",
			input: "a - b - c",
			check: func(t *testing.T, e Expr) {
				b := e.(*BinaryExpr)
				assert.Equal(t, "c", b.Y.(*Identifier).Name)
				assert.Equal(t, "-", b.X.(*BinaryExpr).Op)
			},
		},
		{
			name:  "call options",
			input: "to.call{value: 1 ether}(data)",
			check: func(t *testing.T, e Expr) {
				call := e.(*CallExpr)
				opts := call.Fun.(*CallOptionsExpr)
				assert.Equal(t, []string{"value"}, opts.Names)
				assert.Equal(t, "ether", opts.Values[0].(*NumberLit).Unit)
			},
		},
		{
			name:  "ternary with assignment",
			input: "x = c ? 1 : 2",
			check: func(t *testing.T, e Expr) {
				a := e.(*AssignExpr)
				assert.Equal(t, KindConditional, a.RHS.Kind())
			},
		},
		{
			name:  "tuple with hole",
			input: "(a, , b)",
			check: func(t *testing.T, e Expr) {
				tup := e.(*TupleExpr)
				require.Len(t, tup.Elems, 3)
				assert.Nil(t, tup.Elems[1])
			},
		},
		{
			name:  "logical operators",
			input: "a && b || !c",
			check: func(t *testing.T, e Expr) {
				b := e.(*BinaryExpr)
				assert.Equal(t, "||", b.Op)
				assert.Equal(t, "&&", b.X.(*BinaryExpr).Op)
				assert.Equal(t, "!", b.Y.(*UnaryExpr).Op)
			},
		},
		{
			name:  "calldata slice",
			input: "msg.data[4:len]",
			check: func(t *testing.T, e Expr) {
				sl := e.(*SliceExpr)
				assert.Equal(t, "msg.data", ExprString(sl.X))
				assert.Equal(t, "4", sl.Low.(*NumberLit).Value)
				assert.Equal(t, "len", sl.High.(*Identifier).Name)
			},
		},
		{
			name:  "open slice bounds",
			input: "d[:4][1:]",
			check: func(t *testing.T, e Expr) {
				outer := e.(*SliceExpr)
				assert.Nil(t, outer.High)
				inner := outer.X.(*SliceExpr)
				assert.Nil(t, inner.Low)
				assert.Equal(t, "d[:4][1:]", ExprString(e))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "contract C { function f() public { " + tt.input + "; } }"
			unit, errs := Parse("expr.sol", src)
			require.Empty(t, errs)
			fn := unit.Contracts()[0].Members[0].(*FunctionDecl)
			stmt := fn.Body.Stmts[0].(*ExprStmt)
			tt.check(t, stmt.X)
		})
	}
}

func TestParseFunctionTypes(t *testing.T) {
	src := `contract C {
    function(uint256) external returns (uint256) cb;
    function(bytes calldata) internal view public hook;
    function() external payable { }
    function run(function(uint256) external returns (uint256) f) external {
        function(uint256) external returns (uint256) g = f;
        cb = g;
    }
}`
	unit, errs := Parse("types.sol", src)
	require.Empty(t, errs)
	members := unit.Contracts()[0].Members
	require.Len(t, members, 4)

	cb := members[0].(*StateVarDecl)
	assert.Equal(t, "cb", cb.Name.Name)
	ft := cb.Type.(*FunctionType)
	assert.Equal(t, "external", ft.Visibility)
	require.Len(t, ft.Params, 1)
	require.Len(t, ft.Returns, 1)
	assert.Equal(t, "function(uint256) external returns (uint256)", TypeString(cb.Type))

	hook := members[1].(*StateVarDecl)
	assert.Equal(t, "public", hook.Visibility)
	assert.Equal(t, "view", hook.Type.(*FunctionType).Mutability)
	assert.Equal(t, "internal", hook.Type.(*FunctionType).Visibility)

	fallback := members[2].(*FunctionDecl)
	assert.NotNil(t, fallback.Body)

	run := members[3].(*FunctionDecl)
	require.Len(t, run.Params, 1)
	assert.IsType(t, &FunctionType{}, run.Params[0].Type)
	decl := run.Body.Stmts[0].(*VarDeclStmt)
	assert.Equal(t, KindFunctionType, decl.Vars[0].Type.Kind())
}

func TestParseRecoversAndCollectsAllErrors(t *testing.T) {
	src := `pragma solidity ^0.8.0;

contract A {
    uint256 x;
    function broken( public {
        x = 1;
    }
    function ok() public {
        x = 2;
    }
    function alsoBroken() public {
        x = = 3;
    }
}

contract B {
    function fine() external {}
}

contract C is {
}

contract D {
    function f() public {}
}
`
	unit, errs := Parse("broken.sol", src)
	require.Len(t, errs, 3)
	assert.Equal(t, 5, errs[0].Span.Start.Line)
	assert.Equal(t, 12, errs[1].Span.Start.Line)
	assert.Equal(t, 20, errs[2].Span.Start.Line)
	assert.Contains(t, errs[0].Error(), "broken.sol:5:")
	assert.Contains(t, errs[0].Error(), "syntax error: expected")

	var names []string
	for _, c := range unit.Contracts() {
		names = append(names, c.Name.Name)
	}
	assert.Equal(t, []string{"A", "B", "D"}, names)

	a := unit.Contracts()[0]
	var members []string
	for _, m := range a.Members {
		switch d := m.(type) {
		case *StateVarDecl:
			members = append(members, d.Name.Name)
		case *FunctionDecl:
			members = append(members, d.DisplayName())
		}
	}
	assert.Equal(t, []string{"x", "ok"}, members)
}

func TestParseUnterminatedInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "string", input: "contract C { string s = \"abc;\n}"},
		{name: "comment", input: "contract C { /* never closed"},
		{name: "missing brace", input: "contract C { function f() public {"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := Parse("bad.sol", tt.input)
			assert.NotEmpty(t, errs)
			assert.Error(t, errs.Err())
		})
	}
}

func TestSpansNestAndNodesHaveOneParent(t *testing.T) {
	unit, errs := Parse("Vault.sol", vaultSource)
	require.Empty(t, errs)

	parents := map[Node]int{}
	var walk func(n Node)
	walk = func(n Node) {
		for _, c := range n.Children() {
			assert.Truef(t, n.Span().Contains(c.Span()), "%s %s does not contain %s %s", n.Kind(), n.Span(), c.Kind(), c.Span())
			parents[c]++
			walk(c)
		}
	}
	walk(unit.Root)
	for n, count := range parents {
		assert.Equalf(t, 1, count, "%s at %s has %d parents", n.Kind(), n.Span(), count)
	}
}

func TestRoundTrip(t *testing.T) {
	sources := map[string]string{
		"vault": vaultSource,
		"small": `contract C {
    uint x = - -1;
    function f(uint a) public returns (uint) {
        (uint b, , uint c) = g();
        x = (a + b) * c;
        if (a > 0) x++; else if (a == 0) { x--; } else revert("no");
        return x;
    }
}`,
		"pointers": `contract P {
    function(uint256) external returns (uint256) cb;
    function(bytes calldata) internal view hook;
    function head(bytes calldata d, function(uint256) external returns (uint256) f) external returns (bytes calldata) {
        uint256 n = f(d[4:].length);
        return d[:n];
    }
}`,
	}
	ignoreSpans := cmpopts.IgnoreTypes(Span{})

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			first, errs := Parse(name+".sol", src)
			require.Empty(t, errs)

			printed := Print(first.Root)
			second, errs := Parse(name+".sol", printed)
			require.Empty(t, errs, printed)

			if diff := cmp.Diff(first.Root, second.Root, ignoreSpans); diff != "" {
				t.Errorf("round trip mismatch (-first +second):\n%s\nprinted:\n%s", diff, printed)
			}
			assert.Equal(t, printed, Print(second.Root))
		})
	}
}

func TestIsElementaryType(t *testing.T) {
	for _, name := range []string{"uint256", "int8", "bytes32", "bytes1", "address", "bool", "string", "uint"} {
		assert.True(t, IsElementaryType(name), name)
	}
	for _, name := range []string{"uint7", "bytes33", "uint264", "Token", "int0"} {
		assert.False(t, IsElementaryType(name), name)
	}
}

func TestNatSpecAttachment(t *testing.T) {
	src := `contract C {
    /// first
    // plain comment resets
    uint a;
    /**
     * @custom:protected
     */
    uint b;
}`
	unit, errs := Parse("doc.sol", src)
	require.Empty(t, errs)
	members := unit.Contracts()[0].Members
	assert.Empty(t, members[0].(*StateVarDecl).Doc)
	assert.Equal(t, "@custom:protected", members[1].(*StateVarDecl).Doc)
}
