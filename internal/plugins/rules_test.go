package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
)

const withdrawVulnerable = `pragma solidity ^0.8.0;
contract Bank {
    mapping(address => uint256) balance;
    function withdraw() public {
        uint256 amount = balance[msg.sender];
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok);
        balance[msg.sender] = 0;
    }
}`

const withdrawSafe = `pragma solidity ^0.8.0;
contract Bank {
    mapping(address => uint256) balance;
    function withdraw() public {
        uint256 amount = balance[msg.sender];
        balance[msg.sender] = 0;
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok);
    }
}`

const withdrawLocked = `pragma solidity ^0.8.0;
contract Bank {
    mapping(address => uint256) balance;
    bool locked;
    modifier noReentry() { require(!locked); locked = true; _; locked = false; }
    function withdraw() public noReentry {
        (bool ok, ) = msg.sender.call{value: balance[msg.sender]}("");
        require(ok);
        balance[msg.sender] = 0;
    }
}`

const withdrawViaHelper = `pragma solidity ^0.8.0;
interface IVault { function pay(address to) external; }
contract Bank {
    mapping(address => uint256) balance;
    IVault vault;
    function withdraw() public {
        vault.pay(msg.sender);
        _clear();
    }
    function _clear() internal { balance[msg.sender] = 0; }
}`

func TestReentrancy(t *testing.T) {
	d := &solidityReentrancy{}

	fs := findings(t, d, withdrawVulnerable, defaults())
	require.Len(t, fs, 1)
	f := fs[0]
	assert.Equal(t, model.SeverityCritical, f.Severity)
	assert.Equal(t, 8, f.StartLine)
	assert.Equal(t, 8, f.EndLine)
	assert.Equal(t, "Bank.withdraw", f.Entity)
	assert.Equal(t, "contracts/test.sol", f.File)
	assert.NotEmpty(t, f.Selector)
	assert.Contains(t, f.Message, "balance")
	assert.Equal(t, []string{"SWC-107"}, f.References)

	assert.Empty(t, findings(t, d, withdrawSafe, defaults()))
	assert.Empty(t, findings(t, d, withdrawLocked, defaults()))

	fs = findings(t, d, withdrawViaHelper, defaults())
	require.Len(t, fs, 1)
	assert.Equal(t, 8, fs[0].StartLine)
	assert.Contains(t, fs[0].Message, "IVault.pay")

	locks := []struct {
		name  string
		decl  string
		guard string
		want  int
	}{
		{name: "uint counter", decl: "uint256 round", guard: "require(round > 0); round = 1;", want: 1},
		{name: "bool left passing", decl: "bool open", guard: "require(open); open = true;", want: 1},
		{name: "write before test", decl: "bool locked", guard: "locked = true; require(locked);", want: 1},
		{name: "branch rejoins", decl: "bool busy", guard: "if (busy) { balance[msg.sender] = 1; } busy = true;", want: 1},
		{name: "compared to false", decl: "bool locked", guard: "require(locked == false); locked = true;", want: 0},
		{name: "revert when set", decl: "bool entered", guard: "if (entered) { revert(); } entered = true;", want: 0},
		{name: "inverted flag", decl: "bool idle = true", guard: "require(idle); idle = false;", want: 0},
	}
	for _, tt := range locks {
		t.Run(tt.name, func(t *testing.T) {
			fs := findings(t, d, behindGuard(tt.decl, tt.guard), defaults())
			require.Len(t, fs, tt.want)
			if tt.want > 0 {
				assert.Equal(t, 9, fs[0].StartLine)
				assert.Contains(t, fs[0].Message, "balance")
			}
		})
	}
}

// behindGuard wraps the vulnerable withdraw in a modifier built from guard.
func behindGuard(decl, guard string) string {
	return `pragma solidity ^0.8.0;
contract Bank {
    mapping(address => uint256) balance;
    ` + decl + `;
    modifier guard() { ` + guard + ` _; }
    function withdraw() public guard {
        (bool ok, ) = msg.sender.call{value: balance[msg.sender]}("");
        require(ok);
        balance[msg.sender] = 0;
    }
}`
}

const ledger = `pragma solidity ^0.8.0;
contract Ledger {
    mapping(address => uint256) balances;
    uint256 threshold;
    function burn(uint256 value) public {
        unchecked {
            balances[msg.sender] = balances[msg.sender] - value;
        }
    }
    function burnChecked(uint256 value) public {
        require(value <= balances[msg.sender]);
        unchecked {
            balances[msg.sender] = balances[msg.sender] - value;
        }
    }
    function burnAboveThreshold(uint256 value) public {
        require(value >= threshold);
        unchecked {
            balances[msg.sender] = balances[msg.sender] - value;
        }
    }
    function add(uint256 value) public {
        balances[msg.sender] += value;
    }
}`

func TestIntegerOverflow(t *testing.T) {
	d := &solidityIntegerOverflow{}

	fs := findings(t, d, ledger, defaults())
	require.Len(t, fs, 2)
	assert.Equal(t, model.SeverityHigh, fs[0].Severity)
	assert.Equal(t, "Ledger.burn", fs[0].Entity)
	assert.Equal(t, 7, fs[0].StartLine)
	assert.Contains(t, fs[0].Message, "value")
	// a lower bound does not keep the subtraction from wrapping
	assert.Equal(t, "Ledger.burnAboveThreshold", fs[1].Entity)

	fs = findings(t, d, ledger, analysis.Options{})
	assert.ElementsMatch(t, []string{"Ledger.burn", "Ledger.burnAboveThreshold", "Ledger.add"}, entities(fs))
}

func TestIntegerOverflowBeforeCheckedCompiler(t *testing.T) {
	src := `pragma solidity ^0.7.6;
contract Old {
    uint256 total;
    function add(uint256 v) public { total = total + v; }
    function addSmall(uint8 v) public { total = total + v; }
    function addBounded(uint256 v) public { require(v < 1000); total = total + v; }
    function scaleSmall(uint256 v) public { if (v > 1000) { revert(); } total = total * v; }
    event Big(uint256 v);
    function scale(uint256 v) public { if (v > 1000) { emit Big(v); } total = total * v; }
    function subNonZero(uint256 v) public { require(v != 0); total = total - v; }
}`
	fs := findings(t, &solidityIntegerOverflow{}, src, defaults())
	require.Equal(t, []string{"Old.add", "Old.scale", "Old.subNonZero"}, entities(fs))
	assert.Equal(t, 9, fs[1].StartLine)
	assert.Equal(t, 10, fs[2].StartLine)
}

const calls = `pragma solidity ^0.8.0;
contract Caller {
    uint256 count;
    function dropped(address payable to) public { to.send(1); }
    function ignored(address to) public { (bool ok, ) = to.call(""); }
    function checked(address to) public { (bool ok, ) = to.call(""); require(ok); }
    function branched(address payable to) public { if (!to.send(1)) { revert(); } }
    function late(address to) public { (bool ok, ) = to.call(""); count = 1; require(ok); }
    function returned(address payable to) public returns (bool) { bool ok = to.send(1); return ok; }
    function assigned(address to) public { bool ok; (ok, ) = to.call(""); require(ok, "failed"); }
    function transferred(address payable to) public { to.transfer(1); }
}`

func TestUncheckedCalls(t *testing.T) {
	fs := findings(t, &solidityUncheckedCalls{}, calls, defaults())
	assert.ElementsMatch(t, []string{"Caller.dropped", "Caller.ignored", "Caller.late"}, entities(fs))
	for _, f := range fs {
		assert.Equal(t, model.SeverityMedium, f.Severity)
		assert.NotEmpty(t, f.Fix)
	}
}

const ownable = `pragma solidity ^0.8.0;
contract Ownable {
    address owner;
    uint256 fee;
    modifier onlyOwner() { require(msg.sender == owner, "owner"); _; }
    constructor() { owner = msg.sender; }
    function transferOwnership(address next) public onlyOwner { owner = next; }
    function setOwner(address next) public { owner = next; }
    function claim(address next) public { _setOwner(next); }
    function setFee(uint256 f) public { fee = f; }
    function _setOwner(address next) internal { owner = next; }
    function kill() public { selfdestruct(payable(msg.sender)); }
    function killOwner() public onlyOwner { selfdestruct(payable(owner)); }
    function origin(address next) public { require(tx.origin == owner); fee = 1; }
    function eoaOnly() public { require(tx.origin == msg.sender); fee = 2; }
}`

func TestAccessControl(t *testing.T) {
	fs := findings(t, &solidityAccessControl{}, ownable, defaults())
	assert.ElementsMatch(t, []string{"Ownable.setOwner", "Ownable.claim"}, entities(fs))
	for _, f := range fs {
		assert.Contains(t, f.Message, "owner")
	}

	// configured protection extends the set
	opts := defaults()
	opts.ProtectedStorage = []string{"fee"}
	fs = findings(t, &solidityAccessControl{}, ownable, opts)
	assert.ElementsMatch(t, []string{"Ownable.setOwner", "Ownable.claim", "Ownable.setFee", "Ownable.eoaOnly"}, entities(fs))
}

func TestSelfdestructAndTxOrigin(t *testing.T) {
	fs := findings(t, &soliditySelfdestruct{}, ownable, defaults())
	assert.Equal(t, []string{"Ownable.kill"}, entities(fs))
	assert.Equal(t, model.SeverityCritical, fs[0].Severity)

	fs = findings(t, &solidityTxOrigin{}, ownable, defaults())
	assert.Equal(t, []string{"Ownable.origin"}, entities(fs))
	assert.Equal(t, []string{"SWC-115"}, fs[0].References)
}

func TestTaintedDelegatecall(t *testing.T) {
	src := `pragma solidity ^0.8.0;
contract Proxy {
    address implementation;
    address admin;
    function exec(address impl, bytes calldata data) public { (bool ok, ) = impl.delegatecall(data); require(ok); }
    function fwd(bytes calldata data) public { (bool ok, ) = implementation.delegatecall(data); require(ok); }
    function vetted(address impl, bytes calldata data) public {
        require(impl == implementation);
        (bool ok, ) = impl.delegatecall(data);
        require(ok);
    }
}`
	fs := findings(t, &solidityDelegatecallUnsafe{}, src, defaults())
	assert.Equal(t, []string{"Proxy.exec"}, entities(fs))
	assert.Equal(t, 5, fs[0].StartLine)
}

const clean = `pragma solidity ^0.8.0;
interface IERC20 { function transfer(address to, uint256 amount) external returns (bool); }
contract Clean {
    address owner;
    mapping(address => uint256) balances;
    bool locked;
    uint256 total;
    IERC20 token;

    modifier onlyOwner() { require(msg.sender == owner, "owner"); _; }
    modifier nonReentrant() { require(!locked); locked = true; _; locked = false; }

    constructor(IERC20 t) { owner = msg.sender; token = t; }

    function deposit() external payable {
        balances[msg.sender] += msg.value;
        total += msg.value;
    }
    function withdraw(uint256 amount) external nonReentrant {
        require(balances[msg.sender] >= amount, "balance");
        balances[msg.sender] -= amount;
        total -= amount;
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok, "send");
    }
    function sweep(address to, uint256 amount) external onlyOwner {
        require(token.transfer(to, amount), "transfer");
    }
    function setOwner(address next) external onlyOwner {
        require(next != address(0));
        owner = next;
    }
    function balanceOf(address who) external view returns (uint256) { return balances[who]; }
    function sum(uint256 a, uint256 b) external pure returns (uint256) { return a + b; }
}`

func TestCleanCorpusHasNoFindings(t *testing.T) {
	r := Builtin()
	for _, ff := range functions(t, clean, defaults()) {
		require.NotNil(t, ff.Flow, ff.Entity)
		fs, warns := r.Evaluate(ff)
		assert.Empty(t, warns, ff.Entity)
		assert.Empty(t, fs, ff.Entity)
	}
}
