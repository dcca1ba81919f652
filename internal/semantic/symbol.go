package semantic

import (
	"github.com/xab-mack/contractscan/internal/solidity"
)

type SymbolKind int

const (
	StateVar SymbolKind = iota
	Local
	Parameter
	ReturnVar
	Function
	Modifier
	Event
	Error
	Struct
	Enum
	EnumValue
	Contract
	Builtin
	// Opaque stands in for a name declared in an imported file or an
	// unresolved base contract.
	Opaque
)

var symbolKindNames = [...]string{
	StateVar: "state variable", Local: "local variable", Parameter: "parameter",
	ReturnVar: "return variable", Function: "function", Modifier: "modifier",
	Event: "event", Error: "error", Struct: "struct", Enum: "enum",
	EnumValue: "enum value", Contract: "contract", Builtin: "builtin", Opaque: "external name",
}

func (k SymbolKind) String() string {
	if int(k) < len(symbolKindNames) {
		return symbolKindNames[k]
	}
	return "symbol"
}

// Storage is the data location class of a variable.
type Storage int

const (
	StorageStack Storage = iota
	StorageStorage
	StorageMemory
	StorageCalldata
	StorageConstant
)

func (s Storage) String() string {
	switch s {
	case StorageStorage:
		return "storage"
	case StorageMemory:
		return "memory"
	case StorageCalldata:
		return "calldata"
	case StorageConstant:
		return "constant"
	}
	return "stack"
}

// Symbol is a named declaration. Decl points into the syntax tree and is not
// owned by the symbol.
type Symbol struct {
	ID       int
	Name     string
	Kind     SymbolKind
	Type     string
	TypeNode solidity.TypeName
	Storage  Storage
	Decl     solidity.Node
	Owner    *ContractInfo

	// Protected is set from a @custom:protected NatSpec tag.
	Protected bool

	// Selector and Signature are filled for public and external functions.
	Selector  string
	Signature string
}

// IsState reports whether writes to the symbol change contract storage.
func (s *Symbol) IsState() bool {
	return s != nil && (s.Kind == StateVar && s.Storage != StorageConstant || s.Storage == StorageStorage && s.Kind == Local)
}

// Span returns the span of the declaring node, or the zero span for builtins.
func (s *Symbol) Span() solidity.Span {
	if s.Decl == nil {
		return solidity.Span{}
	}
	return s.Decl.Span()
}

// FunctionDecl returns the declaration for function symbols.
func (s *Symbol) FunctionDecl() *solidity.FunctionDecl {
	if s == nil {
		return nil
	}
	fn, _ := s.Decl.(*solidity.FunctionDecl)
	return fn
}
