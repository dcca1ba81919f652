package semantic

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xab-mack/contractscan/internal/solidity"
)

// Selector returns the 4-byte function selector for a canonical signature
// such as "transfer(address,uint256)".
func Selector(signature string) string {
	return hexutil.Encode(crypto.Keccak256([]byte(signature))[:4])
}

func (r *resolver) signature(sc *Scope, fn *solidity.FunctionDecl) string {
	parts := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		parts[i] = r.canonical(sc, p.Type, 0)
	}
	return fn.Name.Name + "(" + strings.Join(parts, ",") + ")"
}

// canonical renders a type the way the ABI spells it in signatures.
func (r *resolver) canonical(sc *Scope, t solidity.TypeName, depth int) string {
	switch t := t.(type) {
	case *solidity.ElementaryType:
		switch t.Name {
		case "uint":
			return "uint256"
		case "int":
			return "int256"
		case "byte":
			return "bytes1"
		case "fixed":
			return "fixed128x18"
		case "ufixed":
			return "ufixed128x18"
		}
		return t.Name
	case *solidity.UserType:
		sym := sc.Lookup(t.Path[0].Name)
		if sym == nil {
			return t.String()
		}
		switch sym.Kind {
		case Contract:
			return "address"
		case Enum:
			return "uint8"
		case Struct:
			sd := sym.Decl.(*solidity.StructDecl)
			if depth > 8 {
				return t.String()
			}
			fields := make([]string, len(sd.Fields))
			for i, f := range sd.Fields {
				fields[i] = r.canonical(sc, f.Type, depth+1)
			}
			return "(" + strings.Join(fields, ",") + ")"
		}
		return t.String()
	case *solidity.ArrayType:
		n := ""
		if t.Len != nil {
			n = solidity.ExprString(t.Len)
		}
		return r.canonical(sc, t.Elem, depth) + "[" + n + "]"
	case *solidity.FunctionType:
		return "function"
	}
	return solidity.TypeString(t)
}

var memberTypes = map[string]map[string]string{
	"msg":   {"sender": "address", "value": "uint256", "data": "bytes", "sig": "bytes4", "gas": "uint256"},
	"tx":    {"origin": "address", "gasprice": "uint256"},
	"block": {"timestamp": "uint256", "number": "uint256", "coinbase": "address payable", "difficulty": "uint256", "prevrandao": "uint256", "gaslimit": "uint256", "chainid": "uint256", "basefee": "uint256"},
}

// TypeOf returns the best-effort static type of e as source text, or "" when
// it cannot be determined without full type checking.
func (t *Table) TypeOf(e solidity.Expr) string {
	switch e := solidity.Unparen(e).(type) {
	case *solidity.Identifier:
		if sym := t.Ref(e); sym != nil {
			return sym.Type
		}
	case *solidity.NumberLit:
		if len(e.Value) == 42 && strings.HasPrefix(e.Value, "0x") {
			return "address"
		}
		return "uint256"
	case *solidity.BoolLit:
		return "bool"
	case *solidity.StringLit:
		return "string"
	case *solidity.MemberExpr:
		if id, ok := e.X.(*solidity.Identifier); ok {
			if m, ok := memberTypes[id.Name]; ok {
				if sym := t.Ref(id); sym != nil && sym.Kind == Builtin {
					return m[e.Name]
				}
			}
		}
		switch e.Name {
		case "balance", "length":
			return "uint256"
		case "code":
			return "bytes"
		case "codehash":
			return "bytes32"
		}
		return t.fieldType(t.TypeOf(e.X), e.Name)
	case *solidity.IndexExpr:
		return elementType(t.TypeOf(e.X))
	case *solidity.SliceExpr:
		return t.TypeOf(e.X)
	case *solidity.CallExpr:
		return t.callType(e)
	case *solidity.BinaryExpr:
		switch e.Op {
		case "==", "!=", "<", ">", "<=", ">=", "&&", "||":
			return "bool"
		}
		return t.TypeOf(e.X)
	case *solidity.UnaryExpr:
		if e.Op == "!" {
			return "bool"
		}
		return t.TypeOf(e.X)
	case *solidity.ConditionalExpr:
		return t.TypeOf(e.Then)
	case *solidity.NewExpr:
		return solidity.TypeString(e.Type)
	case *solidity.AssignExpr:
		return t.TypeOf(e.LHS)
	}
	return ""
}

func (t *Table) callType(c *solidity.CallExpr) string {
	fun := solidity.Unparen(c.Fun)
	if opts, ok := fun.(*solidity.CallOptionsExpr); ok {
		fun = opts.X
	}
	switch f := fun.(type) {
	case *solidity.Identifier:
		sym := t.Ref(f)
		if sym == nil {
			return ""
		}
		switch {
		case sym.Kind == Builtin && f.Name == "payable":
			return "address payable"
		case sym.Kind == Builtin && solidity.IsElementaryType(f.Name):
			return f.Name
		case sym.Kind == Contract, sym.Kind == Struct, sym.Kind == Enum, sym.Kind == Opaque:
			return sym.Name
		case sym.Kind == Function:
			if fn := sym.FunctionDecl(); fn != nil && len(fn.Returns) == 1 {
				return solidity.TypeString(fn.Returns[0].Type)
			}
		}
	case *solidity.MemberExpr:
		if f.Name == "call" || f.Name == "delegatecall" || f.Name == "staticcall" {
			return "(bool,bytes)"
		}
		if f.Name == "send" {
			return "bool"
		}
		if c := t.Contract(t.TypeOf(f.X)); c != nil {
			for _, sym := range c.FindFunctions(f.Name) {
				if fn := sym.FunctionDecl(); fn != nil && len(fn.Returns) == 1 {
					return solidity.TypeString(fn.Returns[0].Type)
				}
			}
		}
	}
	return ""
}

// fieldType looks up a struct field by the struct's type name.
func (t *Table) fieldType(structType, field string) string {
	if structType == "" {
		return ""
	}
	for _, sym := range t.Symbols {
		if sym.Kind != Struct || sym.Name != structType {
			continue
		}
		for _, f := range sym.Decl.(*solidity.StructDecl).Fields {
			if f.Name != nil && f.Name.Name == field {
				return solidity.TypeString(f.Type)
			}
		}
	}
	return ""
}

// elementType strips one mapping or array level from a type string.
func elementType(typ string) string {
	if strings.HasPrefix(typ, "mapping(") && strings.HasSuffix(typ, ")") {
		inner := typ[len("mapping(") : len(typ)-1]
		depth := 0
		for i := 0; i+1 < len(inner); i++ {
			switch inner[i] {
			case '(':
				depth++
			case ')':
				depth--
			case '=':
				if depth == 0 && inner[i+1] == '>' {
					return strings.TrimSpace(inner[i+2:])
				}
			}
		}
		return ""
	}
	if strings.HasSuffix(typ, "]") {
		if i := strings.LastIndexByte(typ, '['); i > 0 {
			return typ[:i]
		}
	}
	switch {
	case typ == "bytes", strings.HasPrefix(typ, "bytes"):
		return "bytes1"
	}
	return ""
}

func IsAddressType(typ string) bool { return typ == "address" || typ == "address payable" }

// IsContractType reports whether typ names a contract or interface, or a
// user type declared outside the unit that may be one.
func (t *Table) IsContractType(typ string) bool {
	if typ == "" {
		return false
	}
	if c := t.Contract(typ); c != nil {
		return !c.IsLibrary()
	}
	if sym, ok := t.opaque[typ]; ok && sym != nil {
		return true
	}
	return false
}

// IsLibrary reports whether name is a library declared in the unit.
func (t *Table) IsLibrary(name string) bool {
	c := t.Contract(name)
	return c != nil && c.IsLibrary()
}
