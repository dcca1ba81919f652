package semantic

import (
	"strings"

	"github.com/xab-mack/contractscan/internal/solidity"
)

// ContractInfo is the resolved view of one contract, interface or library.
type ContractInfo struct {
	Decl   *solidity.ContractDecl
	Symbol *Symbol
	// Bases are the same-file direct bases in declaration order.
	Bases []*ContractInfo
	// Opaque is set when some base is declared outside the file.
	Opaque bool
	Scope  *Scope
}

func (c *ContractInfo) Name() string { return c.Decl.Name.Name }

func (c *ContractInfo) IsLibrary() bool   { return c.Decl.Keyword == "library" }
func (c *ContractInfo) IsInterface() bool { return c.Decl.Keyword == "interface" }

// Linearized returns c followed by its bases, most derived first, each
// contract once.
func (c *ContractInfo) Linearized() []*ContractInfo {
	seen := map[*ContractInfo]bool{}
	var out []*ContractInfo
	var visit func(x *ContractInfo)
	visit = func(x *ContractInfo) {
		if seen[x] {
			return
		}
		seen[x] = true
		out = append(out, x)
		for i := len(x.Bases) - 1; i >= 0; i-- {
			visit(x.Bases[i])
		}
	}
	visit(c)
	return out
}

// StateVars returns every state variable visible in c, inherited ones included.
func (c *ContractInfo) StateVars() []*Symbol {
	var out []*Symbol
	lin := c.Linearized()
	for i := len(lin) - 1; i >= 0; i-- {
		for _, name := range lin[i].Scope.order {
			for _, sym := range lin[i].Scope.names[name] {
				if sym.Kind == StateVar {
					out = append(out, sym)
				}
			}
		}
	}
	return out
}

// Functions returns the functions callable on c: its own plus inherited
// ones that no more derived contract overrides.
func (c *ContractInfo) Functions() []*Symbol {
	var out []*Symbol
	seen := map[string]bool{}
	for _, x := range c.Linearized() {
		for _, name := range x.Scope.order {
			for _, sym := range x.Scope.names[name] {
				if sym.Kind != Function {
					continue
				}
				key := sym.Name + "/" + paramKey(sym.FunctionDecl())
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, sym)
			}
		}
	}
	return out
}

// FindFunctions returns the overloads of name visible in c.
func (c *ContractInfo) FindFunctions(name string) []*Symbol {
	var out []*Symbol
	for _, sym := range c.Functions() {
		if sym.Name == name {
			out = append(out, sym)
		}
	}
	return out
}

// Modifier returns the most derived modifier declaration named name.
func (c *ContractInfo) Modifier(name string) *Symbol {
	for _, x := range c.Linearized() {
		for _, sym := range x.Scope.Local(name) {
			if sym.Kind == Modifier {
				return sym
			}
		}
	}
	return nil
}

// Table holds the symbols of one source unit and the binding of every
// identifier reference to its declaration.
type Table struct {
	Unit      *solidity.SourceUnit
	File      *Scope
	Symbols   []*Symbol
	Contracts []*ContractInfo
	// Warnings are problems that do not block analysis.
	Warnings []error

	refs       map[*solidity.Identifier]*Symbol
	decls      map[solidity.Node]*Symbol
	owners     map[solidity.Node]*ContractInfo
	byName     map[string]*ContractInfo
	failed     map[solidity.Node]bool
	elementary map[string]*Symbol
	opaque     map[string]*Symbol
}

func newTable(unit *solidity.SourceUnit) *Table {
	return &Table{
		Unit:       unit,
		refs:       map[*solidity.Identifier]*Symbol{},
		decls:      map[solidity.Node]*Symbol{},
		owners:     map[solidity.Node]*ContractInfo{},
		byName:     map[string]*ContractInfo{},
		failed:     map[solidity.Node]bool{},
		elementary: map[string]*Symbol{},
		opaque:     map[string]*Symbol{},
	}
}

func (t *Table) newSymbol(sym *Symbol) *Symbol {
	sym.ID = len(t.Symbols)
	t.Symbols = append(t.Symbols, sym)
	if sym.Decl != nil {
		t.decls[sym.Decl] = sym
	}
	return sym
}

// Ref returns the declaration id refers to, or nil when id is not a
// resolved reference.
func (t *Table) Ref(id *solidity.Identifier) *Symbol { return t.refs[id] }

// SymbolOf returns the symbol introduced by a declaration node.
func (t *Table) SymbolOf(decl solidity.Node) *Symbol { return t.decls[decl] }

func (t *Table) Contract(name string) *ContractInfo { return t.byName[name] }

// ContractOf returns the contract that declares a member node.
func (t *Table) ContractOf(member solidity.Node) *ContractInfo { return t.owners[member] }

// Excluded reports whether fn, or a modifier it invokes, failed resolution.
func (t *Table) Excluded(fn *solidity.FunctionDecl) bool {
	if t.failed[fn] {
		return true
	}
	c := t.owners[fn]
	if c == nil {
		return false
	}
	for _, m := range fn.Modifiers {
		if sym := c.Modifier(m.Name.String()); sym != nil && t.failed[sym.Decl] {
			return true
		}
	}
	return false
}

// Entity names a function as Contract.function.
func Entity(c *ContractInfo, fn solidity.Node) string {
	name := ""
	switch d := fn.(type) {
	case *solidity.FunctionDecl:
		name = d.DisplayName()
	case *solidity.ModifierDecl:
		name = d.Name.Name
	}
	if c == nil {
		return name
	}
	return c.Name() + "." + name
}

func paramKey(fn *solidity.FunctionDecl) string {
	if fn == nil {
		return ""
	}
	parts := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		parts[i] = solidity.TypeString(p.Type)
	}
	return strings.Join(parts, ",")
}
