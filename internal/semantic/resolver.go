package semantic

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xab-mack/contractscan/internal/solidity"
)

var builtinNames = map[string]string{
	"msg": "msg", "tx": "tx", "block": "block", "abi": "abi", "now": "uint256",
	"require": "function", "assert": "function", "revert": "function",
	"keccak256": "function", "sha3": "function", "sha256": "function", "ripemd160": "function",
	"ecrecover": "function", "addmod": "function", "mulmod": "function",
	"selfdestruct": "function", "suicide": "function", "gasleft": "function",
	"blockhash": "function", "blobhash": "function", "type": "function", "payable": "function",
}

const protectedTag = "@custom:protected"

type resolver struct {
	t        *Table
	errs     []error
	imports  bool
	contract *ContractInfo
	fn       solidity.Node
}

// Resolve builds the symbol table for unit and binds every identifier. The
// returned errors are *UnresolvedReferenceError and
// *DuplicateDeclarationError values; a function with an error is reported
// by Table.Excluded and the rest of the unit stays usable.
func Resolve(unit *solidity.SourceUnit) (*Table, []error) {
	t := newTable(unit)
	r := &resolver{t: t}
	r.run()
	return t, r.errs
}

func (r *resolver) run() {
	universe := NewScope(nil, nil)
	names := make([]string, 0, len(builtinNames))
	for name := range builtinNames {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		universe.insert(r.t.newSymbol(&Symbol{Name: name, Kind: Builtin, Type: builtinNames[name]}))
	}
	file := NewScope(universe, r.t.Unit.Root)
	r.t.File = file

	var contracts []*ContractInfo
	for _, d := range r.t.Unit.Root.Decls {
		switch d := d.(type) {
		case *solidity.ImportDirective:
			r.imports = true
		case *solidity.ContractDecl:
			sym := &Symbol{Name: d.Name.Name, Kind: Contract, Type: d.Name.Name, Decl: d}
			if !r.declare(file, sym, nil) {
				continue
			}
			info := &ContractInfo{Decl: d, Symbol: sym, Scope: NewScope(file, d)}
			sym.Owner = info
			r.t.byName[info.Name()] = info
			r.t.Contracts = append(r.t.Contracts, info)
			contracts = append(contracts, info)
		default:
			r.declareMember(file, nil, d)
		}
	}

	for _, c := range contracts {
		r.linkBases(c)
	}
	for _, c := range contracts {
		r.contract = c
		c.Scope.insert(r.t.newSymbol(&Symbol{Name: "this", Kind: Builtin, Type: c.Name(), Owner: c}))
		c.Scope.insert(r.t.newSymbol(&Symbol{Name: "super", Kind: Builtin, Type: c.Name(), Owner: c}))
		for _, m := range c.Decl.Members {
			r.declareMember(c.Scope, c, m)
		}
	}

	r.contract = nil
	for _, d := range r.t.Unit.Root.Decls {
		if _, ok := d.(*solidity.ContractDecl); !ok {
			r.resolveMember(file, d)
		}
	}
	for _, c := range contracts {
		r.contract = c
		for _, b := range c.Decl.Bases {
			for _, a := range b.Args {
				r.expr(c.Scope, a)
			}
		}
		for _, m := range c.Decl.Members {
			r.resolveMember(c.Scope, m)
		}
	}
	r.contract = nil
}

func (r *resolver) linkBases(c *ContractInfo) {
	for _, b := range c.Decl.Bases {
		head := b.Name.Path[0]
		sym := r.t.File.Lookup(head.Name)
		switch {
		case sym != nil && sym.Kind == Contract && sym.Owner != nil && !reaches(sym.Owner, c):
			r.t.refs[head] = sym
			c.Bases = append(c.Bases, sym.Owner)
			c.Scope.bases = append(c.Scope.bases, sym.Owner.Scope)
		case sym == nil && r.imports:
			r.t.refs[head] = r.opaqueSymbol(head.Name)
			c.Opaque = true
		default:
			c.Opaque = true
			r.unresolved(r.t.File, head)
		}
	}
}

// reaches reports whether from inherits, directly or not, from to.
func reaches(from, to *ContractInfo) bool {
	for _, x := range from.Linearized() {
		if x == to {
			return true
		}
	}
	return false
}

// declare adds sym to sc unless a conflicting declaration exists. Functions
// and events may share a name when their parameter lists differ.
func (r *resolver) declare(sc *Scope, sym *Symbol, params []*solidity.Param) bool {
	for _, prev := range sc.Local(sym.Name) {
		if (sym.Kind == Function || sym.Kind == Event) && prev.Kind == sym.Kind && paramTypes(params) != paramTypes(declParams(prev.Decl)) {
			continue
		}
		r.fail(&DuplicateDeclarationError{
			Name:     sym.Name,
			Span:     sym.Span(),
			Previous: prev.Span(),
			Function: r.entity(),
		})
		return false
	}
	sc.insert(r.t.newSymbol(sym))
	return true
}

func declParams(n solidity.Node) []*solidity.Param {
	switch d := n.(type) {
	case *solidity.FunctionDecl:
		return d.Params
	case *solidity.EventDecl:
		return d.Params
	}
	return nil
}

func paramTypes(ps []*solidity.Param) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = solidity.TypeString(p.Type)
	}
	return strings.Join(parts, ",")
}

func (r *resolver) declareMember(sc *Scope, c *ContractInfo, d solidity.Decl) {
	if c != nil {
		r.t.owners[d] = c
	}
	switch d := d.(type) {
	case *solidity.StateVarDecl:
		storage := StorageStorage
		if d.Constant || d.Immutable {
			storage = StorageConstant
		}
		r.declare(sc, &Symbol{
			Name: d.Name.Name, Kind: StateVar, Type: solidity.TypeString(d.Type), TypeNode: d.Type,
			Storage: storage, Decl: d, Owner: c, Protected: strings.Contains(d.Doc, protectedTag),
		}, nil)
	case *solidity.FunctionDecl:
		if d.Name == nil {
			// constructor, fallback and receive are not callable by name
			r.t.newSymbol(&Symbol{Name: d.Keyword, Kind: Function, Type: "function", Decl: d, Owner: c})
			return
		}
		if !r.declare(sc, &Symbol{Name: d.Name.Name, Kind: Function, Type: "function", Decl: d, Owner: c}, d.Params) {
			r.t.failed[d] = true
		}
	case *solidity.ModifierDecl:
		if !r.declare(sc, &Symbol{Name: d.Name.Name, Kind: Modifier, Type: "modifier", Decl: d, Owner: c}, nil) {
			r.t.failed[d] = true
		}
	case *solidity.EventDecl:
		r.declare(sc, &Symbol{Name: d.Name.Name, Kind: Event, Type: "event", Decl: d, Owner: c}, d.Params)
	case *solidity.ErrorDecl:
		r.declare(sc, &Symbol{Name: d.Name.Name, Kind: Error, Type: "error", Decl: d, Owner: c}, nil)
	case *solidity.StructDecl:
		r.declare(sc, &Symbol{Name: d.Name.Name, Kind: Struct, Type: d.Name.Name, Decl: d, Owner: c}, nil)
	case *solidity.EnumDecl:
		r.declare(sc, &Symbol{Name: d.Name.Name, Kind: Enum, Type: d.Name.Name, Decl: d, Owner: c}, nil)
	}
}

func (r *resolver) resolveMember(sc *Scope, d solidity.Decl) {
	switch d := d.(type) {
	case *solidity.StateVarDecl:
		r.typeName(sc, d.Type)
		if d.Value != nil {
			r.expr(sc, d.Value)
		}
	case *solidity.FunctionDecl:
		r.function(sc, d)
	case *solidity.ModifierDecl:
		r.fn = d
		fs := NewScope(sc, d)
		r.params(fs, d.Params, Parameter)
		if d.Body != nil {
			r.block(fs, d.Body)
		}
		r.fn = nil
	case *solidity.EventDecl:
		for _, p := range d.Params {
			r.typeName(sc, p.Type)
		}
	case *solidity.ErrorDecl:
		for _, p := range d.Params {
			r.typeName(sc, p.Type)
		}
	case *solidity.StructDecl:
		for _, f := range d.Fields {
			r.typeName(sc, f.Type)
		}
	case *solidity.UsingDecl:
		r.userType(sc, d.Library)
		if d.Type != nil {
			r.typeName(sc, d.Type)
		}
	}
}

func (r *resolver) function(sc *Scope, fn *solidity.FunctionDecl) {
	r.fn = fn
	defer func() { r.fn = nil }()

	fs := NewScope(sc, fn)
	r.params(fs, fn.Params, Parameter)
	r.params(fs, fn.Returns, ReturnVar)
	for _, m := range fn.Modifiers {
		r.userType(sc, m.Name)
		for _, a := range m.Args {
			r.expr(fs, a)
		}
	}
	if sym := r.t.SymbolOf(fn); sym != nil && fn.Name != nil && fn.IsEntryPoint() {
		sym.Signature = r.signature(sc, fn)
		sym.Selector = Selector(sym.Signature)
	}
	if fn.Body != nil {
		r.block(fs, fn.Body)
	}
}

func locationStorage(loc string) Storage {
	switch loc {
	case "storage":
		return StorageStorage
	case "memory":
		return StorageMemory
	case "calldata":
		return StorageCalldata
	}
	return StorageStack
}

func (r *resolver) params(sc *Scope, ps []*solidity.Param, kind SymbolKind) {
	for _, p := range ps {
		r.typeName(sc, p.Type)
		if p.Name == nil {
			continue
		}
		r.declare(sc, &Symbol{
			Name: p.Name.Name, Kind: kind, Type: solidity.TypeString(p.Type), TypeNode: p.Type,
			Storage: locationStorage(p.Location), Decl: p, Owner: r.contract,
		}, nil)
	}
}

func (r *resolver) block(sc *Scope, b *solidity.Block) {
	bs := NewScope(sc, b)
	for _, s := range b.Stmts {
		r.stmt(bs, s)
	}
}

func (r *resolver) stmt(sc *Scope, s solidity.Stmt) {
	switch s := s.(type) {
	case *solidity.Block:
		r.block(sc, s)
	case *solidity.VarDeclStmt:
		if s.Value != nil {
			r.expr(sc, s.Value)
		}
		for _, v := range s.Vars {
			if v == nil {
				continue
			}
			r.typeName(sc, v.Type)
			r.declare(sc, &Symbol{
				Name: v.Name.Name, Kind: Local, Type: solidity.TypeString(v.Type), TypeNode: v.Type,
				Storage: locationStorage(v.Location), Decl: v, Owner: r.contract,
			}, nil)
		}
	case *solidity.ExprStmt:
		r.expr(sc, s.X)
	case *solidity.IfStmt:
		r.expr(sc, s.Cond)
		r.stmt(sc, s.Then)
		if s.Else != nil {
			r.stmt(sc, s.Else)
		}
	case *solidity.WhileStmt:
		r.expr(sc, s.Cond)
		r.stmt(sc, s.Body)
	case *solidity.DoWhileStmt:
		r.stmt(sc, s.Body)
		r.expr(sc, s.Cond)
	case *solidity.ForStmt:
		fs := NewScope(sc, s)
		if s.Init != nil {
			r.stmt(fs, s.Init)
		}
		if s.Cond != nil {
			r.expr(fs, s.Cond)
		}
		if s.Post != nil {
			r.expr(fs, s.Post)
		}
		r.stmt(fs, s.Body)
	case *solidity.ReturnStmt:
		if s.Value != nil {
			r.expr(sc, s.Value)
		}
	case *solidity.EmitStmt:
		r.expr(sc, s.Call)
	case *solidity.RevertStmt:
		if s.Error != nil {
			r.userType(sc, s.Error)
		}
		for _, a := range s.Args {
			r.expr(sc, a)
		}
	case *solidity.TryStmt:
		r.expr(sc, s.Call)
		ts := NewScope(sc, s)
		r.params(ts, s.Returns, Local)
		r.block(ts, s.Body)
		for _, c := range s.Catches {
			cs := NewScope(sc, c)
			r.params(cs, c.Params, Local)
			r.block(cs, c.Body)
		}
	}
}

func (r *resolver) expr(sc *Scope, e solidity.Expr) {
	switch e := e.(type) {
	case nil:
	case *solidity.Identifier:
		r.ident(sc, e, -1)
	case *solidity.NumberLit:
		r.checkAddress(e)
	case *solidity.MemberExpr:
		r.expr(sc, e.X)
	case *solidity.CallExpr:
		if id, ok := e.Fun.(*solidity.Identifier); ok {
			r.ident(sc, id, len(e.Args))
		} else {
			r.expr(sc, e.Fun)
		}
		for _, a := range e.Args {
			r.expr(sc, a)
		}
	case *solidity.CallOptionsExpr:
		r.expr(sc, e.X)
		for _, v := range e.Values {
			r.expr(sc, v)
		}
	case *solidity.NewExpr:
		r.typeName(sc, e.Type)
	case *solidity.TypeExpr:
		r.typeName(sc, e.Type)
	default:
		for _, c := range e.Children() {
			if x, ok := c.(solidity.Expr); ok {
				r.expr(sc, x)
			}
		}
	}
}

func (r *resolver) typeName(sc *Scope, t solidity.TypeName) {
	switch t := t.(type) {
	case *solidity.UserType:
		r.userType(sc, t)
	case *solidity.MappingType:
		r.typeName(sc, t.Key)
		r.typeName(sc, t.Value)
	case *solidity.ArrayType:
		r.typeName(sc, t.Elem)
		if t.Len != nil {
			r.expr(sc, t.Len)
		}
	case *solidity.FunctionType:
		for _, ps := range [][]*solidity.Param{t.Params, t.Returns} {
			for _, prm := range ps {
				r.typeName(sc, prm.Type)
			}
		}
	}
}

func (r *resolver) userType(sc *Scope, u *solidity.UserType) {
	r.ident(sc, u.Path[0], -1)
}

// ident binds id. arity selects among overloads when id is called.
func (r *resolver) ident(sc *Scope, id *solidity.Identifier, arity int) {
	syms := sc.LookupAll(id.Name)
	if len(syms) == 0 {
		if solidity.IsElementaryType(id.Name) {
			r.t.refs[id] = r.elementarySymbol(id.Name)
			return
		}
		if r.tolerant() {
			r.t.refs[id] = r.opaqueSymbol(id.Name)
			return
		}
		r.unresolved(sc, id)
		return
	}
	sym := syms[0]
	if arity >= 0 && len(syms) > 1 {
		for _, s := range syms {
			if len(declParams(s.Decl)) == arity {
				sym = s
				break
			}
		}
	}
	r.t.refs[id] = sym
}

// tolerant reports whether unknown names may come from another file.
func (r *resolver) tolerant() bool {
	return r.imports || r.contract != nil && r.contract.inheritsOpaque()
}

func (c *ContractInfo) inheritsOpaque() bool {
	for _, x := range c.Linearized() {
		if x.Opaque {
			return true
		}
	}
	return false
}

func (r *resolver) elementarySymbol(name string) *Symbol {
	if sym, ok := r.t.elementary[name]; ok {
		return sym
	}
	sym := r.t.newSymbol(&Symbol{Name: name, Kind: Builtin, Type: name})
	r.t.elementary[name] = sym
	return sym
}

func (r *resolver) opaqueSymbol(name string) *Symbol {
	if sym, ok := r.t.opaque[name]; ok {
		return sym
	}
	sym := r.t.newSymbol(&Symbol{Name: name, Kind: Opaque, Type: name})
	r.t.opaque[name] = sym
	return sym
}

func (r *resolver) unresolved(sc *Scope, id *solidity.Identifier) {
	r.fail(&UnresolvedReferenceError{
		Name:       id.Name,
		Span:       id.Span(),
		Candidates: sc.Suggest(id.Name),
		Function:   r.entity(),
	})
}

func (r *resolver) fail(err error) {
	r.errs = append(r.errs, err)
	if r.fn != nil {
		r.t.failed[r.fn] = true
	}
}

func (r *resolver) entity() string {
	if r.fn == nil {
		return ""
	}
	return Entity(r.contract, r.fn)
}

// checkAddress validates the EIP-55 checksum of mixed-case address literals.
func (r *resolver) checkAddress(n *solidity.NumberLit) {
	v := n.Value
	if len(v) != 42 || !common.IsHexAddress(v) {
		return
	}
	digits := v[2:]
	if strings.ToLower(digits) == digits || strings.ToUpper(digits) == digits {
		return
	}
	if want := common.HexToAddress(v).Hex(); want != v {
		r.t.Warnings = append(r.t.Warnings, &AddressChecksumError{Literal: v, Want: want, Span: n.Span()})
	}
}
