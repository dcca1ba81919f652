package solidity

// Node is implemented by every syntax tree node. Children returns the owned
// child nodes in source order; nil children are omitted.
type Node interface {
	Kind() NodeKind
	Span() Span
	Children() []Node
}

type Decl interface {
	Node
	declNode()
}

type Stmt interface {
	Node
	stmtNode()
}

type Expr interface {
	Node
	exprNode()
}

type TypeName interface {
	Node
	typeNode()
}

// Range carries the source span of a node.
type Range struct {
	Src Span
}

func (r Range) Span() Span { return r.Src }

type NodeKind int

const (
	KindFile NodeKind = iota
	KindPragma
	KindImport
	KindContract
	KindInheritance
	KindStateVar
	KindFunction
	KindModifier
	KindModifierInvocation
	KindEvent
	KindError
	KindStruct
	KindEnum
	KindUsing
	KindParam
	KindElementaryType
	KindUserType
	KindMappingType
	KindArrayType
	KindBlock
	KindIf
	KindWhile
	KindDoWhile
	KindFor
	KindReturn
	KindBreak
	KindContinue
	KindEmit
	KindRevert
	KindThrow
	KindVarDecl
	KindExprStmt
	KindPlaceholder
	KindAssembly
	KindTry
	KindCatch
	KindIdentifier
	KindNumber
	KindString
	KindBool
	KindBinary
	KindUnary
	KindAssign
	KindConditional
	KindCall
	KindCallOptions
	KindMember
	KindIndex
	KindTuple
	KindParen
	KindArrayLit
	KindNew
	KindTypeExpr
	KindFunctionType
	KindSlice
)

var nodeKindNames = map[NodeKind]string{
	KindFile: "File", KindPragma: "Pragma", KindImport: "Import", KindContract: "Contract",
	KindInheritance: "Inheritance", KindStateVar: "StateVar", KindFunction: "Function",
	KindModifier: "Modifier", KindModifierInvocation: "ModifierInvocation", KindEvent: "Event",
	KindError: "Error", KindStruct: "Struct", KindEnum: "Enum", KindUsing: "Using", KindParam: "Param",
	KindElementaryType: "ElementaryType", KindUserType: "UserType", KindMappingType: "MappingType",
	KindArrayType: "ArrayType", KindFunctionType: "FunctionType", KindBlock: "Block", KindIf: "If", KindWhile: "While",
	KindDoWhile: "DoWhile", KindFor: "For", KindReturn: "Return", KindBreak: "Break",
	KindContinue: "Continue", KindEmit: "Emit", KindRevert: "Revert", KindThrow: "Throw",
	KindVarDecl: "VarDecl", KindExprStmt: "ExprStmt", KindPlaceholder: "Placeholder",
	KindAssembly: "Assembly", KindTry: "Try", KindCatch: "Catch", KindIdentifier: "Identifier",
	KindNumber: "Number", KindString: "String", KindBool: "Bool", KindBinary: "Binary",
	KindUnary: "Unary", KindAssign: "Assign", KindConditional: "Conditional", KindCall: "Call",
	KindCallOptions: "CallOptions", KindMember: "Member", KindIndex: "Index", KindSlice: "Slice", KindTuple: "Tuple",
	KindParen: "Paren", KindArrayLit: "ArrayLit", KindNew: "New", KindTypeExpr: "TypeExpr",
}

func (k NodeKind) String() string {
	if s, ok := nodeKindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// ---- declarations ----

type File struct {
	Range
	Decls []Decl
}

type PragmaDirective struct {
	Range
	Name  string
	Value string
}

type ImportDirective struct {
	Range
	Raw string
}

type ContractDecl struct {
	Range
	Doc      string
	Abstract bool
	Keyword  string // contract, interface or library
	Name     *Identifier
	Bases    []*InheritanceSpecifier
	Members  []Decl
}

type InheritanceSpecifier struct {
	Range
	Name    *UserType
	Args    []Expr
	HasArgs bool
}

type StateVarDecl struct {
	Range
	Doc        string
	Type       TypeName
	Visibility string
	Constant   bool
	Immutable  bool
	Override   bool
	Name       *Identifier
	Value      Expr
}

type FunctionDecl struct {
	Range
	Doc        string
	Keyword    string // function, constructor, fallback or receive
	Name       *Identifier
	Params     []*Param
	Returns    []*Param
	Visibility string
	Mutability string
	Virtual    bool
	Override   bool
	Modifiers  []*ModifierInvocation
	Body       *Block
}

// DisplayName returns the function name, or the keyword for constructors,
// fallback and receive functions.
func (f *FunctionDecl) DisplayName() string {
	if f.Name != nil {
		return f.Name.Name
	}
	return f.Keyword
}

// IsEntryPoint reports whether the function can be invoked from outside the
// contract.
func (f *FunctionDecl) IsEntryPoint() bool {
	switch f.Keyword {
	case "fallback", "receive":
		return true
	case "constructor":
		return false
	}
	return f.Visibility == "public" || f.Visibility == "external" || f.Visibility == ""
}

func (f *FunctionDecl) IsReadOnly() bool {
	return f.Mutability == "view" || f.Mutability == "pure"
}

type ModifierInvocation struct {
	Range
	Name    *UserType
	Args    []Expr
	HasArgs bool
}

type ModifierDecl struct {
	Range
	Doc      string
	Name     *Identifier
	Params   []*Param
	HasParen bool
	Virtual  bool
	Override bool
	Body     *Block
}

type EventDecl struct {
	Range
	Doc       string
	Name      *Identifier
	Params    []*Param
	Anonymous bool
}

type ErrorDecl struct {
	Range
	Doc    string
	Name   *Identifier
	Params []*Param
}

type StructDecl struct {
	Range
	Doc    string
	Name   *Identifier
	Fields []*Param
}

type EnumDecl struct {
	Range
	Doc    string
	Name   *Identifier
	Values []*Identifier
}

type UsingDecl struct {
	Range
	Library *UserType
	Type    TypeName // nil means '*'
}

// Param is a parameter, return value, event field, struct field or local
// variable declaration.
type Param struct {
	Range
	Type     TypeName
	Location string
	Indexed  bool
	Name     *Identifier
}

// ---- types ----

type ElementaryType struct {
	Range
	Name    string
	Payable bool
}

type UserType struct {
	Range
	Path []*Identifier
}

func (u *UserType) String() string {
	s := ""
	for i, id := range u.Path {
		if i > 0 {
			s += "."
		}
		s += id.Name
	}
	return s
}

type MappingType struct {
	Range
	Key   TypeName
	Value TypeName
}

type ArrayType struct {
	Range
	Elem TypeName
	Len  Expr
}

// FunctionType is a function pointer type such as
// function(uint256) external view returns (bool).
type FunctionType struct {
	Range
	Params     []*Param
	Returns    []*Param
	Visibility string
	Mutability string
}

// ---- statements ----

type Block struct {
	Range
	Unchecked bool
	Stmts     []Stmt
}

type IfStmt struct {
	Range
	Cond Expr
	Then Stmt
	Else Stmt
}

type WhileStmt struct {
	Range
	Cond Expr
	Body Stmt
}

type DoWhileStmt struct {
	Range
	Body Stmt
	Cond Expr
}

type ForStmt struct {
	Range
	Init Stmt
	Cond Expr
	Post Expr
	Body Stmt
}

type ReturnStmt struct {
	Range
	Value Expr
}

type BreakStmt struct{ Range }

type ContinueStmt struct{ Range }

type EmitStmt struct {
	Range
	Call *CallExpr
}

// RevertStmt covers both revert(...) and revert CustomError(...).
type RevertStmt struct {
	Range
	Error *UserType
	Args  []Expr
}

type ThrowStmt struct{ Range }

// VarDeclStmt declares one variable or a tuple of variables. Tuple holes are
// nil entries in Vars.
type VarDeclStmt struct {
	Range
	Vars  []*Param
	Tuple bool
	Value Expr
}

type ExprStmt struct {
	Range
	X Expr
}

type PlaceholderStmt struct{ Range }

type AssemblyStmt struct {
	Range
	Raw string
}

type TryStmt struct {
	Range
	Call    Expr
	Returns []*Param
	Body    *Block
	Catches []*CatchClause
}

type CatchClause struct {
	Range
	Ident    string
	Params   []*Param
	HasParen bool
	Body     *Block
}

// ---- expressions ----

type Identifier struct {
	Range
	Name string
}

type NumberLit struct {
	Range
	Value string
	Unit  string
}

type StringLit struct {
	Range
	Value string
}

type BoolLit struct {
	Range
	Value bool
}

type BinaryExpr struct {
	Range
	Op string
	X  Expr
	Y  Expr
}

type UnaryExpr struct {
	Range
	Op      string
	X       Expr
	Postfix bool
}

type AssignExpr struct {
	Range
	Op  string
	LHS Expr
	RHS Expr
}

type ConditionalExpr struct {
	Range
	Cond Expr
	Then Expr
	Else Expr
}

type CallExpr struct {
	Range
	Fun   Expr
	Args  []Expr
	Names []string // named arguments, parallel to Args when non-nil
}

type CallOptionsExpr struct {
	Range
	X      Expr
	Names  []string
	Values []Expr
}

type MemberExpr struct {
	Range
	X    Expr
	Name string
}

type IndexExpr struct {
	Range
	X     Expr
	Index Expr
}

// SliceExpr is a calldata array slice x[Low:High]; either bound may be nil.
type SliceExpr struct {
	Range
	X    Expr
	Low  Expr
	High Expr
}

type TupleExpr struct {
	Range
	Elems []Expr
}

type ParenExpr struct {
	Range
	X Expr
}

type ArrayLit struct {
	Range
	Elems []Expr
}

type NewExpr struct {
	Range
	Type TypeName
}

// TypeExpr is a type used in expression position, such as mapping or array
// types passed to abi.decode.
type TypeExpr struct {
	Range
	Type TypeName
}

func (*File) Kind() NodeKind                 { return KindFile }
func (*PragmaDirective) Kind() NodeKind      { return KindPragma }
func (*ImportDirective) Kind() NodeKind      { return KindImport }
func (*ContractDecl) Kind() NodeKind         { return KindContract }
func (*InheritanceSpecifier) Kind() NodeKind { return KindInheritance }
func (*StateVarDecl) Kind() NodeKind         { return KindStateVar }
func (*FunctionDecl) Kind() NodeKind         { return KindFunction }
func (*ModifierInvocation) Kind() NodeKind   { return KindModifierInvocation }
func (*ModifierDecl) Kind() NodeKind         { return KindModifier }
func (*EventDecl) Kind() NodeKind            { return KindEvent }
func (*ErrorDecl) Kind() NodeKind            { return KindError }
func (*StructDecl) Kind() NodeKind           { return KindStruct }
func (*EnumDecl) Kind() NodeKind             { return KindEnum }
func (*UsingDecl) Kind() NodeKind            { return KindUsing }
func (*Param) Kind() NodeKind                { return KindParam }
func (*ElementaryType) Kind() NodeKind       { return KindElementaryType }
func (*UserType) Kind() NodeKind             { return KindUserType }
func (*MappingType) Kind() NodeKind          { return KindMappingType }
func (*ArrayType) Kind() NodeKind            { return KindArrayType }
func (*FunctionType) Kind() NodeKind         { return KindFunctionType }
func (*Block) Kind() NodeKind                { return KindBlock }
func (*IfStmt) Kind() NodeKind               { return KindIf }
func (*WhileStmt) Kind() NodeKind            { return KindWhile }
func (*DoWhileStmt) Kind() NodeKind          { return KindDoWhile }
func (*ForStmt) Kind() NodeKind              { return KindFor }
func (*ReturnStmt) Kind() NodeKind           { return KindReturn }
func (*BreakStmt) Kind() NodeKind            { return KindBreak }
func (*ContinueStmt) Kind() NodeKind         { return KindContinue }
func (*EmitStmt) Kind() NodeKind             { return KindEmit }
func (*RevertStmt) Kind() NodeKind           { return KindRevert }
func (*ThrowStmt) Kind() NodeKind            { return KindThrow }
func (*VarDeclStmt) Kind() NodeKind          { return KindVarDecl }
func (*ExprStmt) Kind() NodeKind             { return KindExprStmt }
func (*PlaceholderStmt) Kind() NodeKind      { return KindPlaceholder }
func (*AssemblyStmt) Kind() NodeKind         { return KindAssembly }
func (*TryStmt) Kind() NodeKind              { return KindTry }
func (*CatchClause) Kind() NodeKind          { return KindCatch }
func (*Identifier) Kind() NodeKind           { return KindIdentifier }
func (*NumberLit) Kind() NodeKind            { return KindNumber }
func (*StringLit) Kind() NodeKind            { return KindString }
func (*BoolLit) Kind() NodeKind              { return KindBool }
func (*BinaryExpr) Kind() NodeKind           { return KindBinary }
func (*UnaryExpr) Kind() NodeKind            { return KindUnary }
func (*AssignExpr) Kind() NodeKind           { return KindAssign }
func (*ConditionalExpr) Kind() NodeKind      { return KindConditional }
func (*CallExpr) Kind() NodeKind             { return KindCall }
func (*CallOptionsExpr) Kind() NodeKind      { return KindCallOptions }
func (*MemberExpr) Kind() NodeKind           { return KindMember }
func (*IndexExpr) Kind() NodeKind            { return KindIndex }
func (*SliceExpr) Kind() NodeKind            { return KindSlice }
func (*TupleExpr) Kind() NodeKind            { return KindTuple }
func (*ParenExpr) Kind() NodeKind            { return KindParen }
func (*ArrayLit) Kind() NodeKind             { return KindArrayLit }
func (*NewExpr) Kind() NodeKind              { return KindNew }
func (*TypeExpr) Kind() NodeKind             { return KindTypeExpr }

func (*PragmaDirective) declNode() {}
func (*ImportDirective) declNode() {}
func (*ContractDecl) declNode()    {}
func (*StateVarDecl) declNode()    {}
func (*FunctionDecl) declNode()    {}
func (*ModifierDecl) declNode()    {}
func (*EventDecl) declNode()       {}
func (*ErrorDecl) declNode()       {}
func (*StructDecl) declNode()      {}
func (*EnumDecl) declNode()        {}
func (*UsingDecl) declNode()       {}

func (*Block) stmtNode()           {}
func (*IfStmt) stmtNode()          {}
func (*WhileStmt) stmtNode()       {}
func (*DoWhileStmt) stmtNode()     {}
func (*ForStmt) stmtNode()         {}
func (*ReturnStmt) stmtNode()      {}
func (*BreakStmt) stmtNode()       {}
func (*ContinueStmt) stmtNode()    {}
func (*EmitStmt) stmtNode()        {}
func (*RevertStmt) stmtNode()      {}
func (*ThrowStmt) stmtNode()       {}
func (*VarDeclStmt) stmtNode()     {}
func (*ExprStmt) stmtNode()        {}
func (*PlaceholderStmt) stmtNode() {}
func (*AssemblyStmt) stmtNode()    {}
func (*TryStmt) stmtNode()         {}

func (*Identifier) exprNode()      {}
func (*NumberLit) exprNode()       {}
func (*StringLit) exprNode()       {}
func (*BoolLit) exprNode()         {}
func (*BinaryExpr) exprNode()      {}
func (*UnaryExpr) exprNode()       {}
func (*AssignExpr) exprNode()      {}
func (*ConditionalExpr) exprNode() {}
func (*CallExpr) exprNode()        {}
func (*CallOptionsExpr) exprNode() {}
func (*MemberExpr) exprNode()      {}
func (*IndexExpr) exprNode()       {}
func (*SliceExpr) exprNode()       {}
func (*TupleExpr) exprNode()       {}
func (*ParenExpr) exprNode()       {}
func (*ArrayLit) exprNode()        {}
func (*NewExpr) exprNode()         {}
func (*TypeExpr) exprNode()        {}

func (*ElementaryType) typeNode() {}
func (*UserType) typeNode()       {}
func (*MappingType) typeNode()    {}
func (*ArrayType) typeNode()      {}
func (*FunctionType) typeNode()   {}

// ---- children ----

type childList []Node

func (c *childList) add(ns ...Node) {
	for _, n := range ns {
		if n == nil || isNilNode(n) {
			continue
		}
		*c = append(*c, n)
	}
}

// isNilNode catches typed nil pointers stored in interfaces.
func isNilNode(n Node) bool {
	switch v := n.(type) {
	case *Identifier:
		return v == nil
	case *Block:
		return v == nil
	case *UserType:
		return v == nil
	case *CallExpr:
		return v == nil
	case *Param:
		return v == nil
	}
	return false
}

func exprs[T Node](list []T) []Node {
	out := make([]Node, 0, len(list))
	for _, e := range list {
		out = append(out, e)
	}
	return out
}

func (n *File) Children() []Node { var c childList; c.add(exprs(n.Decls)...); return c }

func (n *PragmaDirective) Children() []Node { return nil }
func (n *ImportDirective) Children() []Node { return nil }

func (n *ContractDecl) Children() []Node {
	var c childList
	c.add(n.Name)
	c.add(exprs(n.Bases)...)
	c.add(exprs(n.Members)...)
	return c
}

func (n *InheritanceSpecifier) Children() []Node {
	var c childList
	c.add(n.Name)
	c.add(exprs(n.Args)...)
	return c
}

func (n *StateVarDecl) Children() []Node {
	var c childList
	c.add(n.Type, n.Name, n.Value)
	return c
}

func (n *FunctionDecl) Children() []Node {
	var c childList
	c.add(n.Name)
	c.add(exprs(n.Params)...)
	c.add(exprs(n.Modifiers)...)
	c.add(exprs(n.Returns)...)
	c.add(n.Body)
	return c
}

func (n *ModifierInvocation) Children() []Node {
	var c childList
	c.add(n.Name)
	c.add(exprs(n.Args)...)
	return c
}

func (n *ModifierDecl) Children() []Node {
	var c childList
	c.add(n.Name)
	c.add(exprs(n.Params)...)
	c.add(n.Body)
	return c
}

func (n *EventDecl) Children() []Node {
	var c childList
	c.add(n.Name)
	c.add(exprs(n.Params)...)
	return c
}

func (n *ErrorDecl) Children() []Node {
	var c childList
	c.add(n.Name)
	c.add(exprs(n.Params)...)
	return c
}

func (n *StructDecl) Children() []Node {
	var c childList
	c.add(n.Name)
	c.add(exprs(n.Fields)...)
	return c
}

func (n *EnumDecl) Children() []Node {
	var c childList
	c.add(n.Name)
	c.add(exprs(n.Values)...)
	return c
}

func (n *UsingDecl) Children() []Node {
	var c childList
	c.add(n.Library, n.Type)
	return c
}

func (n *Param) Children() []Node {
	var c childList
	c.add(n.Type, n.Name)
	return c
}

func (n *ElementaryType) Children() []Node { return nil }
func (n *UserType) Children() []Node       { return exprs(n.Path) }

func (n *MappingType) Children() []Node {
	var c childList
	c.add(n.Key, n.Value)
	return c
}

func (n *ArrayType) Children() []Node {
	var c childList
	c.add(n.Elem, n.Len)
	return c
}

func (n *FunctionType) Children() []Node {
	var c childList
	c.add(exprs(n.Params)...)
	c.add(exprs(n.Returns)...)
	return c
}

func (n *Block) Children() []Node { return exprs(n.Stmts) }

func (n *IfStmt) Children() []Node {
	var c childList
	c.add(n.Cond, n.Then, n.Else)
	return c
}

func (n *WhileStmt) Children() []Node {
	var c childList
	c.add(n.Cond, n.Body)
	return c
}

func (n *DoWhileStmt) Children() []Node {
	var c childList
	c.add(n.Body, n.Cond)
	return c
}

func (n *ForStmt) Children() []Node {
	var c childList
	c.add(n.Init, n.Cond, n.Post, n.Body)
	return c
}

func (n *ReturnStmt) Children() []Node {
	var c childList
	c.add(n.Value)
	return c
}

func (n *BreakStmt) Children() []Node    { return nil }
func (n *ContinueStmt) Children() []Node { return nil }
func (n *ThrowStmt) Children() []Node    { return nil }

func (n *EmitStmt) Children() []Node {
	var c childList
	c.add(n.Call)
	return c
}

func (n *RevertStmt) Children() []Node {
	var c childList
	c.add(n.Error)
	c.add(exprs(n.Args)...)
	return c
}

func (n *VarDeclStmt) Children() []Node {
	var c childList
	c.add(exprs(n.Vars)...)
	c.add(n.Value)
	return c
}

func (n *ExprStmt) Children() []Node        { return []Node{n.X} }
func (n *PlaceholderStmt) Children() []Node { return nil }
func (n *AssemblyStmt) Children() []Node    { return nil }

func (n *TryStmt) Children() []Node {
	var c childList
	c.add(n.Call)
	c.add(exprs(n.Returns)...)
	c.add(n.Body)
	c.add(exprs(n.Catches)...)
	return c
}

func (n *CatchClause) Children() []Node {
	var c childList
	c.add(exprs(n.Params)...)
	c.add(n.Body)
	return c
}

func (n *Identifier) Children() []Node { return nil }
func (n *NumberLit) Children() []Node  { return nil }
func (n *StringLit) Children() []Node  { return nil }
func (n *BoolLit) Children() []Node    { return nil }

func (n *BinaryExpr) Children() []Node { return []Node{n.X, n.Y} }
func (n *UnaryExpr) Children() []Node  { return []Node{n.X} }
func (n *AssignExpr) Children() []Node { return []Node{n.LHS, n.RHS} }

func (n *ConditionalExpr) Children() []Node { return []Node{n.Cond, n.Then, n.Else} }

func (n *CallExpr) Children() []Node {
	var c childList
	c.add(n.Fun)
	c.add(exprs(n.Args)...)
	return c
}

func (n *CallOptionsExpr) Children() []Node {
	var c childList
	c.add(n.X)
	c.add(exprs(n.Values)...)
	return c
}

func (n *MemberExpr) Children() []Node { return []Node{n.X} }

func (n *IndexExpr) Children() []Node {
	var c childList
	c.add(n.X, n.Index)
	return c
}

func (n *SliceExpr) Children() []Node {
	var c childList
	c.add(n.X, n.Low, n.High)
	return c
}

func (n *TupleExpr) Children() []Node {
	var c childList
	c.add(exprs(n.Elems)...)
	return c
}

func (n *ParenExpr) Children() []Node { return []Node{n.X} }
func (n *ArrayLit) Children() []Node  { return exprs(n.Elems) }
func (n *NewExpr) Children() []Node   { return []Node{n.Type} }
func (n *TypeExpr) Children() []Node  { return []Node{n.Type} }

// Inspect traverses the tree rooted at n in depth-first order. If f returns
// false the children of the current node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || isNilNode(n) || !f(n) {
		return
	}
	for _, c := range n.Children() {
		Inspect(c, f)
	}
}

// Unparen strips any enclosing parentheses.
func Unparen(e Expr) Expr {
	for {
		p, ok := e.(*ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}
