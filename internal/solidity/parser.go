package solidity

import (
	"strings"
)

// bailout unwinds the parser to the nearest declaration boundary.
type bailout struct{}

type parser struct {
	path string
	src  string
	toks []Token
	p    int
	errs ErrorList
}

// Parse builds the syntax tree for src. A malformed declaration is skipped up
// to the next declaration boundary, so the returned unit holds every
// declaration that parsed and the error list holds every syntax error.
func Parse(path, src string) (*SourceUnit, ErrorList) {
	p := &parser{path: path, src: src, toks: Tokenize(src)}
	root := p.parseFile()
	return &SourceUnit{Path: path, Source: src, Root: root}, p.errs
}

// ---- token helpers ----

func (p *parser) tok() Token { return p.toks[p.p] }

func (p *parser) peek(n int) Token {
	if p.p+n < len(p.toks) {
		return p.toks[p.p+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() Token {
	t := p.toks[p.p]
	if t.Kind != EOF {
		p.p++
	}
	return t
}

func (p *parser) at(text string) bool { return p.tok().Is(text) }

func (p *parser) accept(text string) bool {
	if p.at(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(text string) Token {
	if !p.at(text) {
		p.fail("'" + text + "'")
	}
	return p.next()
}

func (p *parser) fail(expected string) {
	t := p.tok()
	found := t.describe()
	if t.Kind == Illegal {
		found = "illegal input " + t.describe()
	}
	p.errs = append(p.errs, &SyntaxError{Path: p.path, Span: t.Span, Expected: expected, Found: found})
	panic(bailout{})
}

func (p *parser) start() Pos { return p.tok().Span.Start }

func (p *parser) prevEnd() Pos {
	if p.p == 0 {
		return p.toks[0].Span.Start
	}
	return p.toks[p.p-1].Span.End
}

func (p *parser) span(start Pos) Span { return Span{Start: start, End: p.prevEnd()} }

func (p *parser) ident() *Identifier {
	t := p.tok()
	if t.Kind != Ident {
		p.fail("identifier")
	}
	p.next()
	return &Identifier{Range: Range{Src: t.Span}, Name: t.Text}
}

// ---- recovery ----

func isTopLevelStart(t Token) bool {
	switch {
	case t.Is("pragma"), t.Is("import"), t.Is("contract"), t.Is("interface"), t.Is("library"), t.Is("abstract"):
		return true
	}
	return false
}

func isMemberStart(t Token) bool {
	switch {
	case t.Is("function"), t.Is("modifier"), t.Is("event"), t.Is("error"), t.Is("struct"),
		t.Is("enum"), t.Is("using"), t.Is("constructor"), t.Is("fallback"), t.Is("receive"):
		return true
	}
	return false
}

// guarded runs parse and, on a syntax error, rewinds to the declaration
// start and skips to the next declaration boundary.
func (p *parser) guarded(topLevel bool, parse func() Decl) (d Decl) {
	begin := p.p
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			p.p = begin
			p.skipDecl(topLevel)
			d = nil
		}
	}()
	return parse()
}

func (p *parser) skipDecl(topLevel bool) {
	depth := 0
	moved := false
	for {
		t := p.tok()
		if t.Kind == EOF {
			return
		}
		if depth == 0 && moved {
			if topLevel && isTopLevelStart(t) {
				return
			}
			if !topLevel && isMemberStart(t) {
				return
			}
		}
		if depth == 0 && !topLevel && t.Is("}") {
			return
		}
		p.next()
		moved = true
		// only braces nest; an unbalanced paren is the usual cause of the error
		switch {
		case t.Is("{"):
			depth++
		case t.Is("}"):
			if depth > 0 {
				depth--
			}
			if depth == 0 {
				return
			}
		case t.Is(";") && depth == 0:
			return
		}
	}
}

// ---- declarations ----

func (p *parser) parseFile() *File {
	f := &File{}
	for p.tok().Kind != EOF {
		if d := p.guarded(true, p.parseTopLevel); d != nil {
			f.Decls = append(f.Decls, d)
		}
	}
	f.Src = Span{Start: Pos{Offset: 0, Line: 1, Column: 1}, End: p.tok().Span.End}
	return f
}

func (p *parser) parseTopLevel() Decl {
	t := p.tok()
	switch {
	case t.Is("pragma"):
		start := p.start()
		p.next()
		name := p.tok()
		if name.Kind != Ident && name.Kind != Keyword {
			p.fail("pragma name")
		}
		p.next()
		value := p.rawUntilSemicolon()
		return &PragmaDirective{Range: Range{Src: p.span(start)}, Name: name.Text, Value: value}
	case t.Is("import"):
		start := p.start()
		p.next()
		raw := p.rawUntilSemicolon()
		return &ImportDirective{Range: Range{Src: p.span(start)}, Raw: raw}
	case t.Is("contract"), t.Is("interface"), t.Is("library"), t.Is("abstract"):
		return p.parseContract()
	}
	return p.parseMember()
}

// rawUntilSemicolon consumes tokens up to and including ';' and returns the
// trimmed source text in between.
func (p *parser) rawUntilSemicolon() string {
	from := p.tok().Span.Start.Offset
	for !p.at(";") {
		if p.tok().Kind == EOF {
			p.fail("';'")
		}
		p.next()
	}
	to := p.tok().Span.Start.Offset
	p.next()
	return strings.TrimSpace(p.src[from:to])
}

func (p *parser) parseContract() Decl {
	start := p.start()
	c := &ContractDecl{Doc: p.tok().Doc}
	if p.accept("abstract") {
		c.Abstract = true
	}
	kw := p.tok()
	if !kw.Is("contract") && !kw.Is("interface") && !kw.Is("library") {
		p.fail("'contract', 'interface' or 'library'")
	}
	p.next()
	c.Keyword = kw.Text
	c.Name = p.ident()
	if p.accept("is") {
		for {
			bs := p.start()
			spec := &InheritanceSpecifier{Name: p.parseUserType()}
			if p.at("(") {
				spec.HasArgs = true
				spec.Args = p.parseArgList()
			}
			spec.Src = p.span(bs)
			c.Bases = append(c.Bases, spec)
			if !p.accept(",") {
				break
			}
		}
	}
	p.expect("{")
	for !p.at("}") && p.tok().Kind != EOF {
		if d := p.guarded(false, p.parseMember); d != nil {
			c.Members = append(c.Members, d)
		}
	}
	p.expect("}")
	c.Src = p.span(start)
	return c
}

func (p *parser) parseMember() Decl {
	t := p.tok()
	switch {
	case t.Is("function") && p.peek(1).Is("(") && p.looksLikeFunctionTypeVar():
		return p.parseStateVar()
	case t.Is("function"), t.Is("constructor"), t.Is("fallback"), t.Is("receive"):
		return p.parseFunction()
	case t.Is("modifier"):
		return p.parseModifier()
	case t.Is("event"):
		return p.parseEvent()
	case t.Is("error"):
		start := p.start()
		p.next()
		e := &ErrorDecl{Doc: t.Doc, Name: p.ident()}
		e.Params = p.parseParamList(false)
		p.expect(";")
		e.Src = p.span(start)
		return e
	case t.Is("struct"):
		return p.parseStruct()
	case t.Is("enum"):
		start := p.start()
		p.next()
		e := &EnumDecl{Doc: t.Doc, Name: p.ident()}
		p.expect("{")
		for !p.at("}") {
			e.Values = append(e.Values, p.ident())
			if !p.accept(",") {
				break
			}
		}
		p.expect("}")
		e.Src = p.span(start)
		return e
	case t.Is("using"):
		start := p.start()
		p.next()
		u := &UsingDecl{Library: p.parseUserType()}
		p.expect("for")
		if !p.accept("*") {
			u.Type = p.parseType()
		}
		if t := p.tok(); t.Kind == Ident && t.Text == "global" {
			p.next()
		}
		p.expect(";")
		u.Src = p.span(start)
		return u
	case t.Kind == Ident || t.Is("mapping"):
		return p.parseStateVar()
	}
	p.fail("declaration")
	return nil
}

// looksLikeFunctionTypeVar tells `function(uint) external returns (uint) cb;`
// apart from an unnamed function declaration.
func (p *parser) looksLikeFunctionTypeVar() bool {
	save := p.p
	defer func() { p.p = save }()
	if !p.skipTypeTokens() {
		return false
	}
	t := p.tok()
	if t.Kind == Ident {
		return true
	}
	for _, kw := range []string{"public", "private", "internal", "constant", "immutable", "override"} {
		if t.Is(kw) {
			return true
		}
	}
	return false
}

func (p *parser) parseStateVar() Decl {
	start := p.start()
	v := &StateVarDecl{Doc: p.tok().Doc, Type: p.parseType()}
loop:
	for {
		t := p.tok()
		switch {
		case t.Is("public"), t.Is("private"), t.Is("internal"):
			v.Visibility = t.Text
			p.next()
		case t.Is("constant"):
			v.Constant = true
			p.next()
		case t.Is("immutable"):
			v.Immutable = true
			p.next()
		case t.Is("override"):
			v.Override = true
			p.next()
			p.skipOverrideList()
		default:
			break loop
		}
	}
	v.Name = p.ident()
	if p.accept("=") {
		v.Value = p.parseExpr()
	}
	p.expect(";")
	v.Src = p.span(start)
	return v
}

func (p *parser) skipOverrideList() {
	if !p.accept("(") {
		return
	}
	for !p.at(")") {
		p.parseUserType()
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
}

func (p *parser) parseFunction() Decl {
	start := p.start()
	kw := p.next()
	f := &FunctionDecl{Doc: kw.Doc, Keyword: kw.Text}
	if kw.Is("function") {
		switch {
		case p.tok().Kind == Ident:
			f.Name = p.ident()
		case p.at("fallback") || p.at("receive"):
			// pre-0.6 style names are accepted as plain functions
			t := p.next()
			f.Name = &Identifier{Range: Range{Src: t.Span}, Name: t.Text}
		}
	}
	f.Params = p.parseParamList(false)
loop:
	for {
		t := p.tok()
		switch {
		case t.Is("public"), t.Is("private"), t.Is("internal"), t.Is("external"):
			f.Visibility = t.Text
			p.next()
		case t.Is("pure"), t.Is("view"), t.Is("payable"), t.Is("constant"):
			f.Mutability = t.Text
			if t.Text == "constant" {
				f.Mutability = "view"
			}
			p.next()
		case t.Is("virtual"):
			f.Virtual = true
			p.next()
		case t.Is("override"):
			f.Override = true
			p.next()
			p.skipOverrideList()
		case t.Kind == Ident:
			ms := p.start()
			m := &ModifierInvocation{Name: p.parseUserType()}
			if p.at("(") {
				m.HasArgs = true
				m.Args = p.parseArgList()
			}
			m.Src = p.span(ms)
			f.Modifiers = append(f.Modifiers, m)
		default:
			break loop
		}
	}
	if p.accept("returns") {
		f.Returns = p.parseParamList(false)
	}
	if !p.accept(";") {
		f.Body = p.parseBlock()
	}
	f.Src = p.span(start)
	return f
}

func (p *parser) parseModifier() Decl {
	start := p.start()
	kw := p.next()
	m := &ModifierDecl{Doc: kw.Doc, Name: p.ident()}
	if p.at("(") {
		m.HasParen = true
		m.Params = p.parseParamList(false)
	}
loop:
	for {
		switch {
		case p.at("virtual"):
			m.Virtual = true
			p.next()
		case p.at("override"):
			m.Override = true
			p.next()
			p.skipOverrideList()
		default:
			break loop
		}
	}
	if !p.accept(";") {
		m.Body = p.parseBlock()
	}
	m.Src = p.span(start)
	return m
}

func (p *parser) parseEvent() Decl {
	start := p.start()
	kw := p.next()
	e := &EventDecl{Doc: kw.Doc, Name: p.ident()}
	e.Params = p.parseParamList(true)
	if p.accept("anonymous") {
		e.Anonymous = true
	}
	p.expect(";")
	e.Src = p.span(start)
	return e
}

func (p *parser) parseStruct() Decl {
	start := p.start()
	kw := p.next()
	s := &StructDecl{Doc: kw.Doc, Name: p.ident()}
	p.expect("{")
	for !p.at("}") {
		fs := p.start()
		field := &Param{Type: p.parseType()}
		field.Name = p.ident()
		field.Src = p.span(fs)
		p.expect(";")
		s.Fields = append(s.Fields, field)
	}
	p.expect("}")
	s.Src = p.span(start)
	return s
}

func (p *parser) parseParamList(event bool) []*Param {
	p.expect("(")
	var params []*Param
	for !p.at(")") {
		params = append(params, p.parseParam(event))
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	return params
}

func (p *parser) parseParam(event bool) *Param {
	start := p.start()
	prm := &Param{Type: p.parseType()}
	if t := p.tok(); t.Is("memory") || t.Is("storage") || t.Is("calldata") {
		prm.Location = t.Text
		p.next()
	}
	if event && p.accept("indexed") {
		prm.Indexed = true
	}
	if p.tok().Kind == Ident {
		prm.Name = p.ident()
	}
	prm.Src = p.span(start)
	return prm
}

// ---- types ----

func (p *parser) parseUserType() *UserType {
	start := p.start()
	u := &UserType{Path: []*Identifier{p.ident()}}
	for p.at(".") && p.peek(1).Kind == Ident {
		p.next()
		u.Path = append(u.Path, p.ident())
	}
	u.Src = p.span(start)
	return u
}

func (p *parser) parseType() TypeName {
	start := p.start()
	var t TypeName
	tok := p.tok()
	switch {
	case tok.Is("mapping"):
		p.next()
		p.expect("(")
		key := p.parseType()
		if p.tok().Kind == Ident {
			p.next()
		}
		p.expect("=>")
		val := p.parseType()
		if p.tok().Kind == Ident {
			p.next()
		}
		p.expect(")")
		t = &MappingType{Range: Range{Src: p.span(start)}, Key: key, Value: val}
	case tok.Kind == Ident && IsElementaryType(tok.Text):
		p.next()
		et := &ElementaryType{Name: tok.Text}
		if tok.Text == "address" && p.accept("payable") {
			et.Payable = true
		}
		et.Src = p.span(start)
		t = et
	case tok.Kind == Ident:
		t = p.parseUserType()
	case tok.Is("function"):
		t = p.parseFunctionType()
	default:
		p.fail("type name")
	}
	for p.at("[") {
		p.next()
		var n Expr
		if !p.at("]") {
			n = p.parseExpr()
		}
		p.expect("]")
		t = &ArrayType{Range: Range{Src: p.span(start)}, Elem: t, Len: n}
	}
	return t
}

func (p *parser) parseFunctionType() *FunctionType {
	start := p.start()
	p.expect("function")
	ft := &FunctionType{Params: p.parseParamList(false)}
	for {
		t := p.tok()
		if t.Is("internal") || t.Is("external") {
			ft.Visibility = t.Text
		} else if t.Is("pure") || t.Is("view") || t.Is("payable") {
			ft.Mutability = t.Text
		} else {
			break
		}
		p.next()
	}
	if p.accept("returns") {
		ft.Returns = p.parseParamList(false)
	}
	ft.Src = p.span(start)
	return ft
}

// skipParens advances over a balanced parenthesized group.
func (p *parser) skipParens() bool {
	if !p.at("(") {
		return false
	}
	depth := 0
	for {
		t := p.next()
		switch {
		case t.Kind == EOF:
			return false
		case t.Is("("):
			depth++
		case t.Is(")"):
			depth--
		}
		if depth == 0 {
			return true
		}
	}
}

// skipTypeTokens advances over something shaped like a type name without
// recording errors. It is only used for lookahead.
func (p *parser) skipTypeTokens() bool {
	switch t := p.tok(); {
	case t.Is("mapping"):
		p.next()
		if !p.skipParens() {
			return false
		}
	case t.Is("function"):
		p.next()
		if !p.skipParens() {
			return false
		}
		for t := p.tok(); t.Is("internal") || t.Is("external") || t.Is("pure") || t.Is("view") || t.Is("payable"); t = p.tok() {
			p.next()
		}
		if p.accept("returns") && !p.skipParens() {
			return false
		}
	case t.Kind == Ident:
		p.next()
		if t.Text == "address" && p.at("payable") {
			p.next()
		}
		for p.at(".") && p.peek(1).Kind == Ident {
			p.next()
			p.next()
		}
	default:
		return false
	}
	for p.at("[") {
		p.next()
		if p.accept("]") {
			continue
		}
		if k := p.tok().Kind; (k == Number || k == Ident) && p.peek(1).Is("]") {
			p.next()
			p.next()
			continue
		}
		return false
	}
	return true
}

func (p *parser) looksLikeDecl() bool {
	save := p.p
	defer func() { p.p = save }()
	if !p.skipTypeTokens() {
		return false
	}
	t := p.tok()
	return t.Kind == Ident || t.Is("memory") || t.Is("storage") || t.Is("calldata")
}

func (p *parser) looksLikeTupleDecl() bool {
	save := p.p
	defer func() { p.p = save }()
	p.next()
	for p.at(",") {
		p.next()
	}
	if p.at(")") {
		return false
	}
	return p.looksLikeDecl()
}

// ---- statements ----

func (p *parser) parseBlock() *Block {
	start := p.start()
	p.expect("{")
	b := &Block{}
	for !p.at("}") {
		if p.tok().Kind == EOF {
			p.fail("'}'")
		}
		b.Stmts = append(b.Stmts, p.parseStmt())
	}
	p.expect("}")
	b.Src = p.span(start)
	return b
}

func (p *parser) parseStmt() Stmt {
	start := p.start()
	t := p.tok()
	switch {
	case t.Is("{"):
		return p.parseBlock()
	case t.Is("unchecked"):
		p.next()
		b := p.parseBlock()
		b.Unchecked = true
		b.Src = p.span(start)
		return b
	case t.Is("if"):
		p.next()
		p.expect("(")
		s := &IfStmt{Cond: p.parseExpr()}
		p.expect(")")
		s.Then = p.parseStmt()
		if p.accept("else") {
			s.Else = p.parseStmt()
		}
		s.Src = p.span(start)
		return s
	case t.Is("while"):
		p.next()
		p.expect("(")
		s := &WhileStmt{Cond: p.parseExpr()}
		p.expect(")")
		s.Body = p.parseStmt()
		s.Src = p.span(start)
		return s
	case t.Is("do"):
		p.next()
		s := &DoWhileStmt{Body: p.parseStmt()}
		p.expect("while")
		p.expect("(")
		s.Cond = p.parseExpr()
		p.expect(")")
		p.expect(";")
		s.Src = p.span(start)
		return s
	case t.Is("for"):
		return p.parseFor()
	case t.Is("return"):
		p.next()
		s := &ReturnStmt{}
		if !p.at(";") {
			s.Value = p.parseExpr()
		}
		p.expect(";")
		s.Src = p.span(start)
		return s
	case t.Is("break"):
		p.next()
		p.expect(";")
		return &BreakStmt{Range{Src: p.span(start)}}
	case t.Is("continue"):
		p.next()
		p.expect(";")
		return &ContinueStmt{Range{Src: p.span(start)}}
	case t.Is("throw"):
		p.next()
		p.expect(";")
		return &ThrowStmt{Range{Src: p.span(start)}}
	case t.Is("emit"):
		p.next()
		x := p.parseExpr()
		call, ok := x.(*CallExpr)
		if !ok {
			p.fail("event invocation")
		}
		p.expect(";")
		return &EmitStmt{Range: Range{Src: p.span(start)}, Call: call}
	case t.Is("revert"):
		p.next()
		s := &RevertStmt{}
		if !p.at("(") {
			s.Error = p.parseUserType()
		}
		s.Args = p.parseArgList()
		p.expect(";")
		s.Src = p.span(start)
		return s
	case t.Is("assembly"):
		return p.parseAssembly()
	case t.Is("try"):
		return p.parseTry()
	case t.Kind == Ident && t.Text == "_" && p.peek(1).Is(";"):
		p.next()
		p.next()
		return &PlaceholderStmt{Range{Src: p.span(start)}}
	case t.Is("("):
		if p.looksLikeTupleDecl() {
			return p.parseTupleDecl()
		}
	default:
		if p.looksLikeDecl() {
			return p.parseVarDecl(true)
		}
	}
	x := p.parseExpr()
	p.expect(";")
	return &ExprStmt{Range: Range{Src: p.span(start)}, X: x}
}

func (p *parser) parseVarDecl(semicolon bool) *VarDeclStmt {
	start := p.start()
	s := &VarDeclStmt{Vars: []*Param{p.parseParam(false)}}
	if s.Vars[0].Name == nil {
		p.fail("variable name")
	}
	if p.accept("=") {
		s.Value = p.parseExpr()
	}
	if semicolon {
		p.expect(";")
	}
	s.Src = p.span(start)
	return s
}

func (p *parser) parseTupleDecl() *VarDeclStmt {
	start := p.start()
	p.expect("(")
	s := &VarDeclStmt{Tuple: true}
	for {
		if p.at(",") || p.at(")") {
			s.Vars = append(s.Vars, nil)
		} else {
			s.Vars = append(s.Vars, p.parseParam(false))
		}
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	p.expect("=")
	s.Value = p.parseExpr()
	p.expect(";")
	s.Src = p.span(start)
	return s
}

func (p *parser) parseFor() Stmt {
	start := p.start()
	p.next()
	p.expect("(")
	s := &ForStmt{}
	switch {
	case p.accept(";"):
	case p.at("(") && p.looksLikeTupleDecl():
		s.Init = p.parseTupleDecl()
	case p.looksLikeDecl():
		s.Init = p.parseVarDecl(true)
	default:
		es := p.start()
		x := p.parseExpr()
		p.expect(";")
		s.Init = &ExprStmt{Range: Range{Src: p.span(es)}, X: x}
	}
	if !p.at(";") {
		s.Cond = p.parseExpr()
	}
	p.expect(";")
	if !p.at(")") {
		s.Post = p.parseExpr()
	}
	p.expect(")")
	s.Body = p.parseStmt()
	s.Src = p.span(start)
	return s
}

func (p *parser) parseAssembly() Stmt {
	start := p.start()
	p.next()
	if p.tok().Kind == String {
		p.next()
	}
	if p.at("(") {
		p.parseArgList()
	}
	if !p.at("{") {
		p.fail("'{'")
	}
	from := p.tok().Span.Start.Offset
	depth := 0
	for {
		t := p.next()
		switch {
		case t.Kind == EOF:
			p.fail("'}'")
		case t.Is("{"):
			depth++
		case t.Is("}"):
			depth--
		}
		if depth == 0 {
			break
		}
	}
	raw := p.src[from:p.prevEnd().Offset]
	return &AssemblyStmt{Range: Range{Src: p.span(start)}, Raw: raw}
}

func (p *parser) parseTry() Stmt {
	start := p.start()
	p.next()
	s := &TryStmt{Call: p.parseExpr()}
	if p.accept("returns") {
		s.Returns = p.parseParamList(false)
	}
	s.Body = p.parseBlock()
	for p.at("catch") {
		cs := p.start()
		p.next()
		c := &CatchClause{}
		if p.tok().Kind == Ident {
			c.Ident = p.next().Text
		}
		if p.at("(") {
			c.HasParen = true
			c.Params = p.parseParamList(false)
		}
		c.Body = p.parseBlock()
		c.Src = p.span(cs)
		s.Catches = append(s.Catches, c)
	}
	if len(s.Catches) == 0 {
		p.fail("'catch'")
	}
	s.Src = p.span(start)
	return s
}

// ---- expressions ----

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"|=": true, "&=": true, "^=": true, "<<=": true, ">>=": true, ">>>=": true,
}

var binaryPrec = map[string]int{
	"||": 1, "&&": 2,
	"==": 3, "!=": 3,
	"<": 4, ">": 4, "<=": 4, ">=": 4,
	"|": 5, "^": 6, "&": 7,
	"<<": 8, ">>": 8, ">>>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
	"**": 11,
}

func (p *parser) parseExpr() Expr {
	start := p.start()
	lhs := p.parseTernary()
	if t := p.tok(); t.Kind == Punct && assignOps[t.Text] {
		p.next()
		rhs := p.parseExpr()
		return &AssignExpr{Range: Range{Src: p.span(start)}, Op: t.Text, LHS: lhs, RHS: rhs}
	}
	return lhs
}

func (p *parser) parseTernary() Expr {
	start := p.start()
	cond := p.parseBinary(1)
	if !p.accept("?") {
		return cond
	}
	then := p.parseTernary()
	p.expect(":")
	els := p.parseTernary()
	return &ConditionalExpr{Range: Range{Src: p.span(start)}, Cond: cond, Then: then, Else: els}
}

func (p *parser) parseBinary(minPrec int) Expr {
	start := p.start()
	x := p.parseUnary()
	for {
		t := p.tok()
		prec, ok := binaryPrec[t.Text]
		if t.Kind != Punct || !ok || prec < minPrec {
			return x
		}
		p.next()
		var y Expr
		if t.Text == "**" {
			y = p.parseBinary(prec)
		} else {
			y = p.parseBinary(prec + 1)
		}
		x = &BinaryExpr{Range: Range{Src: p.span(start)}, Op: t.Text, X: x, Y: y}
	}
}

func (p *parser) parseUnary() Expr {
	start := p.start()
	t := p.tok()
	if t.Is("!") || t.Is("~") || t.Is("-") || t.Is("++") || t.Is("--") || t.Is("delete") {
		p.next()
		x := p.parseUnary()
		return &UnaryExpr{Range: Range{Src: p.span(start)}, Op: t.Text, X: x}
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() Expr {
	start := p.start()
	x := p.parsePrimary()
	for {
		t := p.tok()
		switch {
		case t.Is("."):
			p.next()
			name := p.tok()
			if name.Kind != Ident && name.Kind != Keyword {
				p.fail("member name")
			}
			p.next()
			x = &MemberExpr{Range: Range{Src: p.span(start)}, X: x, Name: name.Text}
		case t.Is("["):
			p.next()
			var idx Expr
			if !p.at("]") && !p.at(":") {
				idx = p.parseExpr()
			}
			if p.accept(":") {
				sl := &SliceExpr{X: x, Low: idx}
				if !p.at("]") {
					sl.High = p.parseExpr()
				}
				p.expect("]")
				sl.Src = p.span(start)
				x = sl
				continue
			}
			p.expect("]")
			x = &IndexExpr{Range: Range{Src: p.span(start)}, X: x, Index: idx}
		case t.Is("("):
			call := &CallExpr{Fun: x}
			if p.peek(1).Is("{") {
				p.next()
				call.Names, call.Args = p.parseNamedValues()
				if call.Names == nil {
					call.Names = []string{}
				}
				p.expect(")")
			} else {
				call.Args = p.parseArgList()
			}
			call.Src = p.span(start)
			x = call
		case t.Is("{") && p.peek(1).Kind == Ident && p.peek(2).Is(":"):
			opts := &CallOptionsExpr{X: x}
			opts.Names, opts.Values = p.parseNamedValues()
			opts.Src = p.span(start)
			x = opts
		case t.Is("++"), t.Is("--"):
			p.next()
			x = &UnaryExpr{Range: Range{Src: p.span(start)}, Op: t.Text, X: x, Postfix: true}
		default:
			return x
		}
	}
}

// parseNamedValues parses {name: value, ...}.
func (p *parser) parseNamedValues() ([]string, []Expr) {
	p.expect("{")
	var names []string
	var values []Expr
	for !p.at("}") {
		names = append(names, p.ident().Name)
		p.expect(":")
		values = append(values, p.parseExpr())
		if !p.accept(",") {
			break
		}
	}
	p.expect("}")
	return names, values
}

func (p *parser) parseArgList() []Expr {
	p.expect("(")
	var args []Expr
	for !p.at(")") {
		args = append(args, p.parseExpr())
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	return args
}

func (p *parser) parsePrimary() Expr {
	start := p.start()
	t := p.tok()
	switch {
	case t.Kind == Ident:
		p.next()
		return &Identifier{Range: Range{Src: t.Span}, Name: t.Text}
	case t.Is("payable"):
		p.next()
		return &Identifier{Range: Range{Src: t.Span}, Name: t.Text}
	case t.Kind == Number || t.Kind == HexNumber:
		p.next()
		n := &NumberLit{Value: t.Text}
		if u := p.tok(); u.Kind == Ident && numberUnits[u.Text] && t.Kind == Number {
			p.next()
			n.Unit = u.Text
		}
		n.Src = p.span(start)
		return n
	case t.Kind == String || t.Kind == HexString:
		p.next()
		return &StringLit{Range: Range{Src: t.Span}, Value: t.Text}
	case t.Is("true"), t.Is("false"):
		p.next()
		return &BoolLit{Range: Range{Src: t.Span}, Value: t.Text == "true"}
	case t.Is("("):
		p.next()
		if p.accept(")") {
			return &TupleExpr{Range: Range{Src: p.span(start)}}
		}
		var elems []Expr
		commas := 0
		for {
			if p.at(",") || p.at(")") {
				elems = append(elems, nil)
			} else {
				elems = append(elems, p.parseExpr())
			}
			if !p.accept(",") {
				break
			}
			commas++
		}
		p.expect(")")
		if commas == 0 {
			return &ParenExpr{Range: Range{Src: p.span(start)}, X: elems[0]}
		}
		return &TupleExpr{Range: Range{Src: p.span(start)}, Elems: elems}
	case t.Is("["):
		p.next()
		a := &ArrayLit{}
		for !p.at("]") {
			a.Elems = append(a.Elems, p.parseExpr())
			if !p.accept(",") {
				break
			}
		}
		p.expect("]")
		a.Src = p.span(start)
		return a
	case t.Is("new"):
		p.next()
		typ := p.parseNewType()
		return &NewExpr{Range: Range{Src: p.span(start)}, Type: typ}
	case t.Is("mapping"):
		typ := p.parseType()
		return &TypeExpr{Range: Range{Src: p.span(start)}, Type: typ}
	}
	p.fail("expression")
	return nil
}

// parseNewType parses the type after 'new'. Array brackets must be empty so
// that `new T[](n)` is not confused with indexing.
func (p *parser) parseNewType() TypeName {
	start := p.start()
	var t TypeName
	tok := p.tok()
	switch {
	case tok.Kind == Ident && IsElementaryType(tok.Text):
		p.next()
		et := &ElementaryType{Name: tok.Text}
		if tok.Text == "address" && p.accept("payable") {
			et.Payable = true
		}
		et.Src = p.span(start)
		t = et
	case tok.Kind == Ident:
		t = p.parseUserType()
	default:
		p.fail("type name")
	}
	for p.at("[") && p.peek(1).Is("]") {
		p.next()
		p.next()
		t = &ArrayType{Range: Range{Src: p.span(start)}, Elem: t}
	}
	return t
}
