package solidity

import (
	"fmt"
	"strings"
)

// Print renders a syntax tree back to source text. Parsing the output yields
// a tree that is structurally identical to n, spans aside.
func Print(n Node) string {
	pr := &printer{}
	pr.node(n)
	return pr.b.String()
}

// ExprString renders a single expression on one line.
func ExprString(e Expr) string {
	pr := &printer{}
	pr.expr(e)
	return pr.b.String()
}

type printer struct {
	b      strings.Builder
	indent int
}

func (pr *printer) printf(format string, args ...any) { fmt.Fprintf(&pr.b, format, args...) }

func (pr *printer) line(s string) {
	pr.b.WriteString(strings.Repeat("    ", pr.indent))
	pr.b.WriteString(s)
	pr.b.WriteByte('\n')
}

func (pr *printer) doc(doc string) {
	if doc == "" {
		return
	}
	for _, l := range strings.Split(doc, "\n") {
		pr.line("/// " + l)
	}
}

func (pr *printer) node(n Node) {
	switch n := n.(type) {
	case *File:
		for i, d := range n.Decls {
			if i > 0 {
				pr.b.WriteByte('\n')
			}
			pr.decl(d)
		}
	case Decl:
		pr.decl(n)
	case Stmt:
		pr.stmt(n)
	case Expr:
		pr.expr(n)
	case TypeName:
		pr.b.WriteString(typeString(n))
	default:
		pr.printf("/* %s */", n.Kind())
	}
}

func (pr *printer) decl(d Decl) {
	switch d := d.(type) {
	case *PragmaDirective:
		pr.line(fmt.Sprintf("pragma %s %s;", d.Name, d.Value))
	case *ImportDirective:
		pr.line(fmt.Sprintf("import %s;", d.Raw))
	case *ContractDecl:
		pr.doc(d.Doc)
		head := d.Keyword + " " + d.Name.Name
		if d.Abstract {
			head = "abstract " + head
		}
		if len(d.Bases) > 0 {
			var bases []string
			for _, b := range d.Bases {
				s := b.Name.String()
				if b.HasArgs {
					s += "(" + pr.exprList(b.Args) + ")"
				}
				bases = append(bases, s)
			}
			head += " is " + strings.Join(bases, ", ")
		}
		pr.line(head + " {")
		pr.indent++
		for _, m := range d.Members {
			pr.decl(m)
		}
		pr.indent--
		pr.line("}")
	case *StateVarDecl:
		pr.doc(d.Doc)
		parts := []string{typeString(d.Type)}
		if d.Visibility != "" {
			parts = append(parts, d.Visibility)
		}
		if d.Constant {
			parts = append(parts, "constant")
		}
		if d.Immutable {
			parts = append(parts, "immutable")
		}
		if d.Override {
			parts = append(parts, "override")
		}
		parts = append(parts, d.Name.Name)
		s := strings.Join(parts, " ")
		if d.Value != nil {
			s += " = " + ExprString(d.Value)
		}
		pr.line(s + ";")
	case *FunctionDecl:
		pr.doc(d.Doc)
		head := d.Keyword
		if d.Name != nil {
			head += " " + d.Name.Name
		}
		head += "(" + paramList(d.Params) + ")"
		for _, attr := range []string{d.Visibility, d.Mutability} {
			if attr != "" {
				head += " " + attr
			}
		}
		if d.Virtual {
			head += " virtual"
		}
		if d.Override {
			head += " override"
		}
		for _, m := range d.Modifiers {
			head += " " + m.Name.String()
			if m.HasArgs {
				head += "(" + pr.exprList(m.Args) + ")"
			}
		}
		if len(d.Returns) > 0 {
			head += " returns (" + paramList(d.Returns) + ")"
		}
		pr.bodyOrSemicolon(head, d.Body)
	case *ModifierDecl:
		pr.doc(d.Doc)
		head := "modifier " + d.Name.Name
		if d.HasParen {
			head += "(" + paramList(d.Params) + ")"
		}
		if d.Virtual {
			head += " virtual"
		}
		if d.Override {
			head += " override"
		}
		pr.bodyOrSemicolon(head, d.Body)
	case *EventDecl:
		pr.doc(d.Doc)
		s := "event " + d.Name.Name + "(" + paramList(d.Params) + ")"
		if d.Anonymous {
			s += " anonymous"
		}
		pr.line(s + ";")
	case *ErrorDecl:
		pr.doc(d.Doc)
		pr.line("error " + d.Name.Name + "(" + paramList(d.Params) + ");")
	case *StructDecl:
		pr.doc(d.Doc)
		pr.line("struct " + d.Name.Name + " {")
		pr.indent++
		for _, f := range d.Fields {
			pr.line(paramString(f) + ";")
		}
		pr.indent--
		pr.line("}")
	case *EnumDecl:
		pr.doc(d.Doc)
		var names []string
		for _, v := range d.Values {
			names = append(names, v.Name)
		}
		pr.line("enum " + d.Name.Name + " { " + strings.Join(names, ", ") + " }")
	case *UsingDecl:
		target := "*"
		if d.Type != nil {
			target = typeString(d.Type)
		}
		pr.line("using " + d.Library.String() + " for " + target + ";")
	}
}

func (pr *printer) bodyOrSemicolon(head string, body *Block) {
	if body == nil {
		pr.line(head + ";")
		return
	}
	pr.line(head + " {")
	pr.blockBody(body)
	pr.line("}")
}

func (pr *printer) blockBody(b *Block) {
	pr.indent++
	for _, s := range b.Stmts {
		pr.stmt(s)
	}
	pr.indent--
}

func (pr *printer) block(prefix string, b *Block, suffix string) {
	open := "{"
	if b.Unchecked {
		open = "unchecked {"
	}
	pr.line(prefix + open)
	pr.blockBody(b)
	pr.line("}" + suffix)
}

// nested prints a statement used as the body of a control structure.
func (pr *printer) nested(head string, s Stmt, tail string) {
	if b, ok := s.(*Block); ok && !b.Unchecked {
		pr.block(head+" ", b, tail)
		return
	}
	pr.line(head)
	pr.indent++
	pr.stmt(s)
	pr.indent--
	if tail != "" {
		pr.line(strings.TrimSpace(tail))
	}
}

func (pr *printer) stmt(s Stmt) {
	switch s := s.(type) {
	case *Block:
		pr.block("", s, "")
	case *IfStmt:
		head := "if (" + ExprString(s.Cond) + ")"
		pr.nested(head, s.Then, "")
		if s.Else != nil {
			pr.nested("else", s.Else, "")
		}
	case *WhileStmt:
		pr.nested("while ("+ExprString(s.Cond)+")", s.Body, "")
	case *DoWhileStmt:
		pr.nested("do", s.Body, " while ("+ExprString(s.Cond)+");")
	case *ForStmt:
		init := ";"
		if s.Init != nil {
			init = simpleStmtString(s.Init)
		}
		cond := ""
		if s.Cond != nil {
			cond = " " + ExprString(s.Cond)
		}
		post := ""
		if s.Post != nil {
			post = " " + ExprString(s.Post)
		}
		pr.nested("for ("+init+cond+";"+post+")", s.Body, "")
	case *ReturnStmt:
		if s.Value == nil {
			pr.line("return;")
		} else {
			pr.line("return " + ExprString(s.Value) + ";")
		}
	case *BreakStmt:
		pr.line("break;")
	case *ContinueStmt:
		pr.line("continue;")
	case *ThrowStmt:
		pr.line("throw;")
	case *EmitStmt:
		pr.line("emit " + ExprString(s.Call) + ";")
	case *RevertStmt:
		name := ""
		if s.Error != nil {
			name = " " + s.Error.String()
		}
		pr.line("revert" + name + "(" + pr.exprList(s.Args) + ");")
	case *PlaceholderStmt:
		pr.line("_;")
	case *AssemblyStmt:
		pr.line("assembly " + s.Raw)
	case *TryStmt:
		head := "try " + ExprString(s.Call)
		if len(s.Returns) > 0 {
			head += " returns (" + paramList(s.Returns) + ")"
		}
		pr.block(head+" ", s.Body, "")
		for _, c := range s.Catches {
			h := "catch"
			if c.Ident != "" {
				h += " " + c.Ident
			}
			if c.HasParen {
				h += "(" + paramList(c.Params) + ")"
			}
			pr.block(h+" ", c.Body, "")
		}
	case *VarDeclStmt, *ExprStmt:
		pr.line(simpleStmtString(s))
	}
}

func simpleStmtString(s Stmt) string {
	switch s := s.(type) {
	case *VarDeclStmt:
		var lhs string
		if s.Tuple {
			parts := make([]string, len(s.Vars))
			for i, v := range s.Vars {
				if v != nil {
					parts[i] = paramString(v)
				}
			}
			lhs = "(" + strings.Join(parts, ", ") + ")"
		} else {
			lhs = paramString(s.Vars[0])
		}
		if s.Value != nil {
			lhs += " = " + ExprString(s.Value)
		}
		return lhs + ";"
	case *ExprStmt:
		return ExprString(s.X) + ";"
	}
	return ";"
}

func paramString(p *Param) string {
	parts := []string{typeString(p.Type)}
	if p.Location != "" {
		parts = append(parts, p.Location)
	}
	if p.Indexed {
		parts = append(parts, "indexed")
	}
	if p.Name != nil {
		parts = append(parts, p.Name.Name)
	}
	return strings.Join(parts, " ")
}

func paramList(ps []*Param) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = paramString(p)
	}
	return strings.Join(parts, ", ")
}

func typeString(t TypeName) string {
	switch t := t.(type) {
	case *ElementaryType:
		if t.Payable {
			return t.Name + " payable"
		}
		return t.Name
	case *UserType:
		return t.String()
	case *MappingType:
		return "mapping(" + typeString(t.Key) + " => " + typeString(t.Value) + ")"
	case *ArrayType:
		n := ""
		if t.Len != nil {
			n = ExprString(t.Len)
		}
		return typeString(t.Elem) + "[" + n + "]"
	case *FunctionType:
		out := "function(" + paramList(t.Params) + ")"
		for _, mod := range []string{t.Visibility, t.Mutability} {
			if mod != "" {
				out += " " + mod
			}
		}
		if len(t.Returns) > 0 {
			out += " returns (" + paramList(t.Returns) + ")"
		}
		return out
	}
	return ""
}

// TypeString renders a type name.
func TypeString(t TypeName) string { return typeString(t) }

func (pr *printer) exprList(list []Expr) string {
	parts := make([]string, len(list))
	for i, e := range list {
		if e != nil {
			parts[i] = ExprString(e)
		}
	}
	return strings.Join(parts, ", ")
}

func namedList(names []string, values []Expr) string {
	parts := make([]string, len(names))
	for i := range names {
		parts[i] = names[i] + ": " + ExprString(values[i])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (pr *printer) expr(e Expr) {
	switch e := e.(type) {
	case *Identifier:
		pr.b.WriteString(e.Name)
	case *NumberLit:
		pr.b.WriteString(e.Value)
		if e.Unit != "" {
			pr.b.WriteString(" " + e.Unit)
		}
	case *StringLit:
		pr.b.WriteString(e.Value)
	case *BoolLit:
		pr.printf("%t", e.Value)
	case *BinaryExpr:
		pr.expr(e.X)
		pr.b.WriteString(" " + e.Op + " ")
		pr.expr(e.Y)
	case *UnaryExpr:
		if e.Postfix {
			pr.expr(e.X)
			pr.b.WriteString(e.Op)
			return
		}
		operand := ExprString(e.X)
		sep := ""
		if e.Op == "delete" || (strings.HasPrefix(operand, "-") && (e.Op == "-" || e.Op == "--")) ||
			(strings.HasPrefix(operand, "+") && e.Op == "++") {
			sep = " "
		}
		pr.b.WriteString(e.Op + sep + operand)
	case *AssignExpr:
		pr.expr(e.LHS)
		pr.b.WriteString(" " + e.Op + " ")
		pr.expr(e.RHS)
	case *ConditionalExpr:
		pr.expr(e.Cond)
		pr.b.WriteString(" ? ")
		pr.expr(e.Then)
		pr.b.WriteString(" : ")
		pr.expr(e.Else)
	case *CallExpr:
		pr.expr(e.Fun)
		if e.Names != nil {
			pr.b.WriteString("(" + namedList(e.Names, e.Args) + ")")
		} else {
			pr.b.WriteString("(" + pr.exprList(e.Args) + ")")
		}
	case *CallOptionsExpr:
		pr.expr(e.X)
		pr.b.WriteString(namedList(e.Names, e.Values))
	case *MemberExpr:
		pr.expr(e.X)
		pr.b.WriteString("." + e.Name)
	case *IndexExpr:
		pr.expr(e.X)
		pr.b.WriteString("[")
		if e.Index != nil {
			pr.expr(e.Index)
		}
		pr.b.WriteString("]")
	case *SliceExpr:
		pr.expr(e.X)
		pr.b.WriteString("[")
		if e.Low != nil {
			pr.expr(e.Low)
		}
		pr.b.WriteString(":")
		if e.High != nil {
			pr.expr(e.High)
		}
		pr.b.WriteString("]")
	case *TupleExpr:
		pr.b.WriteString("(" + pr.exprList(e.Elems) + ")")
	case *ParenExpr:
		pr.b.WriteString("(")
		pr.expr(e.X)
		pr.b.WriteString(")")
	case *ArrayLit:
		pr.b.WriteString("[" + pr.exprList(e.Elems) + "]")
	case *NewExpr:
		pr.b.WriteString("new " + typeString(e.Type))
	case *TypeExpr:
		pr.b.WriteString(typeString(e.Type))
	}
}
