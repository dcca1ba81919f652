package solidity

import "fmt"

// Pos is a location in a source file. Line and Column are 1-based; Column
// counts bytes.
type Pos struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Span is a half-open byte range [Start.Offset, End.Offset).
type Span struct {
	Start Pos `json:"start"`
	End   Pos `json:"end"`
}

func (s Span) Contains(o Span) bool {
	return s.Start.Offset <= o.Start.Offset && o.End.Offset <= s.End.Offset
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
}

type TokenKind int

const (
	EOF TokenKind = iota
	Illegal
	Ident
	Number
	HexNumber
	String
	HexString
	Keyword
	Punct
)

var tokenKindNames = [...]string{
	EOF:       "end of file",
	Illegal:   "illegal token",
	Ident:     "identifier",
	Number:    "number",
	HexNumber: "hex number",
	String:    "string",
	HexString: "hex string",
	Keyword:   "keyword",
	Punct:     "punctuation",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return "token"
}

type Token struct {
	Kind TokenKind
	Text string
	Span Span
	// Doc holds NatSpec comments (/// or /** */) immediately preceding the token.
	Doc string
}

func (t Token) Is(text string) bool {
	return (t.Kind == Keyword || t.Kind == Punct) && t.Text == text
}

func (t Token) describe() string {
	switch t.Kind {
	case EOF:
		return "end of file"
	case Ident, Number, HexNumber:
		return fmt.Sprintf("%s %q", t.Kind, t.Text)
	default:
		return fmt.Sprintf("%q", t.Text)
	}
}

var keywords = map[string]bool{
	"pragma": true, "import": true,
	"contract": true, "interface": true, "library": true, "abstract": true, "is": true,
	"function": true, "modifier": true, "constructor": true, "fallback": true, "receive": true,
	"event": true, "error": true, "struct": true, "enum": true, "using": true, "for": true,
	"mapping": true, "returns": true, "return": true,
	"public": true, "private": true, "internal": true, "external": true,
	"pure": true, "view": true, "payable": true, "constant": true, "immutable": true,
	"virtual": true, "override": true, "anonymous": true, "indexed": true,
	"memory": true, "storage": true, "calldata": true,
	"if": true, "else": true, "while": true, "do": true, "break": true, "continue": true,
	"emit": true, "revert": true, "unchecked": true, "assembly": true, "new": true, "delete": true,
	"true": true, "false": true, "try": true, "catch": true, "throw": true,
}

// elementary type names that are not captured by the sized patterns below.
var elementaryTypes = map[string]bool{
	"address": true, "bool": true, "string": true, "bytes": true, "byte": true,
	"uint": true, "int": true, "fixed": true, "ufixed": true,
}

// IsElementaryType reports whether name is a builtin value type such as
// uint256, bytes32 or address.
func IsElementaryType(name string) bool {
	if elementaryTypes[name] {
		return true
	}
	for _, prefix := range []string{"uint", "int", "bytes"} {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			rest := name[len(prefix):]
			n := 0
			for _, c := range rest {
				if c < '0' || c > '9' {
					return false
				}
				n = n*10 + int(c-'0')
			}
			if prefix == "bytes" {
				return n >= 1 && n <= 32
			}
			return n >= 8 && n <= 256 && n%8 == 0
		}
	}
	return false
}

// number units accepted after a decimal literal.
var numberUnits = map[string]bool{
	"wei": true, "gwei": true, "ether": true,
	"seconds": true, "minutes": true, "hours": true, "days": true, "weeks": true,
}

// punctuators ordered longest first so the lexer can match greedily.
var punctuators = []string{
	">>>=", "<<=", ">>=", ">>>", "**=",
	"==", "!=", "<=", ">=", "&&", "||", "++", "--", "+=", "-=", "*=", "/=", "%=",
	"|=", "&=", "^=", "<<", ">>", "**", "=>", "->",
	"+", "-", "*", "/", "%", "=", "<", ">", "!", "~", "&", "|", "^", "?", ":",
	";", ",", ".", "(", ")", "[", "]", "{", "}",
}
