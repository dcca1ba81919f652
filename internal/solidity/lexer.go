package solidity

import (
	"strings"
)

type lexer struct {
	src  string
	off  int
	line int
	col  int
	doc  []string
}

// Tokenize splits src into tokens. Lexical problems are returned as Illegal
// tokens so that the parser can report them with a span and keep going.
func Tokenize(src string) []Token {
	lx := &lexer{src: src, line: 1, col: 1}
	var toks []Token
	for {
		t := lx.next()
		toks = append(toks, t)
		if t.Kind == EOF {
			return toks
		}
	}
}

func (lx *lexer) pos() Pos { return Pos{Offset: lx.off, Line: lx.line, Column: lx.col} }

func (lx *lexer) peekByte(ahead int) byte {
	if lx.off+ahead < len(lx.src) {
		return lx.src[lx.off+ahead]
	}
	return 0
}

func (lx *lexer) advance(n int) {
	for i := 0; i < n && lx.off < len(lx.src); i++ {
		if lx.src[lx.off] == '\n' {
			lx.line++
			lx.col = 1
		} else {
			lx.col++
		}
		lx.off++
	}
}

// skipTrivia consumes whitespace and comments, collecting NatSpec text.
// It returns false when a block comment is left unterminated.
func (lx *lexer) skipTrivia() bool {
	for lx.off < len(lx.src) {
		c := lx.src[lx.off]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			lx.advance(1)
		case c == '/' && lx.peekByte(1) == '/':
			end := strings.IndexByte(lx.src[lx.off:], '\n')
			if end < 0 {
				end = len(lx.src) - lx.off
			}
			text := lx.src[lx.off : lx.off+end]
			if strings.HasPrefix(text, "///") {
				lx.doc = append(lx.doc, strings.TrimSpace(text[3:]))
			} else {
				lx.doc = nil
			}
			lx.advance(end)
		case c == '/' && lx.peekByte(1) == '*':
			end := strings.Index(lx.src[lx.off+2:], "*/")
			if end < 0 {
				return false
			}
			text := lx.src[lx.off : lx.off+2+end+2]
			if strings.HasPrefix(text, "/**") && text != "/**/" {
				body := strings.TrimSuffix(strings.TrimPrefix(text, "/**"), "*/")
				for _, l := range strings.Split(body, "\n") {
					l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "*"))
					if l != "" {
						lx.doc = append(lx.doc, l)
					}
				}
			} else {
				lx.doc = nil
			}
			lx.advance(len(text))
		default:
			return true
		}
	}
	return true
}

func (lx *lexer) next() Token {
	if !lx.skipTrivia() {
		start := lx.pos()
		lx.advance(len(lx.src) - lx.off)
		return Token{Kind: Illegal, Text: "/*", Span: Span{Start: start, End: lx.pos()}}
	}
	doc := strings.Join(lx.doc, "\n")
	lx.doc = nil
	start := lx.pos()
	if lx.off >= len(lx.src) {
		return Token{Kind: EOF, Span: Span{Start: start, End: start}}
	}
	c := lx.src[lx.off]
	tok := Token{Doc: doc}
	switch {
	case isIdentStart(c):
		n := 0
		for lx.off+n < len(lx.src) && isIdentPart(lx.src[lx.off+n]) {
			n++
		}
		word := lx.src[lx.off : lx.off+n]
		if (word == "hex" || word == "unicode") && (lx.peekByte(n) == '"' || lx.peekByte(n) == '\'') {
			lx.advance(n)
			tok = lx.lexString(doc)
			if word == "hex" && tok.Kind == String {
				tok.Kind = HexString
			}
			tok.Text = word + tok.Text
			tok.Span.Start = start
			return tok
		}
		lx.advance(n)
		tok.Text = word
		tok.Kind = Ident
		if keywords[word] {
			tok.Kind = Keyword
		}
	case c >= '0' && c <= '9' || (c == '.' && isDigit(lx.peekByte(1))):
		tok.Kind = Number
		n := 0
		if c == '0' && (lx.peekByte(1) == 'x' || lx.peekByte(1) == 'X') {
			tok.Kind = HexNumber
			n = 2
			for lx.off+n < len(lx.src) && (isHexDigit(lx.src[lx.off+n]) || lx.src[lx.off+n] == '_') {
				n++
			}
		} else {
			for lx.off+n < len(lx.src) {
				b := lx.src[lx.off+n]
				if isDigit(b) || b == '_' || b == '.' {
					n++
					continue
				}
				if (b == 'e' || b == 'E') && n > 0 {
					n++
					if p := lx.peekByte(n); p == '-' {
						n++
					}
					continue
				}
				break
			}
		}
		tok.Text = lx.src[lx.off : lx.off+n]
		lx.advance(n)
	case c == '"' || c == '\'':
		return lx.lexString(doc)
	default:
		for _, p := range punctuators {
			if strings.HasPrefix(lx.src[lx.off:], p) {
				tok.Kind = Punct
				tok.Text = p
				lx.advance(len(p))
				tok.Span = Span{Start: start, End: lx.pos()}
				return tok
			}
		}
		tok.Kind = Illegal
		tok.Text = string(c)
		lx.advance(1)
	}
	tok.Span = Span{Start: start, End: lx.pos()}
	return tok
}

func (lx *lexer) lexString(doc string) Token {
	start := lx.pos()
	quote := lx.src[lx.off]
	n := 1
	for {
		if lx.off+n >= len(lx.src) || lx.src[lx.off+n] == '\n' {
			lx.advance(n)
			return Token{Kind: Illegal, Text: "unterminated string", Span: Span{Start: start, End: lx.pos()}, Doc: doc}
		}
		b := lx.src[lx.off+n]
		if b == '\\' {
			n += 2
			continue
		}
		n++
		if b == quote {
			break
		}
	}
	text := lx.src[lx.off : lx.off+n]
	lx.advance(n)
	return Token{Kind: String, Text: text, Span: Span{Start: start, End: lx.pos()}, Doc: doc}
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
