package solidity

import "fmt"

// SyntaxError reports unparseable input. Expected describes what the parser
// was looking for and Found the token it got instead.
type SyntaxError struct {
	Path     string
	Span     Span
	Expected string
	Found    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: syntax error: expected %s, found %s", e.Path, e.Span.Start.Line, e.Span.Start.Column, e.Expected, e.Found)
}

// ErrorList collects the syntax errors of one file.
type ErrorList []*SyntaxError

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", l[0], len(l)-1)
}

// Err returns nil for an empty list so callers can use the usual err != nil test.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
