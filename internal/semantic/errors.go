package semantic

import (
	"fmt"
	"strings"

	"github.com/xab-mack/contractscan/internal/solidity"
)

// UnresolvedReferenceError reports a name that binds to no declaration.
// Function is the enclosing Contract.function entity, empty at contract level.
type UnresolvedReferenceError struct {
	Name       string
	Span       solidity.Span
	Candidates []string
	Function   string
}

func (e *UnresolvedReferenceError) Error() string {
	msg := fmt.Sprintf("%d:%d: undeclared identifier %q", e.Span.Start.Line, e.Span.Start.Column, e.Name)
	if len(e.Candidates) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Candidates, ", "))
	}
	return msg
}

type DuplicateDeclarationError struct {
	Name     string
	Span     solidity.Span
	Previous solidity.Span
	Function string
}

func (e *DuplicateDeclarationError) Error() string {
	return fmt.Sprintf("%d:%d: %q already declared at %d:%d", e.Span.Start.Line, e.Span.Start.Column, e.Name, e.Previous.Start.Line, e.Previous.Start.Column)
}

// AddressChecksumError flags an address literal whose mixed-case spelling
// does not match its EIP-55 checksum.
type AddressChecksumError struct {
	Literal string
	Want    string
	Span    solidity.Span
}

func (e *AddressChecksumError) Error() string {
	return fmt.Sprintf("%d:%d: address literal %s has an invalid checksum, expected %s", e.Span.Start.Line, e.Span.Start.Column, e.Literal, e.Want)
}
