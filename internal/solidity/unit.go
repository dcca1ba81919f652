package solidity

import (
	"regexp"
	"strconv"
	"strings"
)

// SourceUnit is one parsed contract file. It is immutable once Parse returns.
type SourceUnit struct {
	Path   string
	Source string
	Root   *File
}

// Text returns the source text covered by span.
func (u *SourceUnit) Text(s Span) string {
	if s.Start.Offset < 0 || s.End.Offset > len(u.Source) || s.Start.Offset > s.End.Offset {
		return ""
	}
	return u.Source[s.Start.Offset:s.End.Offset]
}

// Contracts returns the contract, interface and library declarations in
// source order.
func (u *SourceUnit) Contracts() []*ContractDecl {
	var out []*ContractDecl
	for _, d := range u.Root.Decls {
		if c, ok := d.(*ContractDecl); ok {
			out = append(out, c)
		}
	}
	return out
}

var reVersion = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// MinCompilerVersion extracts the lowest version allowed by the solidity
// pragma, e.g. "^0.8.4" yields (0, 8). ok is false when no pragma exists.
func (u *SourceUnit) MinCompilerVersion() (major, minor int, ok bool) {
	for _, d := range u.Root.Decls {
		p, isPragma := d.(*PragmaDirective)
		if !isPragma || p.Name != "solidity" {
			continue
		}
		m := reVersion.FindStringSubmatch(strings.ReplaceAll(p.Value, " ", ""))
		if m == nil {
			return 0, 0, false
		}
		major, _ = strconv.Atoi(m[1])
		minor, _ = strconv.Atoi(m[2])
		return major, minor, true
	}
	return 0, 0, false
}

// CheckedArithmetic reports whether the compiler version selected by the
// pragma reverts on overflow outside unchecked blocks.
func (u *SourceUnit) CheckedArithmetic() bool {
	major, minor, ok := u.MinCompilerVersion()
	if !ok {
		return false
	}
	return major > 0 || minor >= 8
}
