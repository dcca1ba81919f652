package semantic

import (
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/xab-mack/contractscan/internal/solidity"
)

// Scope maps names to symbols. Contract scopes also search the scopes of
// their base contracts, most derived base first, before the parent.
type Scope struct {
	Parent *Scope
	Node   solidity.Node
	bases  []*Scope
	names  map[string][]*Symbol
	order  []string
}

func NewScope(parent *Scope, node solidity.Node) *Scope {
	return &Scope{Parent: parent, Node: node, names: map[string][]*Symbol{}}
}

func (s *Scope) insert(sym *Symbol) {
	if _, ok := s.names[sym.Name]; !ok {
		s.order = append(s.order, sym.Name)
	}
	s.names[sym.Name] = append(s.names[sym.Name], sym)
}

// Local returns the symbols declared directly in s under name.
func (s *Scope) Local(name string) []*Symbol { return s.names[name] }

func (s *Scope) lookupHere(name string, seen map[*Scope]bool) []*Symbol {
	if seen[s] {
		return nil
	}
	seen[s] = true
	if syms := s.names[name]; len(syms) > 0 {
		return syms
	}
	for i := len(s.bases) - 1; i >= 0; i-- {
		if syms := s.bases[i].lookupHere(name, seen); len(syms) > 0 {
			return syms
		}
	}
	return nil
}

// LookupAll returns every overload visible under name from the innermost
// scope that declares it.
func (s *Scope) LookupAll(name string) []*Symbol {
	for sc := s; sc != nil; sc = sc.Parent {
		if syms := sc.lookupHere(name, map[*Scope]bool{}); len(syms) > 0 {
			return syms
		}
	}
	return nil
}

func (s *Scope) Lookup(name string) *Symbol {
	if syms := s.LookupAll(name); len(syms) > 0 {
		return syms[0]
	}
	return nil
}

func (s *Scope) visibleNames() []string {
	seen := map[string]bool{}
	visited := map[*Scope]bool{}
	var out []string
	var collect func(sc *Scope)
	collect = func(sc *Scope) {
		if visited[sc] {
			return
		}
		visited[sc] = true
		for _, n := range sc.order {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
		for _, b := range sc.bases {
			collect(b)
		}
	}
	for sc := s; sc != nil; sc = sc.Parent {
		collect(sc)
	}
	return out
}

const maxSuggestions = 3

// Suggest lists visible names within edit distance 2 of name, closest first.
func (s *Scope) Suggest(name string) []string {
	type cand struct {
		name string
		dist int
	}
	var cands []cand
	for _, n := range s.visibleNames() {
		if n == name {
			continue
		}
		if d := levenshtein.ComputeDistance(name, n); d <= 2 {
			cands = append(cands, cand{n, d})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].name < cands[j].name
	})
	var out []string
	for i, c := range cands {
		if i == maxSuggestions {
			break
		}
		out = append(out, c.name)
	}
	return out
}
