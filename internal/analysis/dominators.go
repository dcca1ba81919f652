package analysis

import "golang.org/x/tools/container/intsets"

// Dominators holds, per block, the set of blocks that dominate it.
// Unreachable blocks have an empty set.
type Dominators struct {
	sets []intsets.Sparse
}

// ComputeDominators runs the iterative data-flow formulation in reverse
// post-order until no set changes.
func ComputeDominators(g *CFG) *Dominators {
	d := &Dominators{sets: make([]intsets.Sparse, len(g.Blocks))}
	order := reversePostOrder(g)
	if len(order) == 0 {
		return d
	}
	var all intsets.Sparse
	for _, id := range order {
		all.Insert(id)
	}
	for _, id := range order {
		if id == g.Entry {
			d.sets[id].Insert(id)
			continue
		}
		d.sets[id].Copy(&all)
	}

	for changed := true; changed; {
		changed = false
		for _, id := range order {
			if id == g.Entry {
				continue
			}
			var next intsets.Sparse
			first := true
			for _, ei := range g.Blocks[id].Preds {
				p := g.Edges[ei].From
				if g.Blocks[p].Dead {
					continue
				}
				if first {
					next.Copy(&d.sets[p])
					first = false
					continue
				}
				next.IntersectionWith(&d.sets[p])
			}
			next.Insert(id)
			if !next.Equals(&d.sets[id]) {
				d.sets[id].Copy(&next)
				changed = true
			}
		}
	}
	return d
}

func reversePostOrder(g *CFG) []int {
	seen := make([]bool, len(g.Blocks))
	var post []int
	var visit func(id int)
	visit = func(id int) {
		seen[id] = true
		for _, ei := range g.Blocks[id].Succs {
			if to := g.Edges[ei].To; !seen[to] {
				visit(to)
			}
		}
		post = append(post, id)
	}
	visit(g.Entry)
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// Dominates reports whether every path from entry to b passes through a.
func (d *Dominators) Dominates(a, b int) bool {
	return d.sets[b].Has(a)
}

func (d *Dominators) StrictlyDominates(a, b int) bool {
	return a != b && d.Dominates(a, b)
}
