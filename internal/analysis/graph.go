package analysis

import (
	"fmt"
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// Graph returns a directed graph view of the CFG keyed by block index.
// Parallel edges between the same blocks collapse into one.
func (g *CFG) Graph() graph.Graph[int, int] {
	gr := graph.New(graph.IntHash, graph.Directed())
	for _, blk := range g.Blocks {
		label := fmt.Sprintf("B%d %s", blk.ID, blk.Label)
		if blk.StartLn > 0 {
			label += fmt.Sprintf(" [%d-%d]", blk.StartLn, blk.EndLn)
		}
		attrs := []func(*graph.VertexProperties){graph.VertexAttribute("label", label)}
		if blk.Dead {
			attrs = append(attrs, graph.VertexAttribute("style", "dashed"))
		}
		_ = gr.AddVertex(blk.ID, attrs...)
	}
	for _, e := range g.Edges {
		label := e.Kind.String()
		if e.Target != "" {
			label += " " + e.Target
		}
		_ = gr.AddEdge(e.From, e.To, graph.EdgeAttribute("label", label))
	}
	return gr
}

// markDead flags blocks that cannot be reached from the entry block. The
// view it walks is kept for later reachability queries.
func (g *CFG) markDead() {
	g.view = g.Graph()
	reached := make(map[int]bool, len(g.Blocks))
	_ = graph.BFS(g.view, g.Entry, func(id int) bool {
		reached[id] = true
		return false
	})
	for _, blk := range g.Blocks {
		blk.Dead = !reached[blk.ID]
	}
}

// Reachable reports whether block to can be reached from block from. A block
// always reaches itself.
func (g *CFG) Reachable(from, to int) bool {
	view := g.view
	if view == nil {
		view = g.Graph()
	}
	found := false
	_ = graph.BFS(view, from, func(id int) bool {
		found = id == to
		return found
	})
	return found
}

// WriteDOT renders the CFG in Graphviz format.
func (g *CFG) WriteDOT(w io.Writer) error {
	return draw.DOT(g.Graph(), w)
}
