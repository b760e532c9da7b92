package graph

import (
	"fmt"
	"io"
	"sort"
)

// WriteDOT renders the graph as Graphviz DOT, labeling each node with
// label(k). Edges point from a node to the dependency it requires, which
// reads naturally as "A -> B" meaning "A depends on B".
func WriteDOT[K comparable](g *Graph[K], w io.Writer, label func(K) string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	fmt.Fprintln(w, "digraph dependencies {")
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box];")

	ids := make(map[K]string, len(g.nodes))
	keys := make([]K, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return label(keys[i]) < label(keys[j]) })

	for i, k := range keys {
		id := fmt.Sprintf("n%d", i)
		ids[k] = id
		fmt.Fprintf(w, "  %s [label=%q];\n", id, label(k))
	}
	for from, tos := range g.edges {
		fromID, ok := ids[from]
		if !ok {
			continue
		}
		for _, to := range tos {
			if toID, ok := ids[to]; ok {
				fmt.Fprintf(w, "  %s -> %s;\n", fromID, toID)
			}
		}
	}
	fmt.Fprintln(w, "}")
	return nil
}
