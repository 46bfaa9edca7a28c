package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dreamware/graphps/internal/graph"
)

func parseIDs(args []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid node id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// formatSample renders "id: n1(w1) n2(w2)". A node with no edges or not
// held by any server renders as "id: -".
func formatSample(id uint64, edges []graph.Edge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:", id)
	if len(edges) == 0 {
		b.WriteString(" -")
		return b.String()
	}
	for _, e := range edges {
		fmt.Fprintf(&b, " %d(%s)", e.ID, strconv.FormatFloat(e.Weight, 'g', -1, 64))
	}
	return b.String()
}

func formatNode(n *graph.Node) string {
	return fmt.Sprintf("%d\t%s", n.ID(), n.Feature())
}
