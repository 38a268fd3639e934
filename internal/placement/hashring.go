// Package placement decides which storage nodes hold the shards of a piece.
package placement

import (
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

const defaultVnodes = 128

type point struct {
	hash uint64
	node int
}

// Ring is a consistent hash ring over a fixed set of storage nodes. A
// satellite opens its nodes once, so the ring never changes after New and
// is safe for concurrent use.
type Ring struct {
	nodes  []string
	points []point
}

// New builds a ring with vnodes points per node (0 picks the default).
// Placement depends only on the set of IDs, not their order.
func New(nodeIDs []string, vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = defaultVnodes
	}
	nodes := slices.Clone(nodeIDs)
	slices.Sort(nodes)
	nodes = slices.Compact(nodes)

	r := &Ring{nodes: nodes, points: make([]point, 0, len(nodes)*vnodes)}
	for i, id := range nodes {
		for v := 0; v < vnodes; v++ {
			r.points = append(r.points, point{hash: xxhash.Sum64String(id + "#" + strconv.Itoa(v)), node: i})
		}
	}
	slices.SortFunc(r.points, func(a, b point) int {
		switch {
		case a.hash < b.hash:
			return -1
		case a.hash > b.hash:
			return 1
		}
		return a.node - b.node
	})
	return r
}

// Candidates returns up to n distinct nodes for a project's piece, in ring
// order starting at the piece's hash.
func (r *Ring) Candidates(projectID, pieceKey string, n int) []string {
	if len(r.points) == 0 || n <= 0 {
		return nil
	}
	n = min(n, len(r.nodes))
	h := xxhash.Sum64String(projectID + "/" + pieceKey)
	start, _ := slices.BinarySearchFunc(r.points, h, func(p point, h uint64) int {
		switch {
		case p.hash < h:
			return -1
		case p.hash > h:
			return 1
		}
		return 0
	})

	seen := make([]bool, len(r.nodes))
	out := make([]string, 0, n)
	for i := 0; i < len(r.points) && len(out) < n; i++ {
		p := r.points[(start+i)%len(r.points)]
		if !seen[p.node] {
			seen[p.node] = true
			out = append(out, r.nodes[p.node])
		}
	}
	return out
}

// Place assigns a node to each of count shards. Distinct nodes come first;
// with fewer nodes than shards the assignment wraps around.
func (r *Ring) Place(projectID, pieceKey string, count int) []string {
	nodes := r.Candidates(projectID, pieceKey, count)
	if len(nodes) == 0 {
		return nil
	}
	out := make([]string, count)
	for i := range out {
		out[i] = nodes[i%len(nodes)]
	}
	return out
}

// Nodes returns the sorted node IDs.
func (r *Ring) Nodes() []string {
	return slices.Clone(r.nodes)
}
