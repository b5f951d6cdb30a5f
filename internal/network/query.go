package network

import (
	"fmt"
	"sort"
)

// Overlap is one neighbour of a queried subreddit.
type Overlap struct {
	Subreddit string  `json:"subreddit"`
	Weight    float64 `json:"weight"`
}

// Pair is an edge with names resolved.
type Pair struct {
	A      string  `json:"a"`
	B      string  `json:"b"`
	Weight float64 `json:"weight"`
}

// StrongestOverlaps returns every other subreddit ordered by descending
// overlap with name. Ties are ordered by subreddit name. Subreddits with no
// shared authors are included with weight 0.
func (n *Network) StrongestOverlaps(name string) ([]Overlap, error) {
	id, ok := n.index.ID(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubreddit, name)
	}

	out := make([]Overlap, 0, n.Len()-1)
	for j := 0; j < n.Len(); j++ {
		if j == id {
			continue
		}
		out = append(out, Overlap{Subreddit: n.index.Name(j), Weight: n.Weight(id, j)})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Weight != out[b].Weight {
			return out[a].Weight > out[b].Weight
		}
		return out[a].Subreddit < out[b].Subreddit
	})
	return out, nil
}

// TopPairs returns the limit strongest edges overall. A limit <= 0 returns
// all of them.
func (n *Network) TopPairs(limit int) []Pair {
	edges := n.Edges()
	sort.SliceStable(edges, func(a, b int) bool {
		return edges[a].Weight > edges[b].Weight
	})
	if limit > 0 && limit < len(edges) {
		edges = edges[:limit]
	}

	out := make([]Pair, len(edges))
	for i, e := range edges {
		out[i] = Pair{A: n.index.Name(e.I), B: n.index.Name(e.J), Weight: e.Weight}
	}
	return out
}
