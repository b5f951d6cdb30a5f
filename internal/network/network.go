// Package network builds the subreddit overlap network from per-author
// comment counts.
//
// Build is pure: it takes the raw interaction table and returns an immutable
// *Network. Persistence and caching live in the artifact and pipeline
// packages.
package network

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyNetwork means no subreddit survived filtering.
	ErrEmptyNetwork = errors.New("no subreddits left after filtering")
	// ErrUnknownSubreddit means a queried name is not in the id mapping.
	ErrUnknownSubreddit = errors.New("unknown subreddit")
)

// Edge is one unordered pair with nonzero overlap. I < J always holds.
type Edge struct {
	I      int
	J      int
	Weight float64
}

// Stats describes what a Build did with its input.
type Stats struct {
	InputRecords       int
	KeptRecords        int
	Authors            int
	ExcludedSubreddits int
}

// Network is the overlap network for one run. It is read-only once built.
type Network struct {
	index     *Index
	edges     []Edge
	weights   map[uint64]float64
	subTotals []int64
	stats     Stats
}

// Build runs Filter, NewIndex and the overlap pass over records.
func Build(records []Record, opts Options) (*Network, error) {
	f, err := FilterAndIndex(records, opts)
	if err != nil {
		return nil, err
	}
	return f.Overlap(), nil
}

// Filtered is the cleaned table together with its id mapping, ready for the
// overlap pass.
type Filtered struct {
	records         []Record
	index           *Index
	weighting       Weighting
	inputRecords    int
	inputSubreddits int
}

// FilterAndIndex runs the first two stages of Build.
func FilterAndIndex(records []Record, opts Options) (*Filtered, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	kept := Filter(records, opts)
	idx, err := NewIndex(kept)
	if err != nil {
		return nil, err
	}
	return &Filtered{
		records:         kept,
		index:           idx,
		weighting:       opts.Weighting,
		inputRecords:    len(records),
		inputSubreddits: countSubreddits(records),
	}, nil
}

// Index returns the id mapping of the surviving subreddits.
func (f *Filtered) Index() *Index { return f.index }

// KeptRecords returns how many records survived filtering.
func (f *Filtered) KeptRecords() int { return len(f.records) }

// ExcludedSubreddits returns how many input subreddits were filtered out.
func (f *Filtered) ExcludedSubreddits() int { return f.inputSubreddits - f.index.Len() }

// Overlap runs the accumulation pass and returns the finished network.
func (f *Filtered) Overlap() *Network {
	edges, subTotals, authors := computeOverlaps(f.records, f.index, f.weighting)

	n := newNetwork(f.index, edges)
	n.subTotals = subTotals
	n.stats = Stats{
		InputRecords:       f.inputRecords,
		KeptRecords:        len(f.records),
		Authors:            authors,
		ExcludedSubreddits: f.ExcludedSubreddits(),
	}
	return n
}

func countSubreddits(records []Record) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[r.Subreddit] = struct{}{}
	}
	return len(seen)
}

func newNetwork(idx *Index, edges []Edge) *Network {
	weights := make(map[uint64]float64, len(edges))
	for _, e := range edges {
		weights[pairKey(e.I, e.J)] = e.Weight
	}
	return &Network{index: idx, edges: edges, weights: weights}
}

// FromEdges reassembles a network from a persisted mapping and edge list.
// Pairs may be given in either orientation; zero weights are dropped.
func FromEdges(names []string, edges []Edge) (*Network, error) {
	idx, err := IndexFromNames(names)
	if err != nil {
		return nil, err
	}
	k := idx.Len()

	seen := make(map[uint64]bool, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		i, j := e.I, e.J
		if i < 0 || j < 0 || i >= k || j >= k {
			return nil, fmt.Errorf("edge (%d, %d) outside mapping of %d subreddits", e.I, e.J, k)
		}
		if i == j {
			return nil, fmt.Errorf("self edge on subreddit %d", i)
		}
		if i > j {
			i, j = j, i
		}
		if seen[pairKey(i, j)] {
			return nil, fmt.Errorf("duplicate edge (%d, %d)", i, j)
		}
		seen[pairKey(i, j)] = true
		if e.Weight != 0 {
			out = append(out, Edge{I: i, J: j, Weight: e.Weight})
		}
	}
	sortEdges(out)
	return newNetwork(idx, out), nil
}

// FromMatrix reassembles a network from a persisted mapping and dense matrix.
// The matrix must be square, match the mapping, be symmetric and have a zero
// diagonal.
func FromMatrix(names []string, m [][]float64) (*Network, error) {
	if len(m) != len(names) {
		return nil, fmt.Errorf("matrix has %d rows, mapping has %d subreddits", len(m), len(names))
	}
	for i, row := range m {
		if len(row) != len(m) {
			return nil, fmt.Errorf("matrix row %d has %d columns, want %d", i, len(row), len(m))
		}
	}

	var edges []Edge
	for i, row := range m {
		if row[i] != 0 {
			return nil, fmt.Errorf("matrix diagonal (%d, %d) is %v, want 0", i, i, row[i])
		}
		for j := i + 1; j < len(row); j++ {
			if row[j] != m[j][i] {
				return nil, fmt.Errorf("matrix not symmetric at (%d, %d)", i, j)
			}
			if row[j] != 0 {
				edges = append(edges, Edge{I: i, J: j, Weight: row[j]})
			}
		}
	}
	return FromEdges(names, edges)
}

// Index returns the id mapping.
func (n *Network) Index() *Index { return n.index }

// Len returns the number of subreddits K.
func (n *Network) Len() int { return n.index.Len() }

// Edges returns a copy of the nonzero pairs ordered by (I, J).
func (n *Network) Edges() []Edge {
	return append([]Edge(nil), n.edges...)
}

// EdgeCount returns the number of nonzero pairs.
func (n *Network) EdgeCount() int { return len(n.edges) }

// Weight returns the overlap between ids i and j. The diagonal is always 0.
func (n *Network) Weight(i, j int) float64 {
	if i > j {
		i, j = j, i
	}
	return n.weights[pairKey(i, j)]
}

// Matrix materialises the dense K×K view. It costs O(K²) memory.
func (n *Network) Matrix() [][]float64 {
	k := n.Len()
	m := make([][]float64, k)
	for i := range m {
		m[i] = make([]float64, k)
	}
	for _, e := range n.edges {
		m[e.I][e.J] = e.Weight
		m[e.J][e.I] = e.Weight
	}
	return m
}

// SubredditTotals returns total comments per id after filtering. It is nil
// for networks reassembled from artifacts.
func (n *Network) SubredditTotals() []int64 {
	if n.subTotals == nil {
		return nil
	}
	return append([]int64(nil), n.subTotals...)
}

// Stats returns the build statistics. It is zero for reassembled networks.
func (n *Network) Stats() Stats { return n.stats }
