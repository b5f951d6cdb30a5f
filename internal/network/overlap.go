package network

import (
	"sort"
)

// activity is one author's comment count in one subreddit.
type activity struct {
	author string
	sub    int
	count  int64
}

// subCount is an entry of an author's participation list.
type subCount struct {
	sub   int
	count int64
}

// pairKey packs a directed (i, j) pair into a map key.
func pairKey(i, j int) uint64 {
	return uint64(i)<<32 | uint64(uint32(j))
}

func unpackKey(k uint64) (int, int) {
	return int(k >> 32), int(uint32(k))
}

// accumulator collects directed pair weights one author at a time, so only
// pairs that actually co-occur are ever stored.
type accumulator struct {
	weighting Weighting
	subTotals []int64
	directed  map[uint64]float64
}

func newAccumulator(weighting Weighting, subTotals []int64) *accumulator {
	return &accumulator{
		weighting: weighting,
		subTotals: subTotals,
		directed:  make(map[uint64]float64),
	}
}

// add folds a single author's participation list into the accumulator. The
// cost is quadratic in len(subs).
func (a *accumulator) add(subs []subCount) {
	if len(subs) < 2 {
		return
	}
	var authorTotal int64
	for _, s := range subs {
		authorTotal += s.count
	}

	for _, x := range subs {
		for _, y := range subs {
			if x.sub == y.sub {
				continue
			}
			prod := x.count * y.count
			if prod == 0 {
				continue
			}
			a.directed[pairKey(x.sub, y.sub)] += a.combine(x, y, prod, authorTotal)
		}
	}
}

func (a *accumulator) combine(x, y subCount, prod, authorTotal int64) float64 {
	switch a.weighting {
	case WeightMin:
		return float64(min(x.count, y.count))
	case WeightProduct:
		return float64(prod)
	case WeightCooccurrence:
		return 1
	default:
		return float64(prod) / (float64(authorTotal) * float64(a.subTotals[y.sub]))
	}
}

// edges symmetrises the directed weights with min(d[i][j], d[j][i]) and
// returns the nonzero pairs ordered by (I, J).
func (a *accumulator) edges() []Edge {
	var out []Edge
	for k, w := range a.directed {
		i, j := unpackKey(k)
		if i >= j {
			continue
		}
		if back := a.directed[pairKey(j, i)]; back < w {
			w = back
		}
		if w != 0 {
			out = append(out, Edge{I: i, J: j, Weight: w})
		}
	}
	sortEdges(out)
	return out
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(x, y int) bool {
		if edges[x].I != edges[y].I {
			return edges[x].I < edges[y].I
		}
		return edges[x].J < edges[y].J
	})
}

// computeOverlaps groups records by author and runs the accumulation pass.
// Authors are visited in name order and each author's subreddits in id order,
// so floating point sums come out identical on every run.
func computeOverlaps(records []Record, idx *Index, weighting Weighting) (edges []Edge, subTotals []int64, authors int) {
	rows := make([]activity, 0, len(records))
	subTotals = make([]int64, idx.Len())
	for _, r := range records {
		id, _ := idx.ID(r.Subreddit)
		rows = append(rows, activity{author: r.Author, sub: id, count: r.Count})
		subTotals[id] += r.Count
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].author != rows[j].author {
			return rows[i].author < rows[j].author
		}
		return rows[i].sub < rows[j].sub
	})

	acc := newAccumulator(weighting, subTotals)
	var subs []subCount
	for i := 0; i < len(rows); {
		author := rows[i].author
		subs = subs[:0]
		for ; i < len(rows) && rows[i].author == author; i++ {
			// Duplicate (author, subreddit) rows are summed.
			if n := len(subs); n > 0 && subs[n-1].sub == rows[i].sub {
				subs[n-1].count += rows[i].count
				continue
			}
			subs = append(subs, subCount{sub: rows[i].sub, count: rows[i].count})
		}
		acc.add(subs)
		authors++
	}

	return acc.edges(), subTotals, authors
}
