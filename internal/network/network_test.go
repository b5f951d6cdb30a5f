package network

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeAuthors is the a1/a2/a3 scenario: a1 links subA-subB, a2 links
// subA-subC, nobody links subB-subC.
func threeAuthors() []Record {
	return []Record{
		{Author: "a1", Subreddit: "subA", Count: 5},
		{Author: "a1", Subreddit: "subB", Count: 3},
		{Author: "a2", Subreddit: "subA", Count: 2},
		{Author: "a2", Subreddit: "subC", Count: 4},
		{Author: "a3", Subreddit: "subB", Count: 1},
	}
}

func permissive() Options {
	opts := DefaultOptions()
	opts.SubredditCommentThreshold = 0
	return opts
}

func weightByName(t *testing.T, n *Network, a, b string) float64 {
	t.Helper()
	i, ok := n.Index().ID(a)
	require.True(t, ok, "missing %s", a)
	j, ok := n.Index().ID(b)
	require.True(t, ok, "missing %s", b)
	return n.Weight(i, j)
}

func TestBuildThreeAuthorsNormalized(t *testing.T) {
	n, err := Build(threeAuthors(), permissive())
	require.NoError(t, err)

	assert.Equal(t, []string{"subA", "subB", "subC"}, n.Index().Names())

	// a1: 5*3/(8*4) one way, 5*3/(8*7) the other; the smaller one wins.
	assert.Equal(t, 15.0/56.0, weightByName(t, n, "subA", "subB"))
	// a2: 2*4/(6*4) and 2*4/(6*7).
	assert.Equal(t, 8.0/42.0, weightByName(t, n, "subA", "subC"))
	assert.Equal(t, 0.0, weightByName(t, n, "subB", "subC"))

	assert.Equal(t, 2, n.EdgeCount())
	assert.Equal(t, []int64{7, 4, 4}, n.SubredditTotals())
	assert.Equal(t, Stats{InputRecords: 5, KeptRecords: 5, Authors: 3}, n.Stats())
}

func TestBuildWeightings(t *testing.T) {
	tests := []struct {
		weighting Weighting
		ab, ac    float64
	}{
		{WeightMin, 3, 2},
		{WeightProduct, 15, 8},
		{WeightCooccurrence, 1, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.weighting), func(t *testing.T) {
			opts := permissive()
			opts.Weighting = tt.weighting
			n, err := Build(threeAuthors(), opts)
			require.NoError(t, err)

			assert.Equal(t, tt.ab, weightByName(t, n, "subA", "subB"))
			assert.Equal(t, tt.ac, weightByName(t, n, "subA", "subC"))
			assert.Equal(t, 0.0, weightByName(t, n, "subB", "subC"))
		})
	}
}

func TestDiagonalIsZero(t *testing.T) {
	n, err := Build(threeAuthors(), permissive())
	require.NoError(t, err)

	m := n.Matrix()
	for i := range m {
		assert.Equal(t, 0.0, m[i][i])
		assert.Equal(t, 0.0, n.Weight(i, i))
	}
}

func TestDuplicateRowsAreSummed(t *testing.T) {
	split := []Record{
		{Author: "a1", Subreddit: "subA", Count: 2},
		{Author: "a1", Subreddit: "subA", Count: 3},
		{Author: "a1", Subreddit: "subB", Count: 3},
		{Author: "a2", Subreddit: "subA", Count: 2},
		{Author: "a2", Subreddit: "subC", Count: 4},
		{Author: "a3", Subreddit: "subB", Count: 1},
	}

	want, err := Build(threeAuthors(), permissive())
	require.NoError(t, err)
	got, err := Build(split, permissive())
	require.NoError(t, err)

	assert.Equal(t, want.Edges(), got.Edges())
}

func TestZeroCountsContributeNothing(t *testing.T) {
	records := []Record{
		{Author: "a1", Subreddit: "subA", Count: 0},
		{Author: "a1", Subreddit: "subB", Count: 0},
		{Author: "a2", Subreddit: "subA", Count: 4},
		{Author: "a2", Subreddit: "subB", Count: 0},
		{Author: "a3", Subreddit: "subB", Count: 2},
	}
	n, err := Build(records, permissive())
	require.NoError(t, err)

	assert.Equal(t, 0, n.EdgeCount())
}

func TestBuildEmpty(t *testing.T) {
	_, err := Build(nil, permissive())
	assert.True(t, errors.Is(err, ErrEmptyNetwork))

	onlyNoise := []Record{
		{Author: "[deleted]", Subreddit: "subA", Count: 10},
		{Author: "AutoModerator", Subreddit: "subB", Count: 10},
	}
	_, err = Build(onlyNoise, permissive())
	assert.ErrorIs(t, err, ErrEmptyNetwork)
}

func TestBuildRejectsInvalidOptions(t *testing.T) {
	opts := permissive()
	opts.Weighting = "jaccard"
	_, err := Build(threeAuthors(), opts)
	assert.Error(t, err)

	opts = permissive()
	opts.SubredditCommentThreshold = -1
	_, err = Build(threeAuthors(), opts)
	assert.Error(t, err)
}

// randomRecords produces a reproducible table of users commenting across subs
// subreddits, including zero counts and repeated pairs.
func randomRecords(seed int64, authors, subs int) []Record {
	rng := rand.New(rand.NewSource(seed))
	var out []Record
	for a := 0; a < authors; a++ {
		n := 1 + rng.Intn(6)
		for k := 0; k < n; k++ {
			out = append(out, Record{
				Author:    fmt.Sprintf("user%03d", a),
				Subreddit: fmt.Sprintf("sub%02d", rng.Intn(subs)),
				Count:     int64(rng.Intn(40)),
			})
		}
	}
	return out
}

func TestPropertiesOnRandomTables(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		records := randomRecords(seed, 200, 30)
		opts := DefaultOptions()
		opts.SubredditCommentThreshold = 150

		n, err := Build(records, opts)
		require.NoError(t, err)

		t.Run(fmt.Sprintf("symmetric/%d", seed), func(t *testing.T) {
			m := n.Matrix()
			for i := range m {
				for j := range m {
					assert.Equal(t, m[i][j], m[j][i])
				}
			}
		})

		t.Run(fmt.Sprintf("no orphan ids/%d", seed), func(t *testing.T) {
			used := make(map[string]bool)
			for _, r := range Filter(records, opts) {
				used[r.Subreddit] = true
			}
			assert.Len(t, used, n.Len())
			for _, name := range n.Index().Names() {
				assert.True(t, used[name], "id for %s has no surviving record", name)
			}
		})

		t.Run(fmt.Sprintf("idempotent/%d", seed), func(t *testing.T) {
			shuffled := append([]Record(nil), records...)
			rand.New(rand.NewSource(seed*7)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			again, err := Build(shuffled, opts)
			require.NoError(t, err)
			assert.Equal(t, n.Index().Names(), again.Index().Names())
			assert.Equal(t, n.Edges(), again.Edges())
			assert.Equal(t, n.Matrix(), again.Matrix())
		})

		t.Run(fmt.Sprintf("round trip/%d", seed), func(t *testing.T) {
			fromMatrix, err := FromMatrix(n.Index().Names(), n.Matrix())
			require.NoError(t, err)
			assert.Equal(t, n.Edges(), fromMatrix.Edges())
			assert.Equal(t, n.Matrix(), fromMatrix.Matrix())

			fromEdges, err := FromEdges(n.Index().Names(), n.Edges())
			require.NoError(t, err)
			assert.Equal(t, n.Matrix(), fromEdges.Matrix())
		})
	}
}

func TestFromEdgesValidation(t *testing.T) {
	names := []string{"a", "b", "c"}

	n, err := FromEdges(names, []Edge{{I: 2, J: 0, Weight: 0.5}, {I: 0, J: 1, Weight: 0}})
	require.NoError(t, err)
	assert.Equal(t, []Edge{{I: 0, J: 2, Weight: 0.5}}, n.Edges())

	_, err = FromEdges(names, []Edge{{I: 0, J: 3, Weight: 1}})
	assert.Error(t, err)
	_, err = FromEdges(names, []Edge{{I: 1, J: 1, Weight: 1}})
	assert.Error(t, err)
	_, err = FromEdges(names, []Edge{{I: 0, J: 1, Weight: 1}, {I: 1, J: 0, Weight: 1}})
	assert.Error(t, err)
	_, err = FromEdges([]string{"a", "a"}, nil)
	assert.Error(t, err)
	_, err = FromEdges(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyNetwork)
}

func TestFromMatrixValidation(t *testing.T) {
	names := []string{"a", "b"}

	_, err := FromMatrix(names, [][]float64{{0, 1}, {2, 0}})
	assert.Error(t, err, "asymmetric")
	_, err = FromMatrix(names, [][]float64{{1, 0}, {0, 0}})
	assert.Error(t, err, "diagonal")
	_, err = FromMatrix(names, [][]float64{{0, 0, 0}, {0, 0, 0}})
	assert.Error(t, err, "shape")
}

func TestFromMatrixRejectsJaggedRows(t *testing.T) {
	names := []string{"a", "b", "c"}
	assert.NotPanics(t, func() {
		_, err := FromMatrix(names, [][]float64{{0, 0, 0}, {0, 0, 0}, {0}})
		assert.Error(t, err)
	})
	assert.NotPanics(t, func() {
		_, err := FromMatrix(names, [][]float64{{0, 0, 0}, {0}, {0, 0, 0}})
		assert.Error(t, err)
	})
}

func TestStagedBuildMatchesBuild(t *testing.T) {
	records := threeAuthors()
	records = append(records, Record{Author: "[deleted]", Subreddit: "subD", Count: 9})

	f, err := FilterAndIndex(records, permissive())
	require.NoError(t, err)
	assert.Equal(t, []string{"subA", "subB", "subC"}, f.Index().Names())
	assert.Equal(t, 5, f.KeptRecords())
	assert.Equal(t, 1, f.ExcludedSubreddits())

	staged := f.Overlap()
	direct, err := Build(records, permissive())
	require.NoError(t, err)
	assert.Equal(t, direct.Edges(), staged.Edges())
	assert.Equal(t, direct.Stats(), staged.Stats())
	assert.Equal(t, direct.SubredditTotals(), staged.SubredditTotals())
}
