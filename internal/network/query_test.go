package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrongestOverlaps(t *testing.T) {
	n, err := Build(threeAuthors(), permissive())
	require.NoError(t, err)

	got, err := n.StrongestOverlaps("subA")
	require.NoError(t, err)
	assert.Equal(t, []Overlap{
		{Subreddit: "subB", Weight: 15.0 / 56.0},
		{Subreddit: "subC", Weight: 8.0 / 42.0},
	}, got)

	got, err = n.StrongestOverlaps("subB")
	require.NoError(t, err)
	assert.Equal(t, []Overlap{
		{Subreddit: "subA", Weight: 15.0 / 56.0},
		{Subreddit: "subC", Weight: 0},
	}, got)
}

func TestStrongestOverlapsUnknown(t *testing.T) {
	n, err := Build(threeAuthors(), permissive())
	require.NoError(t, err)

	_, err = n.StrongestOverlaps("subZ")
	assert.ErrorIs(t, err, ErrUnknownSubreddit)
}

func TestTopPairs(t *testing.T) {
	n, err := Build(threeAuthors(), permissive())
	require.NoError(t, err)

	assert.Equal(t, []Pair{
		{A: "subA", B: "subB", Weight: 15.0 / 56.0},
		{A: "subA", B: "subC", Weight: 8.0 / 42.0},
	}, n.TopPairs(0))
	assert.Len(t, n.TopPairs(1), 1)
	assert.Len(t, n.TopPairs(10), 2)
}
