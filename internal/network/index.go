package network

import (
	"fmt"
	"sort"
)

// Index is the bidirectional subreddit name <-> id mapping. Ids are dense in
// [0, Len()) and follow byte-wise lexicographic order of the names.
type Index struct {
	names []string
	ids   map[string]int
}

// NewIndex assigns ids to the distinct subreddits in records.
func NewIndex(records []Record) (*Index, error) {
	seen := make(map[string]bool)
	var names []string
	for _, r := range records {
		if !seen[r.Subreddit] {
			seen[r.Subreddit] = true
			names = append(names, r.Subreddit)
		}
	}
	if len(names) == 0 {
		return nil, ErrEmptyNetwork
	}
	sort.Strings(names)
	return newIndex(names), nil
}

// IndexFromNames rebuilds an Index from names ordered by id, as read back
// from a persisted mapping.
func IndexFromNames(names []string) (*Index, error) {
	if len(names) == 0 {
		return nil, ErrEmptyNetwork
	}
	idx := newIndex(append([]string(nil), names...))
	if len(idx.ids) != len(names) {
		return nil, fmt.Errorf("subreddit mapping contains duplicate names")
	}
	return idx, nil
}

func newIndex(names []string) *Index {
	ids := make(map[string]int, len(names))
	for i, n := range names {
		ids[n] = i
	}
	return &Index{names: names, ids: ids}
}

// Len returns the number of subreddits.
func (x *Index) Len() int { return len(x.names) }

// ID returns the id of name.
func (x *Index) ID(name string) (int, bool) {
	id, ok := x.ids[name]
	return id, ok
}

// Name returns the subreddit for id. It panics when id is out of range.
func (x *Index) Name(id int) string { return x.names[id] }

// Names returns a copy of all names ordered by id.
func (x *Index) Names() []string {
	return append([]string(nil), x.names...)
}
