// Package artifact persists overlap networks as CSV files and derives the
// cache key that addresses them.
//
// A network directory holds up to three files:
//   - subreddits.csv: "subreddit,id" rows ordered by id
//   - matrix.csv: K rows of K weights, no header, row/column order = id order
//   - edges.csv: "node_id_1,node_id_2,weight" rows, one per unordered pair with i < j
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TobiSchelling/subnet/internal/network"
)

// Format names an optional network representation on disk.
type Format string

const (
	FormatMatrix   Format = "matrix"
	FormatEdgeList Format = "edge_list"
)

// ErrNotFound means a directory holds no loadable network.
var ErrNotFound = errors.New("network artifacts not found")

// ParseFormats validates configured format names. An empty list means both.
func ParseFormats(names []string) ([]Format, error) {
	if len(names) == 0 {
		return []Format{FormatEdgeList, FormatMatrix}, nil
	}
	seen := make(map[Format]bool)
	var out []Format
	for _, n := range names {
		f := Format(n)
		if f != FormatMatrix && f != FormatEdgeList {
			return nil, fmt.Errorf("unknown output format %q", n)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// Paths locates the files of one network directory.
type Paths struct {
	Dir      string
	Mapping  string
	Matrix   string
	EdgeList string
}

// PathsIn returns the file layout inside dir.
func PathsIn(dir string) Paths {
	return Paths{
		Dir:      dir,
		Mapping:  filepath.Join(dir, "subreddits.csv"),
		Matrix:   filepath.Join(dir, "matrix.csv"),
		EdgeList: filepath.Join(dir, "edges.csv"),
	}
}

// PathsFor returns the directory for a build of period addressed by key.
func PathsFor(outputDir, period, key string) Paths {
	short := key
	if len(short) > 12 {
		short = short[:12]
	}
	return PathsIn(filepath.Join(outputDir, "networks", period+"-"+short))
}

func (p Paths) file(f Format) string {
	if f == FormatMatrix {
		return p.Matrix
	}
	return p.EdgeList
}

// Complete reports whether the mapping and every requested format exist.
func (p Paths) Complete(formats []Format) bool {
	if !exists(p.Mapping) {
		return false
	}
	for _, f := range formats {
		if !exists(p.file(f)) {
			return false
		}
	}
	return true
}

// Save writes the mapping and the requested formats of n.
func Save(p Paths, n *network.Network, formats []Format) error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := WriteMapping(p.Mapping, n.Index().Names()); err != nil {
		return err
	}
	for _, f := range formats {
		var err error
		switch f {
		case FormatMatrix:
			err = WriteMatrix(p.Matrix, n.Matrix())
		case FormatEdgeList:
			err = WriteEdgeList(p.EdgeList, n.Edges())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Load reads a network back. The sparse edge list is preferred over the
// dense matrix when both are present.
func Load(p Paths) (*network.Network, error) {
	if !exists(p.Mapping) {
		return nil, fmt.Errorf("%w in %s", ErrNotFound, p.Dir)
	}
	names, err := ReadMapping(p.Mapping)
	if err != nil {
		return nil, err
	}

	switch {
	case exists(p.EdgeList):
		edges, err := ReadEdgeList(p.EdgeList)
		if err != nil {
			return nil, err
		}
		return network.FromEdges(names, edges)
	case exists(p.Matrix):
		m, err := ReadMatrix(p.Matrix)
		if err != nil {
			return nil, err
		}
		return network.FromMatrix(names, m)
	}
	return nil, fmt.Errorf("%w in %s", ErrNotFound, p.Dir)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
