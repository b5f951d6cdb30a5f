package artifact

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/TobiSchelling/subnet/internal/network"
)

var (
	mappingHeader  = []string{"subreddit", "id"}
	edgeListHeader = []string{"node_id_1", "node_id_2", "weight"}
)

// formatWeight uses the shortest representation that parses back to the
// same float64.
func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'g', -1, 64)
}

// writeCSV writes rows to a temporary file and renames it into place.
func writeCSV(path string, header []string, rows func(w *csv.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if header != nil {
		if err := w.Write(header); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if err := rows(w); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

func readCSV(path string, header []string, row func(line int, rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if header != nil {
		got, err := r.Read()
		if err != nil {
			return fmt.Errorf("reading header of %s: %w", path, err)
		}
		if len(got) != len(header) {
			return fmt.Errorf("%s: unexpected header %v", path, got)
		}
		for i := range header {
			if got[i] != header[i] {
				return fmt.Errorf("%s: unexpected header %v", path, got)
			}
		}
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		line, _ := r.FieldPos(0)
		if err := row(line, rec); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
}

// WriteMapping writes names as "subreddit,id" rows in id order.
func WriteMapping(path string, names []string) error {
	return writeCSV(path, mappingHeader, func(w *csv.Writer) error {
		for id, name := range names {
			if err := w.Write([]string{name, strconv.Itoa(id)}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadMapping returns names indexed by id. Rows may be in any order but the
// ids must be exactly 0..K-1.
func ReadMapping(path string) ([]string, error) {
	byID := make(map[int]string)
	err := readCSV(path, mappingHeader, func(_ int, rec []string) error {
		if len(rec) != 2 {
			return fmt.Errorf("expected 2 fields, got %d", len(rec))
		}
		id, err := strconv.Atoi(rec[1])
		if err != nil {
			return fmt.Errorf("invalid id %q", rec[1])
		}
		if _, dup := byID[id]; dup {
			return fmt.Errorf("duplicate id %d", id)
		}
		byID[id] = rec[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, len(byID))
	for id, name := range byID {
		if id < 0 || id >= len(names) {
			return nil, fmt.Errorf("%s: ids are not dense, found %d with %d entries", path, id, len(names))
		}
		names[id] = name
	}
	return names, nil
}

// WriteMatrix writes m row by row without a header.
func WriteMatrix(path string, m [][]float64) error {
	return writeCSV(path, nil, func(w *csv.Writer) error {
		rec := make([]string, len(m))
		for _, row := range m {
			for j, v := range row {
				rec[j] = formatWeight(v)
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadMatrix reads a headerless matrix. Shape checks are left to
// network.FromMatrix.
func ReadMatrix(path string) ([][]float64, error) {
	var m [][]float64
	err := readCSV(path, nil, func(_ int, rec []string) error {
		row := make([]float64, len(rec))
		for j, s := range rec {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("invalid weight %q in column %d", s, j)
			}
			row[j] = v
		}
		m = append(m, row)
		return nil
	})
	return m, err
}

// WriteEdgeList writes one "i,j,weight" row per edge.
func WriteEdgeList(path string, edges []network.Edge) error {
	return writeCSV(path, edgeListHeader, func(w *csv.Writer) error {
		for _, e := range edges {
			rec := []string{strconv.Itoa(e.I), strconv.Itoa(e.J), formatWeight(e.Weight)}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadEdgeList reads rows written by WriteEdgeList.
func ReadEdgeList(path string) ([]network.Edge, error) {
	var edges []network.Edge
	err := readCSV(path, edgeListHeader, func(_ int, rec []string) error {
		if len(rec) != 3 {
			return fmt.Errorf("expected 3 fields, got %d", len(rec))
		}
		i, err := strconv.Atoi(rec[0])
		if err != nil {
			return fmt.Errorf("invalid node id %q", rec[0])
		}
		j, err := strconv.Atoi(rec[1])
		if err != nil {
			return fmt.Errorf("invalid node id %q", rec[1])
		}
		w, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return fmt.Errorf("invalid weight %q", rec[2])
		}
		edges = append(edges, network.Edge{I: i, J: j, Weight: w})
		return nil
	})
	return edges, err
}
