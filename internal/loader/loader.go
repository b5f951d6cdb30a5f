// Package loader reads raw (author, subreddit, count) exports from disk.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v2"
	log "github.com/sirupsen/logrus"

	"github.com/TobiSchelling/subnet/internal/network"
)

const (
	DefaultDelimiter   = ';'
	DefaultCountColumn = "f0_"
)

// ErrNoInput means the configured data path is missing or holds no files.
var ErrNoInput = errors.New("no input data")

// RecordError is a malformed row. Any RecordError rejects the whole load.
type RecordError struct {
	File   string
	Line   int
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
}

// Options controls how raw files are parsed.
type Options struct {
	Delimiter   rune
	CountColumn string
	// Progress receives a per-file progress bar when non-nil.
	Progress io.Writer
}

// DefaultOptions matches the layout of the BigQuery monthly exports.
func DefaultOptions() Options {
	return Options{Delimiter: DefaultDelimiter, CountColumn: DefaultCountColumn}
}

// File identifies one input file without its contents.
type File struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Source is the identity of the input: every file that will be read, in
// read order.
type Source struct {
	Path  string
	Files []File
}

// Fingerprint lists the files under path. A directory contributes every
// regular, non-hidden file in name order.
func Fingerprint(path string) (*Source, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrNoInput, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading data path: %w", err)
	}

	src := &Source{Path: path}
	if !info.IsDir() {
		src.Files = []File{{Path: path, Size: info.Size(), ModTime: info.ModTime()}}
		return src, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("listing data directory: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		src.Files = append(src.Files, File{
			Path:    filepath.Join(path, e.Name()),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	if len(src.Files) == 0 {
		return nil, fmt.Errorf("%w: %s contains no data files", ErrNoInput, path)
	}
	return src, nil
}

// Load reads every file of the source at path into one record table.
func Load(ctx context.Context, path string, opts Options) ([]network.Record, *Source, error) {
	src, err := Fingerprint(path)
	if err != nil {
		return nil, nil, err
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = DefaultDelimiter
	}
	if opts.CountColumn == "" {
		opts.CountColumn = DefaultCountColumn
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions(len(src.Files),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription("Reading files"),
		)
	}

	var records []network.Record
	for _, f := range src.Files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		recs, err := readFile(f.Path, opts)
		if err != nil {
			return nil, nil, err
		}
		log.Debugf("Read %d records from %s", len(recs), f.Path)
		records = append(records, recs...)
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	log.Infof("Loaded %d records from %d file(s)", len(records), len(src.Files))
	return records, src, nil
}

func readFile(path string, opts Options) ([]network.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return parse(f, path, opts)
}

// parse reads one export. The first row is the header; columns may appear in
// any order.
func parse(r io.Reader, name string, opts Options) ([]network.Record, error) {
	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &RecordError{File: name, Line: 1, Reason: "missing header"}
	}
	if err != nil {
		return nil, shapeError(name, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[h] = i
	}
	idx := make(map[string]int, 3)
	for _, want := range []string{"author", "subreddit", opts.CountColumn} {
		i, ok := cols[want]
		if !ok {
			return nil, &RecordError{File: name, Line: 1, Reason: fmt.Sprintf("missing column %q", want)}
		}
		idx[want] = i
	}

	var records []network.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, shapeError(name, err)
		}
		line, _ := reader.FieldPos(0)

		author := strings.TrimSpace(row[idx["author"]])
		if author == "" {
			return nil, &RecordError{File: name, Line: line, Reason: "empty author"}
		}
		subreddit := strings.TrimSpace(row[idx["subreddit"]])
		if subreddit == "" {
			return nil, &RecordError{File: name, Line: line, Reason: "empty subreddit"}
		}
		raw := strings.TrimSpace(row[idx[opts.CountColumn]])
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &RecordError{File: name, Line: line, Reason: fmt.Sprintf("invalid count %q", raw)}
		}
		if count < 0 {
			return nil, &RecordError{File: name, Line: line, Reason: fmt.Sprintf("negative count %d", count)}
		}

		records = append(records, network.Record{Author: author, Subreddit: subreddit, Count: count})
	}
	return records, nil
}

func shapeError(name string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &RecordError{File: name, Line: pe.Line, Reason: pe.Err.Error()}
	}
	return fmt.Errorf("reading %s: %w", name, err)
}
