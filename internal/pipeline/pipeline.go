package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/TobiSchelling/subnet/internal/artifact"
	"github.com/TobiSchelling/subnet/internal/config"
	"github.com/TobiSchelling/subnet/internal/database"
	"github.com/TobiSchelling/subnet/internal/loader"
	"github.com/TobiSchelling/subnet/internal/network"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the outcome of obtaining a network.
type Result struct {
	PeriodID  string
	Key       string
	Network   *network.Network
	Build     *database.Build
	FromCache bool
	Steps     []StepResult
}

// Pipeline decides between reusing persisted artifacts and rebuilding the
// network from the raw data.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	progress io.Writer
}

// New creates a new pipeline.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	return &Pipeline{cfg: cfg, db: db}
}

// SetProgress sets where the loader draws its progress bar. Nil disables it.
func (p *Pipeline) SetProgress(w io.Writer) {
	p.progress = w
}

// plan is everything derived from the config before any data is read.
type plan struct {
	dataPath string
	source   *loader.Source
	opts     network.Options
	formats  []artifact.Format
	key      string
	paths    artifact.Paths
}

func (p *Pipeline) plan() (*plan, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	formats, err := artifact.ParseFormats(p.cfg.Output.Formats)
	if err != nil {
		return nil, err
	}

	dataPath := p.cfg.Data.Path
	if abs, err := filepath.Abs(dataPath); err == nil {
		dataPath = abs
	}
	src, err := loader.Fingerprint(dataPath)
	if err != nil {
		return nil, err
	}

	lopts := p.cfg.ToLoaderOptions()
	opts := p.cfg.ToBuildOptions()
	key := artifact.CacheKey(artifact.KeyInput{
		Source:      src,
		Period:      p.cfg.Data.Period,
		Build:       opts,
		Delimiter:   lopts.Delimiter,
		CountColumn: lopts.CountColumn,
	})

	return &plan{
		dataPath: dataPath,
		source:   src,
		opts:     opts,
		formats:  formats,
		key:      key,
		paths:    artifact.PathsFor(p.cfg.GetDataDir(), p.cfg.Data.Period, key),
	}, nil
}

// Network returns the overlap network for the configured data. Persisted
// artifacts are reused when the cache key matches and every configured
// format is on disk, unless rebuild is set. The returned Result carries the
// steps run so far even when err is non-nil.
func (p *Pipeline) Network(ctx context.Context, rebuild bool) (*Result, error) {
	r := &Result{PeriodID: p.cfg.Data.Period}

	pl, err := p.plan()
	if err != nil {
		return r, err
	}
	r.Key = pl.key

	if !rebuild {
		step, n, b := p.fromCache(pl)
		if n != nil {
			r.Steps = append(r.Steps, step)
			r.Network, r.Build, r.FromCache = n, b, true
			return r, nil
		}
	}

	// Step 1: Load
	log.Info("Step 1/4: Loading raw records...")
	lopts := p.cfg.ToLoaderOptions()
	lopts.Progress = p.progress
	records, src, err := loader.Load(ctx, pl.dataPath, lopts)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Load", Err: err})
		return r, err
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Load",
		Summary: fmt.Sprintf("Read %d records from %d file(s)", len(records), len(src.Files)),
	})

	// Step 2: Filter & Index
	log.Info("Step 2/4: Filtering and indexing subreddits...")
	f, err := network.FilterAndIndex(records, pl.opts)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Filter & Index", Err: err})
		return r, err
	}
	r.Steps = append(r.Steps, StepResult{
		Name: "Filter & Index",
		Summary: fmt.Sprintf("Kept %d of %d records, %d subreddits indexed, %d excluded",
			f.KeptRecords(), len(records), f.Index().Len(), f.ExcludedSubreddits()),
	})

	// Step 3: Overlap
	log.Info("Step 3/4: Computing overlaps...")
	n := f.Overlap()
	r.Steps = append(r.Steps, StepResult{
		Name:    "Overlap",
		Summary: fmt.Sprintf("%d edges from %d authors", n.EdgeCount(), n.Stats().Authors),
	})
	r.Network = n

	// Step 4: Persist
	log.Info("Step 4/4: Persisting network...")
	b, err := p.persist(pl, n)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Persist", Err: err})
		return r, err
	}
	r.Build = b
	r.Steps = append(r.Steps, StepResult{
		Name:    "Persist",
		Summary: fmt.Sprintf("Wrote %v to %s", b.Formats, b.Dir),
	})
	return r, nil
}

// fromCache returns a loaded network when the catalog knows the key and its
// artifacts are complete. Unreadable artifacts are logged and treated as a
// miss.
func (p *Pipeline) fromCache(pl *plan) (StepResult, *network.Network, *database.Build) {
	b, err := p.db.GetBuild(pl.key)
	if err != nil {
		log.Warnf("catalog lookup failed: %v", err)
		return StepResult{}, nil, nil
	}
	if b == nil {
		log.Debugf("no cached build for key %s", pl.key[:12])
		return StepResult{}, nil, nil
	}

	paths := artifact.PathsIn(b.Dir)
	if !paths.Complete(pl.formats) {
		log.Infof("cached build %s is missing artifacts, rebuilding", pl.key[:12])
		return StepResult{}, nil, nil
	}
	n, err := artifact.Load(paths)
	if err != nil {
		log.Warnf("cached build %s unreadable, rebuilding: %v", pl.key[:12], err)
		return StepResult{}, nil, nil
	}

	log.Infof("Using cached network from %s", b.Dir)
	return StepResult{
		Name:    "Cache",
		Summary: fmt.Sprintf("Loaded %d subreddits and %d edges from %s", n.Len(), n.EdgeCount(), b.Dir),
	}, n, b
}

func (p *Pipeline) persist(pl *plan, n *network.Network) (*database.Build, error) {
	if err := artifact.Save(pl.paths, n, pl.formats); err != nil {
		return nil, err
	}

	params, err := json.Marshal(pl.opts)
	if err != nil {
		return nil, fmt.Errorf("encoding build parameters: %w", err)
	}
	formats := make([]string, len(pl.formats))
	for i, f := range pl.formats {
		formats[i] = string(f)
	}

	st := n.Stats()
	b := database.Build{
		Key:        pl.key,
		RunID:      uuid.NewString(),
		PeriodID:   p.cfg.Data.Period,
		DataPath:   pl.dataPath,
		Params:     string(params),
		Subreddits: n.Len(),
		Edges:      n.EdgeCount(),
		Authors:    st.Authors,
		Records:    st.KeptRecords,
		Dir:        pl.paths.Dir,
		Formats:    formats,
	}

	names := n.Index().Names()
	subTotals := n.SubredditTotals()
	totals := make([]database.SubredditTotal, len(names))
	for i, name := range names {
		totals[i] = database.SubredditTotal{ID: i, Name: name}
		if i < len(subTotals) {
			totals[i].TotalComments = subTotals[i]
		}
	}

	id, err := p.db.InsertBuild(b, totals)
	if err != nil {
		return nil, err
	}
	b.ID = id

	stale, err := p.db.DeleteStaleBuilds(b.PeriodID, b.DataPath, b.Key)
	if err != nil {
		return nil, fmt.Errorf("removing stale builds: %w", err)
	}
	for _, s := range stale {
		if s.Dir == b.Dir {
			continue
		}
		if err := os.RemoveAll(s.Dir); err != nil {
			log.Warnf("could not remove stale artifacts %s: %v", s.Dir, err)
			continue
		}
		log.Infof("Removed stale build %s", s.Dir)
	}

	saved, err := p.db.GetBuild(b.Key)
	if err != nil || saved == nil {
		return &b, nil
	}
	return saved, nil
}

// DryRun reports what Network would do without reading or writing data.
func (p *Pipeline) DryRun(rebuild bool) (*Result, error) {
	r := &Result{PeriodID: p.cfg.Data.Period}

	pl, err := p.plan()
	if err != nil {
		return r, err
	}
	r.Key = pl.key

	var size int64
	for _, f := range pl.source.Files {
		size += f.Size
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Load",
		Summary: fmt.Sprintf("[dry-run] %d file(s), %d bytes under %s", len(pl.source.Files), size, pl.dataPath),
	})

	b, err := p.db.GetBuild(pl.key)
	if err != nil {
		return r, err
	}
	switch {
	case rebuild:
		r.Steps = append(r.Steps, StepResult{
			Name:    "Cache",
			Summary: fmt.Sprintf("[dry-run] Rebuild forced, would write %s", pl.paths.Dir),
		})
	case b != nil && artifact.PathsIn(b.Dir).Complete(pl.formats):
		r.FromCache = true
		r.Build = b
		r.Steps = append(r.Steps, StepResult{
			Name:    "Cache",
			Summary: fmt.Sprintf("[dry-run] Cache hit, would load %s", b.Dir),
		})
	default:
		r.Steps = append(r.Steps, StepResult{
			Name:    "Cache",
			Summary: fmt.Sprintf("[dry-run] Cache miss, would build into %s", pl.paths.Dir),
		})
	}
	return r, nil
}

// IsConfigError reports whether err comes from configuration rather than
// from the data or the environment.
func IsConfigError(err error) bool {
	return errors.Is(err, config.ErrInvalid) ||
		errors.Is(err, loader.ErrNoInput) ||
		errors.Is(err, network.ErrUnknownSubreddit)
}
