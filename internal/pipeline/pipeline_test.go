package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/subnet/internal/artifact"
	"github.com/TobiSchelling/subnet/internal/config"
	"github.com/TobiSchelling/subnet/internal/database"
	"github.com/TobiSchelling/subnet/internal/loader"
	"github.com/TobiSchelling/subnet/internal/network"
)

const threeAuthors = `author;subreddit;f0_
a1;subA;5
a1;subB;3
a2;subA;2
a2;subC;4
a3;subB;1
[deleted];subA;50
`

type fixture struct {
	cfg     *config.Config
	db      *database.DB
	dataDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "raw")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "part-000.csv"), []byte(threeAuthors), 0o644))

	cfgPath := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
data:
  path: `+dataDir+`
  period: "2023-01"
filter:
  subreddit_comment_threshold: 0
output:
  data_dir: `+filepath.Join(root, "out")+`
`), 0o644))
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	db, err := database.Open(cfg.DBPath())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &fixture{cfg: cfg, db: db, dataDir: dataDir}
}

func weight(t *testing.T, n *network.Network, a, b string) float64 {
	t.Helper()
	i, ok := n.Index().ID(a)
	require.True(t, ok)
	j, ok := n.Index().ID(b)
	require.True(t, ok)
	return n.Weight(i, j)
}

func TestNetworkBuildsThenCaches(t *testing.T) {
	f := newFixture(t)
	p := New(f.cfg, f.db)
	ctx := context.Background()

	first, err := p.Network(ctx, false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Steps, 4)
	for _, s := range first.Steps {
		assert.NoError(t, s.Err, s.Name)
	}
	assert.Equal(t, []string{"subA", "subB", "subC"}, first.Network.Index().Names())
	assert.Equal(t, 15.0/56.0, weight(t, first.Network, "subA", "subB"))
	assert.Equal(t, 8.0/42.0, weight(t, first.Network, "subA", "subC"))
	assert.Equal(t, 0.0, weight(t, first.Network, "subB", "subC"))

	require.NotNil(t, first.Build)
	assert.Equal(t, first.Key, first.Build.Key)
	assert.NotEmpty(t, first.Build.RunID)
	assert.True(t, artifact.PathsIn(first.Build.Dir).Complete([]artifact.Format{artifact.FormatMatrix, artifact.FormatEdgeList}))

	totals, err := f.db.GetSubredditTotals(first.Key)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	assert.Equal(t, int64(7), totals[0].TotalComments)
	assert.Equal(t, int64(4), totals[1].TotalComments)

	second, err := p.Network(ctx, false)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.Network.Edges(), second.Network.Edges())
	assert.Equal(t, first.Network.Matrix(), second.Network.Matrix())
}

func TestNetworkRebuildForced(t *testing.T) {
	f := newFixture(t)
	p := New(f.cfg, f.db)

	_, err := p.Network(context.Background(), false)
	require.NoError(t, err)

	r, err := p.Network(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, r.FromCache)

	builds, err := f.db.GetAllBuilds()
	require.NoError(t, err)
	assert.Len(t, builds, 1)
}

func TestParameterChangeInvalidatesOldBuild(t *testing.T) {
	f := newFixture(t)
	first, err := New(f.cfg, f.db).Network(context.Background(), false)
	require.NoError(t, err)

	f.cfg.Network.Weighting = string(network.WeightCooccurrence)
	second, err := New(f.cfg, f.db).Network(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, second.FromCache)
	assert.NotEqual(t, first.Key, second.Key)
	assert.Equal(t, 1.0, weight(t, second.Network, "subA", "subB"))

	_, err = os.Stat(first.Build.Dir)
	assert.True(t, os.IsNotExist(err), "stale artifacts should be removed")

	builds, err := f.db.GetAllBuilds()
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, second.Key, builds[0].Key)
}

func TestInputChangeMissesCache(t *testing.T) {
	f := newFixture(t)
	p := New(f.cfg, f.db)
	first, err := p.Network(context.Background(), false)
	require.NoError(t, err)

	extra := threeAuthors + "a3;subC;2\n"
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "part-000.csv"), []byte(extra), 0o644))

	second, err := p.Network(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, second.FromCache)
	assert.NotEqual(t, first.Key, second.Key)
	assert.Greater(t, weight(t, second.Network, "subB", "subC"), 0.0)
}

func TestMissingArtifactTriggersRebuild(t *testing.T) {
	f := newFixture(t)
	p := New(f.cfg, f.db)
	first, err := p.Network(context.Background(), false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(artifact.PathsIn(first.Build.Dir).Matrix))

	second, err := p.Network(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, second.FromCache)
	assert.Equal(t, first.Key, second.Key)
	assert.FileExists(t, artifact.PathsIn(second.Build.Dir).Matrix)
}

func TestMissingDataPath(t *testing.T) {
	f := newFixture(t)
	f.cfg.Data.Path = filepath.Join(t.TempDir(), "nope")

	_, err := New(f.cfg, f.db).Network(context.Background(), false)
	assert.True(t, errors.Is(err, loader.ErrNoInput))
	assert.True(t, IsConfigError(err))
}

func TestInvalidConfig(t *testing.T) {
	f := newFixture(t)
	f.cfg.Filter.SubredditCommentThreshold = -1

	_, err := New(f.cfg, f.db).Network(context.Background(), false)
	assert.True(t, errors.Is(err, config.ErrInvalid))
	assert.True(t, IsConfigError(err))
}

func TestMalformedRowRejectsRun(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "part-001.csv"),
		[]byte("author;subreddit;f0_\nx;subA;lots\n"), 0o644))

	r, err := New(f.cfg, f.db).Network(context.Background(), false)
	var rec *loader.RecordError
	require.True(t, errors.As(err, &rec))
	assert.Equal(t, 2, rec.Line)
	require.NotEmpty(t, r.Steps)
	assert.Equal(t, "Load", r.Steps[len(r.Steps)-1].Name)

	builds, err := f.db.GetAllBuilds()
	require.NoError(t, err)
	assert.Empty(t, builds)
}

func TestEverythingFilteredOut(t *testing.T) {
	f := newFixture(t)
	f.cfg.Filter.SubredditCommentThreshold = 1000

	_, err := New(f.cfg, f.db).Network(context.Background(), false)
	assert.True(t, errors.Is(err, network.ErrEmptyNetwork))
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f.cfg, f.db).Network(ctx, false)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDryRun(t *testing.T) {
	f := newFixture(t)
	p := New(f.cfg, f.db)

	r, err := p.DryRun(false)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	assert.Len(t, r.Steps, 2)
	assert.Contains(t, r.Steps[1].Summary, "Cache miss")

	builds, _ := f.db.GetAllBuilds()
	assert.Empty(t, builds, "dry run must not persist")

	_, err = p.Network(context.Background(), false)
	require.NoError(t, err)

	r, err = p.DryRun(false)
	require.NoError(t, err)
	assert.True(t, r.FromCache)

	r, err = p.DryRun(true)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	assert.Contains(t, r.Steps[1].Summary, "Rebuild forced")
}

func TestStepsRunInOrder(t *testing.T) {
	f := newFixture(t)
	r, err := New(f.cfg, f.db).Network(context.Background(), false)
	require.NoError(t, err)

	var names []string
	for _, s := range r.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Load", "Filter & Index", "Overlap", "Persist"}, names)
	assert.Contains(t, r.Steps[1].Summary, "Kept 5 of 6 records")
}

func TestCorruptMatrixMissesCache(t *testing.T) {
	f := newFixture(t)
	f.cfg.Output.Formats = []string{"matrix"}
	p := New(f.cfg, f.db)

	first, err := p.Network(context.Background(), false)
	require.NoError(t, err)
	paths := artifact.PathsIn(first.Build.Dir)
	require.NoError(t, os.WriteFile(paths.Matrix, []byte("0,0,0\n0,0,0\n0\n"), 0o644))

	var second *Result
	require.NotPanics(t, func() {
		second, err = p.Network(context.Background(), false)
	})
	require.NoError(t, err)
	assert.False(t, second.FromCache)
	assert.Equal(t, 15.0/56.0, weight(t, second.Network, "subA", "subB"))
}

func TestPeriodOutsideDataDirRejected(t *testing.T) {
	f := newFixture(t)
	f.cfg.Data.Period = "../../escape"

	_, err := New(f.cfg, f.db).Network(context.Background(), false)
	assert.True(t, errors.Is(err, config.ErrInvalid))
	assert.True(t, IsConfigError(err))

	_, statErr := os.Stat(filepath.Join(f.cfg.GetDataDir(), "..", "escape"))
	assert.True(t, os.IsNotExist(statErr))
}
