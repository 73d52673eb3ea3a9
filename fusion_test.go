package fusion_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fusion "github.com/lucidrx/fusion"
	"github.com/lucidrx/fusion/agent"
	"github.com/lucidrx/fusion/fuserr"
	"github.com/lucidrx/fusion/graph"
	"github.com/lucidrx/fusion/graph/query"
	"github.com/lucidrx/fusion/source"
)

func newFramework(t *testing.T, opts ...fusion.Option) *fusion.Framework {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	f, err := fusion.New(append([]fusion.Option{fusion.WithLogger(logger)}, opts...)...)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, f.Start(ctx))
	t.Cleanup(func() { f.Shutdown(context.Background()) })
	return f
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEndToEndFileSourceLifecycle(t *testing.T) {
	f := newFramework(t)
	ctx := context.Background()

	_, err := f.RegisterSource(ctx, source.Config{
		ID:       "uspto",
		Name:     "Patent uploads",
		Kind:     source.KindFile,
		DataType: agent.DataTypePatents,
	})
	require.NoError(t, err)

	path := writeFile(t, "patents.csv",
		"patent_number,title,assignee,inventors\n"+
			"US-1,Compound X,Acme Pharma,Jane Roe\n"+
			"US-2,Compound Y,Beta Labs,John Doe\n")
	res, err := f.UploadFile(ctx, "uspto", path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)

	g, err := f.BuildGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, g.Status)
	assert.NotNil(t, g.Entity("patent_us_1"))
	assert.NotNil(t, g.Entity("company_acme_pharma"))

	// The build was snapshotted and is loadable by id.
	stored, err := f.GetGraph(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Metadata.EntityCount, stored.Metadata.EntityCount)

	ids, err := f.ListGraphs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, g.ID)

	out, err := f.ExportGraph(ctx, g.ID, graph.ExportJSON)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, g.ID, doc["id"])

	q := query.New().WithEntityTypes(graph.EntityTypeCompany)
	qr, err := f.QueryGraph(ctx, g.ID, q)
	require.NoError(t, err)
	assert.Equal(t, 2, qr.Total)

	require.NoError(t, f.DeregisterSource(ctx, "uspto"))
	_, err = f.Source("uspto")
	assert.True(t, fuserr.IsCode(err, fuserr.CodeSourceNotFound))
}

func TestBuildGraphWithoutSources(t *testing.T) {
	f := newFramework(t)

	_, err := f.BuildGraph(context.Background())
	require.Error(t, err)
	assert.True(t, fuserr.IsCode(err, fuserr.CodeSourceNotFound))
}

func TestBuildGraphFromSelectedSources(t *testing.T) {
	f := newFramework(t)
	ctx := context.Background()

	_, err := f.RegisterSource(ctx, source.Config{
		ID:       "uspto",
		Name:     "Patent uploads",
		Kind:     source.KindFile,
		DataType: agent.DataTypePatents,
	})
	require.NoError(t, err)
	_, err = f.RegisterSource(ctx, source.Config{
		ID:       "trials",
		Name:     "Trial uploads",
		Kind:     source.KindFile,
		DataType: agent.DataTypeClinicalTrials,
	})
	require.NoError(t, err)

	patents := writeFile(t, "patents.csv",
		"patent_number,title,assignee,inventors\n"+
			"US-1,Compound X,Acme Pharma,Jane Roe\n")
	_, err = f.UploadFile(ctx, "uspto", patents)
	require.NoError(t, err)

	trials := writeFile(t, "trials.json",
		`[{"nct_id": "NCT001", "sponsor": "Acme Pharma", "phase": "Phase 2"}]`)
	_, err = f.UploadFile(ctx, "trials", trials)
	require.NoError(t, err)

	g, err := f.BuildGraph(ctx, "uspto")
	require.NoError(t, err)
	assert.NotNil(t, g.Entity("patent_us_1"))
	assert.Nil(t, g.Entity("clinical_trial_nct001"))
	assert.Equal(t, []string{"uspto"}, g.Sources)

	_, err = f.BuildGraph(ctx, "uspto", "no-such-source")
	require.Error(t, err)
	assert.True(t, fuserr.IsCode(err, fuserr.CodeSourceNotFound))
}

func TestRegisterAPISourceRefreshesImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"nct_id": "NCT001", "sponsor": "Acme Pharma", "phase": "Phase 2"}]`))
	}))
	defer srv.Close()

	f := newFramework(t)
	ctx := context.Background()

	src, err := f.RegisterSource(ctx, source.Config{
		ID:              "ctgov",
		Kind:            source.KindAPI,
		Endpoint:        srv.URL,
		DataType:        agent.DataTypeClinicalTrials,
		RefreshInterval: time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, f.WaitForRefresh(ctx, "ctgov", 5*time.Second))
	assert.Equal(t, 1, src.RecordCount())
	assert.Equal(t, source.QualityVerified, src.Quality())
}

func TestRegisterSourcesFromFile(t *testing.T) {
	f := newFramework(t)

	path := writeFile(t, "sources.yaml", `
sources:
  - id: uploads
    name: Patent uploads
    kind: file
    data_type: patents
`)
	require.NoError(t, f.RegisterSourcesFromFile(context.Background(), path))
	assert.Len(t, f.Sources(), 1)
}

func TestRegistryPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx := context.Background()

	f, err := fusion.New(fusion.WithLogger(logger), fusion.WithStorePath(dir))
	require.NoError(t, err)
	require.NoError(t, f.Start(ctx))

	_, err = f.RegisterSource(ctx, source.Config{
		ID:       "uspto",
		Kind:     source.KindFile,
		DataType: agent.DataTypePatents,
	})
	require.NoError(t, err)
	require.NoError(t, f.Shutdown(ctx))

	restarted, err := fusion.New(fusion.WithLogger(logger), fusion.WithStorePath(dir))
	require.NoError(t, err)
	require.NoError(t, restarted.Start(ctx))
	defer restarted.Shutdown(ctx)

	src, err := restarted.Source("uspto")
	require.NoError(t, err)
	assert.Equal(t, agent.DataTypePatents, src.DataType)
}

func TestWatchDirIngestsDroppedFiles(t *testing.T) {
	watchDir := t.TempDir()
	f := newFramework(t, fusion.WithWatchDir(watchDir))
	ctx := context.Background()

	src, err := f.RegisterSource(ctx, source.Config{
		ID:       "uspto",
		Kind:     source.KindFile,
		DataType: agent.DataTypePatents,
	})
	require.NoError(t, err)

	// The file routes to the source whose id matches its base name.
	path := filepath.Join(watchDir, "uspto.csv")
	require.NoError(t, os.WriteFile(path, []byte("patent_number,assignee\nUS-1,Acme Pharma\n"), 0o644))

	require.Eventually(t, func() bool {
		return src.RecordCount() == 1
	}, 5*time.Second, 50*time.Millisecond)
}
