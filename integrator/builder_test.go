package integrator_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidrx/fusion/agent"
	"github.com/lucidrx/fusion/event"
	"github.com/lucidrx/fusion/fuserr"
	"github.com/lucidrx/fusion/graph"
	"github.com/lucidrx/fusion/integrator"
	"github.com/lucidrx/fusion/record"
	"github.com/lucidrx/fusion/source"
	"github.com/lucidrx/fusion/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// loadSource registers a file source and installs records by uploading a
// document for it.
func loadSource(t *testing.T, reg *source.Registry, sched *source.Scheduler, cfg source.Config, filename, body string) *source.DataSource {
	t.Helper()
	src, err := reg.Register(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), filename)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	_, err = sched.Upload(context.Background(), cfg.ID, path)
	require.NoError(t, err)
	return src
}

func fixtureSources(t *testing.T) (*source.DataSource, *source.DataSource) {
	t.Helper()
	reg := source.NewRegistry()
	sched := source.NewScheduler(reg, source.NewFetcher(nil, time.Second), event.NopBus{}, testLogger())

	patents := loadSource(t, reg, sched, source.Config{
		ID:       "uspto",
		Kind:     source.KindFile,
		DataType: agent.DataTypePatents,
	}, "patents.csv",
		"patent_number,title,assignee,inventors\n"+
			"US-1,Compound X,Acme Pharma,Jane Roe\n"+
			"US-2,Compound Y,Acme Pharma,John Doe\n")

	trials := loadSource(t, reg, sched, source.Config{
		ID:       "ctgov",
		Kind:     source.KindFile,
		DataType: agent.DataTypeClinicalTrials,
	}, "trials.json",
		`[{"nct_id": "NCT001", "title": "Compound X in adults", "sponsor": "ACME PHARMA", "phase": "Phase 2"}]`)

	return patents, trials
}

func TestBuildFusesSourcesIntoOneGraph(t *testing.T) {
	patents, trials := fixtureSources(t)

	b := integrator.NewBuilder(agent.NewPool(), integrator.WithLogger(testLogger()))
	g, err := b.Build(context.Background(), patents, trials)
	require.NoError(t, err)

	assert.Equal(t, graph.StatusCompleted, g.Status)
	assert.Equal(t, []string{"ctgov", "uspto"}, g.Sources)
	assert.Empty(t, g.Metadata.DegradedSources)

	// "Acme Pharma" and "ACME PHARMA" converge onto one company node
	// corroborated by both sources.
	acme := g.Entity("company_acme_pharma")
	require.NotNil(t, acme)
	assert.ElementsMatch(t, []string{"ctgov", "uspto"}, acme.Sources)

	require.NotNil(t, g.Entity("patent_us_1"))
	require.NotNil(t, g.Entity("clinical_trial_nct001"))

	assignment := g.Relationships[graph.RelationshipID("patent_us_1", "company_acme_pharma")]
	require.NotNil(t, assignment)
	assert.Equal(t, graph.RelAssignedTo, assignment.Type)

	sponsorship := g.Relationships[graph.RelationshipID("clinical_trial_nct001", "company_acme_pharma")]
	require.NotNil(t, sponsorship)
	assert.Equal(t, graph.RelSponsoredBy, sponsorship.Type)

	assert.Equal(t, len(g.Entities), g.Metadata.EntityCount)
	assert.Equal(t, len(g.Relationships), g.Metadata.RelationshipCount)
}

func TestBuildReportsCrossSourceConvergence(t *testing.T) {
	patents, trials := fixtureSources(t)

	b := integrator.NewBuilder(agent.NewPool(), integrator.WithLogger(testLogger()))
	g, err := b.Build(context.Background(), patents, trials)
	require.NoError(t, err)

	var convergence *graph.Insight
	for i := range g.Insights {
		if g.Insights[i].Type == "cross_source_convergence" {
			convergence = &g.Insights[i]
		}
	}
	require.NotNil(t, convergence)
	assert.Equal(t, 1, convergence.Metrics["cross_referenced"])
}

func TestBuildSkipsEmptySource(t *testing.T) {
	reg := source.NewRegistry()
	empty, err := reg.Register(source.Config{
		ID:       "empty",
		Kind:     source.KindFile,
		DataType: agent.DataTypePatents,
	})
	require.NoError(t, err)

	b := integrator.NewBuilder(agent.NewPool(), integrator.WithLogger(testLogger()))
	g, err := b.Build(context.Background(), empty)
	require.NoError(t, err)

	assert.Equal(t, graph.StatusCompleted, g.Status)
	assert.Empty(t, g.Sources)
	assert.Empty(t, g.Entities)
}

func TestBuildPublishesLifecycleEvents(t *testing.T) {
	patents, _ := fixtureSources(t)

	bus := event.NewMemoryBus()
	sub := bus.Subscribe()

	b := integrator.NewBuilder(agent.NewPool(),
		integrator.WithBus(bus), integrator.WithLogger(testLogger()))
	g, err := b.Build(context.Background(), patents)
	require.NoError(t, err)

	started := <-sub
	assert.Equal(t, event.TypeGraphConstructionStarted, started.Type)
	assert.Equal(t, g.ID, started.GraphID)

	completed := <-sub
	assert.Equal(t, event.TypeGraphConstructionCompleted, completed.Type)
	assert.Equal(t, g.Metadata.EntityCount, completed.EntityCount)
	assert.Equal(t, g.Metadata.RelationshipCount, completed.RelationshipCount)
}

func TestBuildPersistsSnapshot(t *testing.T) {
	patents, trials := fixtureSources(t)

	s, err := store.Open("", testLogger())
	require.NoError(t, err)
	defer s.Close()

	b := integrator.NewBuilder(agent.NewPool(),
		integrator.WithSnapshotter(s), integrator.WithLogger(testLogger()))
	g, err := b.Build(context.Background(), patents, trials)
	require.NoError(t, err)

	stored, err := s.GetGraph(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Metadata.EntityCount, stored.Metadata.EntityCount)
}

// failingSnapshotter rejects every write.
type failingSnapshotter struct{}

func (failingSnapshotter) PutGraph(ctx context.Context, g *graph.KnowledgeGraph) error {
	return errors.New("disk full")
}

func TestBuildSnapshotFailureMarksGraphFailed(t *testing.T) {
	patents, _ := fixtureSources(t)

	b := integrator.NewBuilder(agent.NewPool(),
		integrator.WithSnapshotter(failingSnapshotter{}), integrator.WithLogger(testLogger()))
	g, err := b.Build(context.Background(), patents)
	require.Error(t, err)
	assert.True(t, fuserr.IsCode(err, fuserr.CodePersistenceFailed))
	assert.Equal(t, graph.StatusFailed, g.Status)
}

func TestBuildParallelMatchesSequential(t *testing.T) {
	patents, trials := fixtureSources(t)

	seq := integrator.NewBuilder(agent.NewPool(), integrator.WithLogger(testLogger()))
	par := integrator.NewBuilder(agent.NewPool(),
		integrator.WithParallelism(4), integrator.WithLogger(testLogger()))

	gs, err := seq.Build(context.Background(), patents, trials)
	require.NoError(t, err)
	gp, err := par.Build(context.Background(), patents, trials)
	require.NoError(t, err)

	assert.Equal(t, gs.Metadata.EntityCount, gp.Metadata.EntityCount)
	assert.Equal(t, gs.Metadata.RelationshipCount, gp.Metadata.RelationshipCount)
	for id := range gs.Entities {
		assert.Contains(t, gp.Entities, id)
	}
}

// faultyAgent accepts patent records and fails every extraction.
type faultyAgent struct{}

func (faultyAgent) Name() string                     { return "faulty-extractor" }
func (faultyAgent) Description() string              { return "fails every batch" }
func (faultyAgent) Capabilities() []agent.Capability { return nil }
func (faultyAgent) DataTypes() []agent.DataType {
	return []agent.DataType{agent.DataTypePatents}
}

func (faultyAgent) Extract(ctx context.Context, records []record.Record, sourceID string) (agent.Result, error) {
	return agent.Result{}, errors.New("extractor crashed")
}

func TestBuildFailingAgentKeepsOtherContributions(t *testing.T) {
	patents, _ := fixtureSources(t)

	pool := agent.NewPoolWith(agent.NewPatentAgent(), faultyAgent{})
	b := integrator.NewBuilder(pool, integrator.WithLogger(testLogger()))
	g, err := b.Build(context.Background(), patents)
	require.NoError(t, err)

	// One agent failing degrades the source but the patent agent's
	// contribution still lands and the build completes.
	assert.Equal(t, graph.StatusCompleted, g.Status)
	assert.Equal(t, []string{"uspto"}, g.Metadata.DegradedSources)
	assert.NotNil(t, g.Entity("patent_us_1"))
	assert.NotNil(t, g.Entity("patent_us_2"))
	assert.NotNil(t, g.Entity("company_acme_pharma"))
}

func TestBuildMergesSponsorCaseVariantsIntoOneCompany(t *testing.T) {
	reg := source.NewRegistry()
	sched := source.NewScheduler(reg, source.NewFetcher(nil, time.Second), event.NopBus{}, testLogger())
	trials := loadSource(t, reg, sched, source.Config{
		ID:       "ctgov",
		Kind:     source.KindFile,
		DataType: agent.DataTypeClinicalTrials,
	}, "trials.json",
		`[{"nct_id": "NCT001", "sponsor": "Acme Pharma", "phase": "Phase 2"},
		  {"nct_id": "NCT002", "sponsor": "ACME PHARMA", "phase": "Phase 3"}]`)

	b := integrator.NewBuilder(agent.NewPool(), integrator.WithLogger(testLogger()))
	g, err := b.Build(context.Background(), trials)
	require.NoError(t, err)

	companies := 0
	for _, e := range g.Entities {
		if e.Type == graph.EntityTypeCompany {
			companies++
		}
	}
	assert.Equal(t, 1, companies)
	require.NotNil(t, g.Entity("company_acme_pharma"))

	// Both trials sponsor the same normalized company node.
	for _, nct := range []string{"nct001", "nct002"} {
		rel := g.Relationships[graph.RelationshipID("clinical_trial_"+nct, "company_acme_pharma")]
		require.NotNil(t, rel, nct)
		assert.Equal(t, graph.RelSponsoredBy, rel.Type)
	}
}

func TestBuildCancelledContextDegradesSources(t *testing.T) {
	patents, _ := fixtureSources(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := integrator.NewBuilder(agent.NewPool(), integrator.WithLogger(testLogger()))
	g, err := b.Build(ctx, patents)
	require.NoError(t, err)

	// Agents refuse the cancelled context, costing the source its
	// contribution but not the build.
	assert.Equal(t, graph.StatusCompleted, g.Status)
	assert.Contains(t, g.Metadata.DegradedSources, "uspto")
}
