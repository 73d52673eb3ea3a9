package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidrx/fusion/graph"
)

func TestMergeEntityIdempotent(t *testing.T) {
	g := graph.New()

	e := graph.NewEntity(graph.EntityTypeCompany, "Acme Pharma").
		WithProperty("ticker", "ACME").
		WithSource("sec")

	g.MergeEntity(e)
	g.MergeEntity(e)
	g.MergeEntity(e)

	require.Len(t, g.Entities, 1)
	got := g.Entity("company_acme_pharma")
	require.NotNil(t, got)
	assert.Equal(t, "ACME", got.Properties["ticker"])
	assert.Equal(t, []string{"sec"}, got.Sources)
}

func TestMergeEntityExtendsSources(t *testing.T) {
	g := graph.New()

	g.MergeEntity(graph.NewEntity(graph.EntityTypeCompany, "Acme Pharma").WithSource("patents"))
	g.MergeEntity(graph.NewEntity(graph.EntityTypeCompany, "ACME PHARMA").WithSource("trials"))

	require.Len(t, g.Entities, 1)
	got := g.Entity("company_acme_pharma")
	require.NotNil(t, got)
	assert.Equal(t, []string{"patents", "trials"}, got.Sources)
}

func TestMergeEntityStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy graph.MergeStrategy
		expected string
	}{
		{
			name:     "overwrite takes later value",
			strategy: graph.MergeOverwrite,
			expected: "second",
		},
		{
			name:     "keep_first takes earlier value",
			strategy: graph.MergeKeepFirst,
			expected: "first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph.New().WithMergeStrategy(tt.strategy)
			g.MergeEntity(graph.NewEntity(graph.EntityTypeDrug, "humira").WithProperty("status", "first"))
			g.MergeEntity(graph.NewEntity(graph.EntityTypeDrug, "humira").WithProperty("status", "second"))

			got := g.Entity("drug_humira")
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, got.Properties["status"])
		})
	}
}

func TestMergeEntityDeepCopies(t *testing.T) {
	g := graph.New()
	e := graph.NewEntity(graph.EntityTypeCompany, "Acme").WithProperty("ticker", "ACME")
	g.MergeEntity(e)

	// Mutating the caller's entity must not reach the graph.
	e.Properties["ticker"] = "MUTATED"
	assert.Equal(t, "ACME", g.Entity("company_acme").Properties["ticker"])
}

func TestMergeRelationshipIdempotent(t *testing.T) {
	g := graph.New()
	g.MergeEntity(graph.NewEntity(graph.EntityTypePatent, "US-1"))
	g.MergeEntity(graph.NewEntity(graph.EntityTypeCompany, "Acme"))

	r := graph.NewRelationship("patent_us_1", "company_acme", graph.RelAssignedTo).WithSource("patents")
	g.MergeRelationship(r)
	g.MergeRelationship(r)
	g.MergeRelationship(graph.NewRelationship("patent_us_1", "company_acme", graph.RelAssignedTo).WithSource("filings"))

	require.Len(t, g.Relationships, 1)
	got := g.Relationships["rel_patent_us_1_company_acme"]
	require.NotNil(t, got)
	assert.Equal(t, []string{"filings", "patents"}, got.Sources)
}

func TestFinalize(t *testing.T) {
	g := graph.New()
	assert.Equal(t, graph.StatusBuilding, g.Status)

	g.MergeEntity(graph.NewEntity(graph.EntityTypeCompany, "Acme"))
	g.MergeEntity(graph.NewEntity(graph.EntityTypeDrug, "humira"))
	g.AppendInsight(graph.NewInsight("test", "one insight"))
	g.Finalize()

	assert.Equal(t, graph.StatusCompleted, g.Status)
	assert.Equal(t, 2, g.Metadata.EntityCount)
	assert.Equal(t, 0, g.Metadata.RelationshipCount)
	assert.Equal(t, 1, g.Metadata.InsightCount)
	assert.False(t, g.CompletedAt.IsZero())
	assert.False(t, g.Metadata.LastUpdated.IsZero())
}

func TestMarkDegradedDeduplicates(t *testing.T) {
	g := graph.New()
	g.MarkDegraded("ct1")
	g.MarkDegraded("ct1")
	g.MarkDegraded("sec")
	assert.Equal(t, []string{"ct1", "sec"}, g.Metadata.DegradedSources)
}

func TestValidate(t *testing.T) {
	g := graph.New()
	g.MergeEntity(graph.NewEntity(graph.EntityTypePatent, "US-1"))
	g.MergeEntity(graph.NewEntity(graph.EntityTypeCompany, "Acme"))
	g.MergeRelationship(graph.NewRelationship("patent_us_1", "company_acme", graph.RelAssignedTo))
	assert.NoError(t, g.Validate())

	g.MergeRelationship(graph.NewRelationship("patent_us_1", "company_ghost", graph.RelAssignedTo))
	assert.Error(t, g.Validate())
}

func TestEntitiesOfType(t *testing.T) {
	g := graph.New()
	g.MergeEntity(graph.NewEntity(graph.EntityTypeCompany, "Acme"))
	g.MergeEntity(graph.NewEntity(graph.EntityTypeCompany, "Nova"))
	g.MergeEntity(graph.NewEntity(graph.EntityTypeDrug, "humira"))

	assert.Len(t, g.EntitiesOfType(graph.EntityTypeCompany), 2)
	assert.Len(t, g.EntitiesOfType(graph.EntityTypeDrug), 1)
	assert.Empty(t, g.EntitiesOfType(graph.EntityTypeInventor))
}
