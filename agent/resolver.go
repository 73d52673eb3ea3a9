package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/lucidrx/fusion/graph"
	"github.com/lucidrx/fusion/record"
)

// DefaultResolverThreshold is the Jaro-Winkler similarity above which two
// same-type entities are considered the same real-world entity.
const DefaultResolverThreshold = 0.93

// ResolverAgent reconciles entities across sources. Exact name matches
// already converge through normalization, so the resolver targets near
// matches ("Pfizer Inc" vs "Pfizer Incorporated"): it compares normalized
// names of same-type entities with Jaro-Winkler similarity and emits SAME_AS
// edges between pairs above the threshold.
//
// The resolver runs during the integrator's cross-source pass over the
// accumulated graph rather than per record batch, so its Extract method
// returns an empty result.
type ResolverAgent struct {
	threshold float64
}

// NewResolverAgent creates the entity resolver with the default threshold.
func NewResolverAgent() *ResolverAgent {
	return &ResolverAgent{threshold: DefaultResolverThreshold}
}

// WithThreshold overrides the similarity threshold and returns the agent
// for chaining. Values outside (0, 1] are ignored.
func (a *ResolverAgent) WithThreshold(t float64) *ResolverAgent {
	if t > 0 && t <= 1 {
		a.threshold = t
	}
	return a
}

// Name returns the agent identifier.
func (a *ResolverAgent) Name() string { return "entity-resolver" }

// Description returns what the agent does.
func (a *ResolverAgent) Description() string {
	return "Reconciles near-duplicate entities across sources by fuzzy name matching"
}

// Capabilities returns the extraction capabilities of the agent.
func (a *ResolverAgent) Capabilities() []Capability {
	return []Capability{CapabilityEntityResolution}
}

// DataTypes returns the wildcard: resolution applies to every domain.
func (a *ResolverAgent) DataTypes() []DataType {
	return []DataType{DataTypeAll}
}

// Extract returns an empty result: the resolver operates on the accumulated
// graph via Resolve, not on per-source record batches.
func (a *ResolverAgent) Extract(ctx context.Context, records []record.Record, sourceID string) (Result, error) {
	return NewResult(), nil
}

// Resolve compares same-type entities pairwise and emits SAME_AS edges for
// pairs whose normalized names score at or above the threshold. The returned
// result also carries one resolution insight.
func (a *ResolverAgent) Resolve(ctx context.Context, entities []*graph.Entity) (Result, error) {
	result := NewResult()

	byType := make(map[graph.EntityType][]*graph.Entity)
	for _, e := range entities {
		byType[e.Type] = append(byType[e.Type], e)
	}

	matched := 0
	var compared int
	for _, group := range byType {
		// Deterministic pair ordering regardless of map iteration.
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })

		for i := 0; i < len(group); i++ {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			for j := i + 1; j < len(group); j++ {
				compared++
				left, right := group[i], group[j]
				score := smetrics.JaroWinkler(comparableName(left), comparableName(right), 0.7, 4)
				if score < a.threshold {
					continue
				}
				matched++
				result.AddRelationship(graph.NewRelationship(left.ID, right.ID, graph.RelSameAs).
					WithProperty("confidence", score).
					WithProperty("method", "jaro_winkler"))
			}
		}
	}

	result.AddInsight(graph.NewInsight("entity_resolution",
		fmt.Sprintf("Compared %d entity pairs, linked %d as same entity", compared, matched)).
		WithMetric("pairs_compared", compared).
		WithMetric("pairs_linked", matched).
		WithMetric("threshold", a.threshold))

	return result, nil
}

// comparableName yields the string the similarity metric runs over:
// the normalized name with separators restored to spaces.
func comparableName(e *graph.Entity) string {
	return strings.ReplaceAll(graph.Normalize(e.Name), "_", " ")
}
