package agent

import (
	"context"
	"fmt"

	"github.com/lucidrx/fusion/graph"
	"github.com/lucidrx/fusion/record"
)

// CompetitiveAgent augments company entities with competitive threat
// assessments.
//
// Consumed fields: company (required for extraction), threat_score (number),
// threat_level (low/medium/high; derived from threat_score when absent).
type CompetitiveAgent struct{}

// NewCompetitiveAgent creates the competitive intelligence agent.
func NewCompetitiveAgent() *CompetitiveAgent {
	return &CompetitiveAgent{}
}

// Name returns the agent identifier.
func (a *CompetitiveAgent) Name() string { return "competitive-assessor" }

// Description returns what the agent does.
func (a *CompetitiveAgent) Description() string {
	return "Augments company entities with competitive threat scores and levels"
}

// Capabilities returns the extraction capabilities of the agent.
func (a *CompetitiveAgent) Capabilities() []Capability {
	return []Capability{CapabilityThreatAssessment}
}

// DataTypes returns the record domains the agent accepts.
func (a *CompetitiveAgent) DataTypes() []DataType {
	return []DataType{DataTypeCompetitiveIntelligence}
}

// Extract emits company entities carrying threat properties and one insight
// with the distribution of threat levels over the batch.
func (a *CompetitiveAgent) Extract(ctx context.Context, records []record.Record, sourceID string) (Result, error) {
	result := NewResult()
	levels := make(map[string]int)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		name := rec.String("company")
		if name == "" {
			continue
		}

		company := graph.NewEntity(graph.EntityTypeCompany, name).
			WithProperty("name", name).
			WithSource(sourceID)

		level := rec.String("threat_level")
		if rec.Has("threat_score") {
			score := rec.Float("threat_score")
			company.WithProperty("threat_score", score)
			if level == "" {
				level = threatLevel(score)
			}
		}
		if level != "" {
			company.WithProperty("threat_level", level)
			levels[level]++
		}
		result.AddEntity(company)
	}

	result.AddInsight(graph.NewInsight("threat_distribution",
		fmt.Sprintf("Assessed %d competitor records across %d threat levels", len(records), len(levels))).
		WithMetric("records", len(records)).
		WithMetric("level_distribution", levels))

	return result, nil
}

// threatLevel buckets a 0-100 threat score into a categorical level.
func threatLevel(score float64) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}
