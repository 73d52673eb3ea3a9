package agent

import (
	"context"
	"fmt"

	"github.com/lucidrx/fusion/graph"
	"github.com/lucidrx/fusion/record"
)

// ClinicalTrialAgent extracts clinical trial entities and their sponsor and
// intervention relationships from trial registry records.
//
// Consumed fields: trial_id or nct_id (one required for extraction), title,
// phase, status, sponsor, intervention, condition.
type ClinicalTrialAgent struct{}

// NewClinicalTrialAgent creates the clinical trial extraction agent.
func NewClinicalTrialAgent() *ClinicalTrialAgent {
	return &ClinicalTrialAgent{}
}

// Name returns the agent identifier.
func (a *ClinicalTrialAgent) Name() string { return "trial-extractor" }

// Description returns what the agent does.
func (a *ClinicalTrialAgent) Description() string {
	return "Extracts clinical trial, sponsor, and intervention entities from trial registries"
}

// Capabilities returns the extraction capabilities of the agent.
func (a *ClinicalTrialAgent) Capabilities() []Capability {
	return []Capability{CapabilityTrialExtraction}
}

// DataTypes returns the record domains the agent accepts.
func (a *ClinicalTrialAgent) DataTypes() []DataType {
	return []DataType{DataTypeClinicalTrials}
}

// Extract emits one clinical_trial entity per record keyed by trial
// identifier, a company entity per sponsor with a SPONSORED_BY edge, and an
// intervention entity with a TESTS edge. The closing insight carries the
// phase and status distributions of the batch.
func (a *ClinicalTrialAgent) Extract(ctx context.Context, records []record.Record, sourceID string) (Result, error) {
	result := NewResult()
	phases := make(map[string]int)
	statuses := make(map[string]int)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		trialID := rec.String("trial_id")
		if trialID == "" {
			trialID = rec.String("nct_id")
		}
		if trialID == "" {
			continue
		}

		trial := graph.NewEntity(graph.EntityTypeClinicalTrial, trialID).
			WithProperty("trial_id", trialID).
			WithSource(sourceID)
		for _, field := range []string{"title", "phase", "status", "condition"} {
			if rec.Has(field) {
				trial.WithProperty(field, rec[field])
			}
		}
		result.AddEntity(trial)

		if phase := rec.String("phase"); phase != "" {
			phases[phase]++
		}
		if status := rec.String("status"); status != "" {
			statuses[status]++
		}

		if sponsor := rec.String("sponsor"); sponsor != "" {
			company := graph.NewEntity(graph.EntityTypeCompany, sponsor).
				WithProperty("name", sponsor).
				WithSource(sourceID)
			result.AddEntity(company)
			result.AddRelationship(graph.NewRelationship(trial.ID, company.ID, graph.RelSponsoredBy).
				WithSource(sourceID))
		}

		if intervention := rec.String("intervention"); intervention != "" {
			entity := graph.NewEntity(graph.EntityTypeIntervention, intervention).
				WithProperty("name", intervention).
				WithSource(sourceID)
			result.AddEntity(entity)
			result.AddRelationship(graph.NewRelationship(trial.ID, entity.ID, graph.RelTests).
				WithSource(sourceID))
		}
	}

	result.AddInsight(graph.NewInsight("trial_distribution",
		fmt.Sprintf("Processed %d trial records across %d phases and %d statuses",
			len(records), len(phases), len(statuses))).
		WithMetric("records", len(records)).
		WithMetric("phase_distribution", phases).
		WithMetric("status_distribution", statuses))

	return result, nil
}
