package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/lucidrx/fusion/graph"
	"github.com/lucidrx/fusion/record"
)

// PatentAgent extracts patent entities and their assignee, inventor, and
// protected-drug relationships from patent records.
//
// Consumed fields: patent_number (required for extraction), title, status,
// filing_date, expiry_date, assignee, inventors (delimited by ";" or ","),
// drug_name.
type PatentAgent struct{}

// NewPatentAgent creates the patent extraction agent.
func NewPatentAgent() *PatentAgent {
	return &PatentAgent{}
}

// Name returns the agent identifier.
func (a *PatentAgent) Name() string { return "patent-extractor" }

// Description returns what the agent does.
func (a *PatentAgent) Description() string {
	return "Extracts patent, assignee, inventor, and protected-drug entities from patent filings"
}

// Capabilities returns the extraction capabilities of the agent.
func (a *PatentAgent) Capabilities() []Capability {
	return []Capability{CapabilityPatentExtraction}
}

// DataTypes returns the record domains the agent accepts.
func (a *PatentAgent) DataTypes() []DataType {
	return []DataType{DataTypePatents}
}

// Extract emits one patent entity per record, a company entity per assignee
// with an ASSIGNED_TO edge, inventor entities with INVENTED_BY edges, and a
// drug entity with a PROTECTS edge when a drug name is present. It closes
// with one insight summarizing the batch.
func (a *PatentAgent) Extract(ctx context.Context, records []record.Record, sourceID string) (Result, error) {
	result := NewResult()
	companies := make(map[string]struct{})
	inventors := make(map[string]struct{})

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		number := rec.String("patent_number")
		if number == "" {
			continue
		}

		patent := graph.NewEntity(graph.EntityTypePatent, number).
			WithProperty("number", number).
			WithSource(sourceID)
		for _, field := range []string{"title", "status", "filing_date", "expiry_date"} {
			if rec.Has(field) {
				patent.WithProperty(field, rec[field])
			}
		}
		result.AddEntity(patent)

		if assignee := rec.String("assignee"); assignee != "" {
			companies[assignee] = struct{}{}
			company := graph.NewEntity(graph.EntityTypeCompany, assignee).
				WithProperty("name", assignee).
				WithSource(sourceID)
			result.AddEntity(company)
			result.AddRelationship(graph.NewRelationship(patent.ID, company.ID, graph.RelAssignedTo).
				WithSource(sourceID))
		}

		for _, name := range splitNames(rec.String("inventors")) {
			inventors[name] = struct{}{}
			inventor := graph.NewEntity(graph.EntityTypeInventor, name).
				WithProperty("name", name).
				WithSource(sourceID)
			result.AddEntity(inventor)
			result.AddRelationship(graph.NewRelationship(patent.ID, inventor.ID, graph.RelInventedBy).
				WithSource(sourceID))
		}

		if drugName := rec.String("drug_name"); drugName != "" {
			drug := graph.NewEntity(graph.EntityTypeDrug, drugName).
				WithProperty("name", drugName).
				WithSource(sourceID)
			result.AddEntity(drug)
			result.AddRelationship(graph.NewRelationship(patent.ID, drug.ID, graph.RelProtects).
				WithSource(sourceID))
		}
	}

	result.AddInsight(graph.NewInsight("patent_landscape",
		fmt.Sprintf("Processed %d patent records covering %d companies and %d inventors",
			len(records), len(companies), len(inventors))).
		WithMetric("records", len(records)).
		WithMetric("distinct_companies", len(companies)).
		WithMetric("distinct_inventors", len(inventors)))

	return result, nil
}

// splitNames splits a delimited name list on semicolons or commas and trims
// the parts. Empty parts are dropped.
func splitNames(raw string) []string {
	if raw == "" {
		return nil
	}
	sep := ","
	if strings.Contains(raw, ";") {
		sep = ";"
	}
	var names []string
	for _, part := range strings.Split(raw, sep) {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
