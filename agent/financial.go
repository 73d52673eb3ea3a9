package agent

import (
	"context"
	"fmt"

	"github.com/lucidrx/fusion/graph"
	"github.com/lucidrx/fusion/record"
)

// FinancialAgent augments company entities with financial properties. It
// produces no relationships: its value is enrichment of entities other
// agents also emit, converging on the same ids through name normalization.
//
// Consumed fields: company (required for extraction), market_cap, revenue,
// margin, ticker.
type FinancialAgent struct{}

// NewFinancialAgent creates the financial enrichment agent.
func NewFinancialAgent() *FinancialAgent {
	return &FinancialAgent{}
}

// Name returns the agent identifier.
func (a *FinancialAgent) Name() string { return "financial-enricher" }

// Description returns what the agent does.
func (a *FinancialAgent) Description() string {
	return "Augments company entities with market cap, revenue, and margin data"
}

// Capabilities returns the extraction capabilities of the agent.
func (a *FinancialAgent) Capabilities() []Capability {
	return []Capability{CapabilityFinancialEnrichment}
}

// DataTypes returns the record domains the agent accepts.
func (a *FinancialAgent) DataTypes() []DataType {
	return []DataType{DataTypeFinancial}
}

// Extract emits company entities carrying financial properties and one
// insight aggregating total market cap and mean margin over the batch.
func (a *FinancialAgent) Extract(ctx context.Context, records []record.Record, sourceID string) (Result, error) {
	result := NewResult()
	var totalMarketCap float64
	var marginSum float64
	var marginCount int

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
		if rec.Has("market_cap") {
			cap := rec.Float("market_cap")
			company.WithProperty("market_cap", cap)
			totalMarketCap += cap
		}
		if rec.Has("revenue") {
			company.WithProperty("revenue", rec.Float("revenue"))
		}
		if rec.Has("margin") {
			margin := rec.Float("margin")
			company.WithProperty("margin", margin)
			marginSum += margin
			marginCount++
		}
		if ticker := rec.String("ticker"); ticker != "" {
			company.WithProperty("ticker", ticker)
		}
		result.AddEntity(company)
	}

	meanMargin := 0.0
	if marginCount > 0 {
		meanMargin = marginSum / float64(marginCount)
	}

	result.AddInsight(graph.NewInsight("financial_summary",
		fmt.Sprintf("Aggregated financials for %d records: total market cap %.0f, mean margin %.2f",
			len(records), totalMarketCap, meanMargin)).
		WithMetric("records", len(records)).
		WithMetric("total_market_cap", totalMarketCap).
		WithMetric("mean_margin", meanMargin))

	return result, nil
}
