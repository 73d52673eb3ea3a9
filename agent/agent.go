// Package agent provides the extraction agent pool for the fusion core.
//
// Agents are pure functions of their input record batch: they convert
// validated records into candidate entities and relationships without any
// shared mutable state, which lets the integrator invoke them in parallel
// per source. Every agent derives entity identity through graph.EntityID, so
// independent agents converge on the same entity without coordination.
//
// Agents consume canonical field names (patent_number, sponsor, company, ...);
// per-source transformation rules are responsible for mapping raw feed fields
// onto them before extraction.
package agent

import (
	"context"

	"github.com/lucidrx/fusion/record"
)

// DataType categorizes the record domain a source produces.
type DataType string

const (
	// DataTypePatents is patent filing data.
	DataTypePatents DataType = "patents"

	// DataTypeClinicalTrials is clinical trial registry data.
	DataTypeClinicalTrials DataType = "clinical_trials"

	// DataTypeFinancial is company financial data.
	DataTypeFinancial DataType = "financial"

	// DataTypeCompetitiveIntelligence is competitor threat assessment data.
	DataTypeCompetitiveIntelligence DataType = "competitive_intelligence"

	// DataTypeAll is the wildcard: agents declaring it accept every data type.
	DataTypeAll DataType = "all"
)

// String returns the string representation of the data type.
func (t DataType) String() string {
	return string(t)
}

// IsValid checks if the data type is a recognized value.
func (t DataType) IsValid() bool {
	switch t {
	case DataTypePatents, DataTypeClinicalTrials, DataTypeFinancial,
		DataTypeCompetitiveIntelligence, DataTypeAll:
		return true
	default:
		return false
	}
}

// Capability describes an extraction capability an agent provides.
type Capability string

const (
	// CapabilityPatentExtraction extracts patent, inventor, and assignee entities.
	CapabilityPatentExtraction Capability = "patent_extraction"

	// CapabilityTrialExtraction extracts clinical trial, sponsor, and intervention entities.
	CapabilityTrialExtraction Capability = "trial_extraction"

	// CapabilityFinancialEnrichment augments company entities with financial properties.
	CapabilityFinancialEnrichment Capability = "financial_enrichment"

	// CapabilityThreatAssessment augments company entities with competitive threat scores.
	CapabilityThreatAssessment Capability = "threat_assessment"

	// CapabilityEntityResolution reconciles entities across sources by fuzzy name matching.
	CapabilityEntityResolution Capability = "entity_resolution"
)

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// Agent is the interface all extraction agents implement.
//
// Extract must be a pure function of its inputs: no retained state between
// calls, a freshly allocated Result per call, and no mutation of the input
// records. The returned Result is passed by value into the merge step and
// never touched again by the agent.
type Agent interface {
	// Name returns the unique identifier for this agent.
	// This should be a short, kebab-case name (e.g., "patent-extractor").
	Name() string

	// Description returns a human-readable description of what this agent does.
	Description() string

	// Capabilities returns the extraction capabilities this agent provides.
	Capabilities() []Capability

	// DataTypes returns the record domains this agent accepts.
	// DataTypeAll acts as a wildcard accepting every domain.
	DataTypes() []DataType

	// Extract converts a validated record batch from the given source into
	// candidate entities, relationships, and insights.
	Extract(ctx context.Context, records []record.Record, sourceID string) (Result, error)
}

// Accepts reports whether the agent handles the given data type, honoring
// the DataTypeAll wildcard.
func Accepts(a Agent, dt DataType) bool {
	for _, t := range a.DataTypes() {
		if t == dt || t == DataTypeAll {
			return true
		}
	}
	return false
}
