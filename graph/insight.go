package graph

import "time"

// Insight is a derived, non-authoritative summary statistic attached to a
// graph build. Insights form an audit trail: they are strictly appended,
// tagged with the contributing source and agent, and never deduplicated.
type Insight struct {
	// Type categorizes the insight (e.g., "patent_landscape", "trial_distribution").
	Type string `json:"type"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// Metrics contains the computed values backing the description.
	Metrics map[string]any `json:"metrics,omitempty"`

	// Source is the data source id the insight was derived from. Empty for
	// cross-source insights produced by the integration pass.
	Source string `json:"source,omitempty"`

	// Agent is the name of the agent that produced the insight.
	Agent string `json:"agent"`

	// Timestamp records when the insight was produced.
	Timestamp time.Time `json:"timestamp"`
}

// NewInsight creates an insight of the given type with the current timestamp.
func NewInsight(insightType, description string) Insight {
	return Insight{
		Type:        insightType,
		Description: description,
		Metrics:     make(map[string]any),
		Timestamp:   time.Now().UTC(),
	}
}

// WithMetric sets a metric value and returns the insight for chaining.
func (i Insight) WithMetric(key string, value any) Insight {
	if i.Metrics == nil {
		i.Metrics = make(map[string]any)
	}
	i.Metrics[key] = value
	return i
}
