package agent

import "github.com/lucidrx/fusion/graph"

// Result is the isolated output of one agent run over one source's records.
//
// Results are never mutated after being returned: the integrator deep-copies
// entities and relationships on merge, so parallel agent execution cannot
// race on shared structures.
type Result struct {
	// Entities maps entity id to the extracted entity.
	Entities map[string]*graph.Entity

	// Relationships maps relationship id to the extracted edge.
	Relationships map[string]*graph.Relationship

	// Insights is the list of derived statistics for this run.
	Insights []graph.Insight
}

// NewResult creates an empty result with initialized maps.
func NewResult() Result {
	return Result{
		Entities:      make(map[string]*graph.Entity),
		Relationships: make(map[string]*graph.Relationship),
	}
}

// AddEntity inserts or merges an entity within the result. When the id is
// already present, non-nil properties extend the existing entity
// (last-write-wins inside a single batch) and the returned pointer is the
// retained instance.
func (r *Result) AddEntity(e *graph.Entity) *graph.Entity {
	if e == nil || e.ID == "" {
		return e
	}
	existing, ok := r.Entities[e.ID]
	if !ok {
		r.Entities[e.ID] = e
		return e
	}
	for k, v := range e.Properties {
		existing.Properties[k] = v
	}
	for _, src := range e.Sources {
		existing.AddSource(src)
	}
	return existing
}

// AddRelationship inserts an edge into the result, idempotently by id.
func (r *Result) AddRelationship(rel *graph.Relationship) {
	if rel == nil || rel.ID == "" {
		return
	}
	if existing, ok := r.Relationships[rel.ID]; ok {
		for _, src := range rel.Sources {
			existing.AddSource(src)
		}
		return
	}
	r.Relationships[rel.ID] = rel
}

// AddInsight appends an insight to the result.
func (r *Result) AddInsight(in graph.Insight) {
	r.Insights = append(r.Insights, in)
}

// Empty reports whether the result carries no entities, relationships, or insights.
func (r Result) Empty() bool {
	return len(r.Entities) == 0 && len(r.Relationships) == 0 && len(r.Insights) == 0
}
