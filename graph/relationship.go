package graph

import (
	"fmt"
	"slices"
	"sort"
)

// RelationshipType describes a typed, directed edge between two entities.
type RelationshipType string

// Canonical relationship types produced by the built-in extraction agents.
const (
	RelAssignedTo  RelationshipType = "ASSIGNED_TO"
	RelInventedBy  RelationshipType = "INVENTED_BY"
	RelProtects    RelationshipType = "PROTECTS"
	RelSponsoredBy RelationshipType = "SPONSORED_BY"
	RelTests       RelationshipType = "TESTS"
	RelSameAs      RelationshipType = "SAME_AS"
)

// String returns the string representation of the relationship type.
func (t RelationshipType) String() string {
	return string(t)
}

// Relationship is a typed, directed edge between two entities.
//
// The ID is a deterministic function of the endpoint ids (see RelationshipID),
// making edge insertion idempotent: extracting the same edge twice merges into
// one relationship. Edges are treated as structurally stable once created:
// merging never overwrites properties, it only extends the Sources set.
type Relationship struct {
	// ID is the deterministic edge identifier: rel_{source}_{target}.
	ID string `json:"id"`

	// Source is the id of the entity the edge starts from.
	Source string `json:"source"`

	// Target is the id of the entity the edge points to.
	Target string `json:"target"`

	// Type describes the relationship (e.g., "ASSIGNED_TO", "SPONSORED_BY").
	Type RelationshipType `json:"type"`

	// Properties contains optional edge metadata.
	Properties map[string]any `json:"properties,omitempty"`

	// Sources is the deduplicated, sorted set of data source ids that
	// contributed this edge.
	Sources []string `json:"sources,omitempty"`
}

// NewRelationship creates an edge between two entity ids with its
// deterministic id.
func NewRelationship(sourceID, targetID string, relType RelationshipType) *Relationship {
	return &Relationship{
		ID:         RelationshipID(sourceID, targetID),
		Source:     sourceID,
		Target:     targetID,
		Type:       relType,
		Properties: make(map[string]any),
	}
}

// WithProperty sets a single property and returns the relationship for chaining.
func (r *Relationship) WithProperty(key string, value any) *Relationship {
	if r.Properties == nil {
		r.Properties = make(map[string]any)
	}
	r.Properties[key] = value
	return r
}

// WithSource records a contributing data source id and returns the
// relationship for chaining.
func (r *Relationship) WithSource(sourceID string) *Relationship {
	r.AddSource(sourceID)
	return r
}

// AddSource records a contributing data source id. Sources is a set; adding
// a present id is a no-op.
func (r *Relationship) AddSource(sourceID string) {
	if sourceID == "" || slices.Contains(r.Sources, sourceID) {
		return
	}
	r.Sources = append(r.Sources, sourceID)
	sort.Strings(r.Sources)
}

// Clone returns a deep copy of the relationship.
func (r *Relationship) Clone() *Relationship {
	clone := &Relationship{
		ID:      r.ID,
		Source:  r.Source,
		Target:  r.Target,
		Type:    r.Type,
		Sources: slices.Clone(r.Sources),
	}
	if r.Properties != nil {
		clone.Properties = make(map[string]any, len(r.Properties))
		for k, v := range r.Properties {
			clone.Properties[k] = v
		}
	}
	return clone
}

// Validate checks that the relationship has all required fields populated.
func (r *Relationship) Validate() error {
	if r.Source == "" {
		return fmt.Errorf("relationship source cannot be empty")
	}
	if r.Target == "" {
		return fmt.Errorf("relationship target cannot be empty")
	}
	if r.Type == "" {
		return fmt.Errorf("relationship type cannot be empty")
	}
	return nil
}
