package graph

import (
	"errors"
	"slices"
	"sort"
)

// EntityType categorizes a node in the knowledge graph.
type EntityType string

// Canonical entity types produced by the built-in extraction agents.
const (
	EntityTypePatent        EntityType = "patent"
	EntityTypeCompany       EntityType = "company"
	EntityTypeDrug          EntityType = "drug"
	EntityTypeClinicalTrial EntityType = "clinical_trial"
	EntityTypeInventor      EntityType = "inventor"
	EntityTypeIntervention  EntityType = "intervention"
)

// String returns the string representation of the entity type.
func (t EntityType) String() string {
	return string(t)
}

// IsValid checks if the entity type is one of the canonical values.
// Custom entity types are permitted in the graph; this only identifies
// the built-in set.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypePatent, EntityTypeCompany, EntityTypeDrug,
		EntityTypeClinicalTrial, EntityTypeInventor, EntityTypeIntervention:
		return true
	default:
		return false
	}
}

// Entity is a typed, uniquely-identified node in the knowledge graph.
//
// The ID is a deterministic function of Type and the normalized entity name
// (see EntityID), which makes entity identity stable across agents, sources,
// and builds. Properties may be overwritten or extended when entities from
// multiple sources merge; Sources accumulates the ids of every data source
// that contributed to the entity.
type Entity struct {
	// ID is the deterministic entity identifier: {type}_{normalizedName}.
	ID string `json:"id"`

	// Type is the entity type (e.g., "company", "patent").
	Type EntityType `json:"type"`

	// Name is the display name the id was derived from.
	Name string `json:"name"`

	// Properties contains arbitrary key-value properties for the entity.
	Properties map[string]any `json:"properties,omitempty"`

	// Sources is the deduplicated, sorted set of data source ids that
	// contributed to this entity.
	Sources []string `json:"sources,omitempty"`
}

// NewEntity creates an entity of the given type and name with its
// deterministic id and an initialized Properties map.
func NewEntity(entityType EntityType, name string) *Entity {
	return &Entity{
		ID:         EntityID(entityType, name),
		Type:       entityType,
		Name:       name,
		Properties: make(map[string]any),
	}
}

// WithProperty sets a single property and returns the entity for chaining.
func (e *Entity) WithProperty(key string, value any) *Entity {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[key] = value
	return e
}

// WithSource records a contributing data source id and returns the entity
// for chaining. The Sources set stays deduplicated and sorted.
func (e *Entity) WithSource(sourceID string) *Entity {
	e.AddSource(sourceID)
	return e
}

// AddSource records a contributing data source id. Adding an id that is
// already present is a no-op; Sources is a set, not a multiset.
func (e *Entity) AddSource(sourceID string) {
	if sourceID == "" || slices.Contains(e.Sources, sourceID) {
		return
	}
	e.Sources = append(e.Sources, sourceID)
	sort.Strings(e.Sources)
}

// Clone returns a deep copy of the entity. Agents return freshly allocated
// results and the integrator merges copies, so no agent output is ever
// mutated after being returned.
func (e *Entity) Clone() *Entity {
	clone := &Entity{
		ID:      e.ID,
		Type:    e.Type,
		Name:    e.Name,
		Sources: slices.Clone(e.Sources),
	}
	if e.Properties != nil {
		clone.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			clone.Properties[k] = v
		}
	}
	return clone
}

// Validate checks that the entity has its required fields set.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return errors.New("entity id is required")
	}
	if e.Type == "" {
		return errors.New("entity type is required")
	}
	return nil
}
