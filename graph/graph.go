package graph

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a knowledge graph build.
type Status string

const (
	// StatusBuilding indicates the graph is being constructed and must not
	// be exposed to queries.
	StatusBuilding Status = "building"

	// StatusCompleted indicates the build finished and the graph is immutable.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the build terminated with an unrecoverable error
	// (snapshot persistence failure).
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is a recognized value.
func (s Status) IsValid() bool {
	switch s {
	case StatusBuilding, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// MergeStrategy controls how entity properties combine when the same entity
// id arrives from multiple agents or sources.
type MergeStrategy string

const (
	// MergeOverwrite applies last-write-wins by processing order: later
	// values overwrite same-named keys. This is the default contract.
	MergeOverwrite MergeStrategy = "overwrite"

	// MergeKeepFirst keeps the first value seen for each key and ignores
	// later writes.
	MergeKeepFirst MergeStrategy = "keep_first"
)

// IsValid checks if the merge strategy is a recognized value.
func (s MergeStrategy) IsValid() bool {
	return s == MergeOverwrite || s == MergeKeepFirst
}

// Metadata carries derived counts and bookkeeping for a graph snapshot.
type Metadata struct {
	EntityCount       int       `json:"entity_count"`
	RelationshipCount int       `json:"relationship_count"`
	InsightCount      int       `json:"insight_count"`
	LastUpdated       time.Time `json:"last_updated"`

	// DegradedSources lists source ids whose contribution was partially
	// skipped because an agent failed. Callers inspect this to judge trust.
	DegradedSources []string `json:"degraded_sources,omitempty"`
}

// KnowledgeGraph is the fused, typed graph produced by one build invocation.
//
// The integrator exclusively owns mutation while Status is StatusBuilding;
// all writes go through the Merge* methods, which serialize behind a single
// mutex, so agents running in parallel can hand results to one merge point
// safely. After Finalize the graph is treated as immutable; a new build
// produces a new graph id.
type KnowledgeGraph struct {
	// ID uniquely identifies this build.
	ID string `json:"id"`

	// CreatedAt is when the build started.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is when the build finalized. Zero while building.
	CompletedAt time.Time `json:"completed_at,omitzero"`

	// Status is the build lifecycle state.
	Status Status `json:"status"`

	// Sources lists the data source ids that contributed to this build.
	Sources []string `json:"sources"`

	// Entities maps entity id to entity.
	Entities map[string]*Entity `json:"entities"`

	// Relationships maps relationship id to relationship.
	Relationships map[string]*Relationship `json:"relationships"`

	// Insights is the append-only audit trail of derived statistics.
	Insights []Insight `json:"insights"`

	// Metadata carries derived counts, computed at finalize.
	Metadata Metadata `json:"metadata"`

	strategy MergeStrategy
	mu       sync.Mutex
}

// New creates an empty knowledge graph in the building state with a fresh id
// and the default overwrite merge strategy.
func New() *KnowledgeGraph {
	return &KnowledgeGraph{
		ID:            "graph_" + uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		Status:        StatusBuilding,
		Entities:      make(map[string]*Entity),
		Relationships: make(map[string]*Relationship),
		strategy:      MergeOverwrite,
	}
}

// WithMergeStrategy sets the property merge strategy and returns the graph
// for chaining. Calling this after merging has started is not supported.
func (g *KnowledgeGraph) WithMergeStrategy(s MergeStrategy) *KnowledgeGraph {
	if s.IsValid() {
		g.strategy = s
	}
	return g
}

// AddSource records a contributing data source id on the graph.
func (g *KnowledgeGraph) AddSource(sourceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.Sources {
		if s == sourceID {
			return
		}
	}
	g.Sources = append(g.Sources, sourceID)
}

// MergeEntity merges an entity into the graph.
//
// If the id is not present, a deep copy of the entity is inserted. If it is
// present, properties combine per the graph's merge strategy (overwrite:
// later values win; keep-first: existing values win) and the entity's source
// set is extended. Merging the same entity twice leaves counts unchanged.
func (g *KnowledgeGraph) MergeEntity(e *Entity) {
	if e == nil || e.ID == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.Entities[e.ID]
	if !ok {
		g.Entities[e.ID] = e.Clone()
		return
	}

	for k, v := range e.Properties {
		if g.strategy == MergeKeepFirst {
			if _, present := existing.Properties[k]; present {
				continue
			}
		}
		if existing.Properties == nil {
			existing.Properties = make(map[string]any)
		}
		existing.Properties[k] = v
	}
	for _, src := range e.Sources {
		existing.AddSource(src)
	}
}

// MergeRelationship merges an edge into the graph.
//
// Insertion is idempotent by id: if the edge already exists, only its source
// set is extended. Properties are never overwritten because edges are
// structurally stable once created.
func (g *KnowledgeGraph) MergeRelationship(r *Relationship) {
	if r == nil || r.ID == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.Relationships[r.ID]
	if !ok {
		g.Relationships[r.ID] = r.Clone()
		return
	}
	for _, src := range r.Sources {
		existing.AddSource(src)
	}
}

// AppendInsight appends an insight tagged with the contributing source and
// agent. Insights are never deduplicated.
func (g *KnowledgeGraph) AppendInsight(in Insight) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Insights = append(g.Insights, in)
}

// MarkDegraded records that a source's contribution was partially skipped.
func (g *KnowledgeGraph) MarkDegraded(sourceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.Metadata.DegradedSources {
		if s == sourceID {
			return
		}
	}
	g.Metadata.DegradedSources = append(g.Metadata.DegradedSources, sourceID)
}

// Finalize computes metadata counts from map sizes and moves the graph to
// the completed state. The graph is immutable afterward.
func (g *KnowledgeGraph) Finalize() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now().UTC()
	g.Metadata.EntityCount = len(g.Entities)
	g.Metadata.RelationshipCount = len(g.Relationships)
	g.Metadata.InsightCount = len(g.Insights)
	g.Metadata.LastUpdated = now
	g.CompletedAt = now
	g.Status = StatusCompleted
}

// MarkFailed moves the graph to the failed state. Used when snapshot
// persistence fails at the end of a build.
func (g *KnowledgeGraph) MarkFailed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Status = StatusFailed
	g.Metadata.LastUpdated = time.Now().UTC()
}

// Entity returns the entity with the given id, or nil.
func (g *KnowledgeGraph) Entity(id string) *Entity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Entities[id]
}

// EntitiesOfType returns all entities with the given type.
func (g *KnowledgeGraph) EntitiesOfType(t EntityType) []*Entity {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*Entity
	for _, e := range g.Entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks structural integrity: every relationship endpoint must
// reference an entity present in the graph.
func (g *KnowledgeGraph) Validate() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, r := range g.Relationships {
		if _, ok := g.Entities[r.Source]; !ok {
			return fmt.Errorf("relationship %s references missing source entity %s", id, r.Source)
		}
		if _, ok := g.Entities[r.Target]; !ok {
			return fmt.Errorf("relationship %s references missing target entity %s", id, r.Target)
		}
	}
	return nil
}
