// Package event defines the lifecycle events the fusion core emits and the
// buses that deliver them to in-process subscribers or a Redis channel.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies an event kind.
type Type string

const (
	// TypeSourceRegistered fires when a data source is registered.
	TypeSourceRegistered Type = "source_registered"

	// TypeDataRefreshed fires after a successful source refresh or upload.
	TypeDataRefreshed Type = "data_refreshed"

	// TypeGraphConstructionStarted fires when a graph build begins.
	TypeGraphConstructionStarted Type = "graph_construction_started"

	// TypeGraphConstructionCompleted fires when a graph build finalizes.
	TypeGraphConstructionCompleted Type = "graph_construction_completed"
)

// String returns the string representation of the event type.
func (t Type) String() string {
	return string(t)
}

// Event is one lifecycle notification. Payload fields are flat so events
// serialize cleanly to JSON for the Redis bus.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type is the event kind.
	Type Type `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// SourceID is the related data source, if any.
	SourceID string `json:"source_id,omitempty"`

	// GraphID is the related knowledge graph, if any.
	GraphID string `json:"graph_id,omitempty"`

	// RecordCount is the accepted record count for refresh events.
	RecordCount int `json:"record_count,omitempty"`

	// EntityCount is the entity count for completed build events.
	EntityCount int `json:"entity_count,omitempty"`

	// RelationshipCount is the edge count for completed build events.
	RelationshipCount int `json:"relationship_count,omitempty"`
}

// New creates an event of the given type with a fresh id and the current
// timestamp.
func New(t Type) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// DataRefreshed builds the event emitted after a successful refresh.
func DataRefreshed(sourceID string, recordCount int) Event {
	e := New(TypeDataRefreshed)
	e.SourceID = sourceID
	e.RecordCount = recordCount
	return e
}

// GraphConstructionStarted builds the event emitted when a build begins.
func GraphConstructionStarted(graphID string) Event {
	e := New(TypeGraphConstructionStarted)
	e.GraphID = graphID
	return e
}

// GraphConstructionCompleted builds the event emitted when a build finalizes.
func GraphConstructionCompleted(graphID string, entityCount, relationshipCount int) Event {
	e := New(TypeGraphConstructionCompleted)
	e.GraphID = graphID
	e.EntityCount = entityCount
	e.RelationshipCount = relationshipCount
	return e
}

// SourceRegistered builds the event emitted when a source is registered.
func SourceRegistered(sourceID string) Event {
	e := New(TypeSourceRegistered)
	e.SourceID = sourceID
	return e
}
