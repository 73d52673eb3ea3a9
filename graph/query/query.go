package query

import (
	"fmt"

	"github.com/lucidrx/fusion/graph"
)

// DefaultMaxHops bounds neighbor expansion when none is requested.
const DefaultMaxHops = 1

// Query describes a selection over a knowledge graph. The zero value matches
// every entity; With* methods narrow it and return the query for chaining.
type Query struct {
	entityTypes []graph.EntityType
	predicates  []Predicate
	neighborsOf string
	maxHops     int
	limit       int
}

// New creates an empty query matching all entities.
func New() *Query {
	return &Query{maxHops: DefaultMaxHops}
}

// WithEntityTypes restricts results to entities of the given types.
func (q *Query) WithEntityTypes(types ...graph.EntityType) *Query {
	q.entityTypes = append(q.entityTypes, types...)
	return q
}

// WithPredicates adds property filter conditions. All predicates must hold
// for an entity to match.
func (q *Query) WithPredicates(preds ...Predicate) *Query {
	q.predicates = append(q.predicates, preds...)
	return q
}

// WithNeighborsOf restricts results to the neighborhood of the given entity
// id, reachable within MaxHops edges in either direction.
func (q *Query) WithNeighborsOf(entityID string) *Query {
	q.neighborsOf = entityID
	return q
}

// WithMaxHops bounds the neighborhood expansion depth. Only meaningful
// together with WithNeighborsOf.
func (q *Query) WithMaxHops(hops int) *Query {
	q.maxHops = hops
	return q
}

// WithLimit caps the number of returned entities. Zero means unlimited.
func (q *Query) WithLimit(n int) *Query {
	q.limit = n
	return q
}

// Validate checks the query for structural errors before evaluation.
func (q *Query) Validate() error {
	for _, t := range q.entityTypes {
		if t == "" {
			return fmt.Errorf("entity type cannot be empty")
		}
	}
	for _, p := range q.predicates {
		if p.Field == "" {
			return fmt.Errorf("predicate field cannot be empty")
		}
		if p.Value == nil && p.Op != IsNull && p.Op != IsNotNull {
			return fmt.Errorf("predicate on %q requires a value for op %s", p.Field, p.Op)
		}
	}
	if q.maxHops < 0 {
		return fmt.Errorf("max hops cannot be negative")
	}
	if q.limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	return nil
}
