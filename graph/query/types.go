// Package query provides a type-safe query builder for knowledge graphs.
// Queries can be evaluated in memory against a graph snapshot or rendered
// as parameterized Cypher for execution against an external graph database.
package query

import (
	"fmt"
)

// Op represents a comparison or filter operation in a query predicate.
type Op int

const (
	// Eq represents equality comparison (=)
	Eq Op = iota
	// Neq represents inequality comparison (<>)
	Neq
	// Lt represents less than comparison (<)
	Lt
	// Lte represents less than or equal comparison (<=)
	Lte
	// Gt represents greater than comparison (>)
	Gt
	// Gte represents greater than or equal comparison (>=)
	Gte
	// Contains represents string containment check (CONTAINS)
	Contains
	// StartsWith represents string prefix check (STARTS WITH)
	StartsWith
	// EndsWith represents string suffix check (ENDS WITH)
	EndsWith
	// IsNull represents null check (IS NULL)
	IsNull
	// IsNotNull represents non-null check (IS NOT NULL)
	IsNotNull
)

// String returns the string representation of the operation for debugging.
func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Neq:
		return "<>"
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Gt:
		return ">"
	case Gte:
		return ">="
	case Contains:
		return "CONTAINS"
	case StartsWith:
		return "STARTS WITH"
	case EndsWith:
		return "ENDS WITH"
	case IsNull:
		return "IS NULL"
	case IsNotNull:
		return "IS NOT NULL"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Predicate represents a filter condition on an entity property.
// The reserved field names "id" and "name" address the entity's identity
// fields; anything else addresses the Properties map.
type Predicate struct {
	// Field is the property name to filter on
	Field string
	// Op is the comparison operation to perform
	Op Op
	// Value is the comparison value (may be nil for IsNull/IsNotNull)
	Value any
}
