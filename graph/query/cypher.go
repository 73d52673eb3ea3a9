package query

import (
	"fmt"
	"strings"
)

// Cypher renders the query as a parameterized Cypher statement for execution
// against an external Neo4j instance loaded from a cypher export. Values are
// always bound as $pN parameters, never inlined.
func Cypher(q *Query) (string, map[string]any) {
	alias := "e"
	var clauses []string

	label := ""
	if len(q.entityTypes) == 1 {
		label = string(q.entityTypes[0])
	}

	where, params := BuildWhere(q.predicates, alias)

	if q.neighborsOf != "" {
		clauses = append(clauses, BuildTraversal("a", alias, label, q.maxHops))
		if params == nil {
			params = make(map[string]any)
		}
		params["anchor"] = q.neighborsOf
	} else {
		clauses = append(clauses, BuildMatch(label, alias))
	}
	if len(q.entityTypes) > 1 {
		// Multiple labels can't go in one MATCH pattern; filter on the
		// exported type property instead.
		types := make([]string, 0, len(q.entityTypes))
		for _, t := range q.entityTypes {
			types = append(types, string(t))
		}
		if params == nil {
			params = make(map[string]any)
		}
		params["types"] = types
		cond := fmt.Sprintf("%s.type IN $types", alias)
		if where == "" {
			where = "WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}
	if where != "" {
		clauses = append(clauses, where)
	}

	clauses = append(clauses, BuildReturn(alias, nil))
	if q.limit > 0 {
		clauses = append(clauses, fmt.Sprintf("LIMIT %d", q.limit))
	}

	return strings.Join(clauses, " "), params
}

// BuildTraversal generates the undirected variable-length MATCH pattern for
// neighborhood queries, anchored on the entity bound to $anchor. The hop
// bound mirrors the in-memory engine's BFS depth.
func BuildTraversal(anchorAlias, alias, label string, maxHops int) string {
	if maxHops < 1 {
		maxHops = DefaultMaxHops
	}
	target := alias
	if label != "" {
		target = fmt.Sprintf("%s:%s", alias, label)
	}
	return fmt.Sprintf("MATCH (%s {id: $anchor})-[*1..%d]-(%s)", anchorAlias, maxHops, target)
}

// BuildMatch generates a MATCH clause for a node with the given label and
// alias. An empty label matches any node.
func BuildMatch(label string, alias string) string {
	if label == "" {
		return fmt.Sprintf("MATCH (%s)", alias)
	}
	return fmt.Sprintf("MATCH (%s:%s)", alias, label)
}

// BuildWhere generates a WHERE clause from predicates with parameterized
// values. Parameters are named $p0, $p1, etc. to prevent Cypher injection.
// Returns an empty string and nil params when predicates is empty.
func BuildWhere(predicates []Predicate, alias string) (string, map[string]any) {
	if len(predicates) == 0 {
		return "", nil
	}

	params := make(map[string]any)
	conditions := make([]string, 0, len(predicates))
	for i, pred := range predicates {
		paramName := fmt.Sprintf("p%d", i)
		conditions = append(conditions, buildCondition(pred, alias, paramName))
		if pred.Op != IsNull && pred.Op != IsNotNull {
			params[paramName] = pred.Value
		}
	}

	return "WHERE " + strings.Join(conditions, " AND "), params
}

func buildCondition(pred Predicate, alias string, paramName string) string {
	fieldRef := fmt.Sprintf("%s.%s", alias, pred.Field)

	switch pred.Op {
	case Neq:
		return fmt.Sprintf("%s <> $%s", fieldRef, paramName)
	case Lt:
		return fmt.Sprintf("%s < $%s", fieldRef, paramName)
	case Lte:
		return fmt.Sprintf("%s <= $%s", fieldRef, paramName)
	case Gt:
		return fmt.Sprintf("%s > $%s", fieldRef, paramName)
	case Gte:
		return fmt.Sprintf("%s >= $%s", fieldRef, paramName)
	case Contains:
		return fmt.Sprintf("%s CONTAINS $%s", fieldRef, paramName)
	case StartsWith:
		return fmt.Sprintf("%s STARTS WITH $%s", fieldRef, paramName)
	case EndsWith:
		return fmt.Sprintf("%s ENDS WITH $%s", fieldRef, paramName)
	case IsNull:
		return fmt.Sprintf("%s IS NULL", fieldRef)
	case IsNotNull:
		return fmt.Sprintf("%s IS NOT NULL", fieldRef)
	default:
		return fmt.Sprintf("%s = $%s", fieldRef, paramName)
	}
}

// BuildReturn generates a RETURN clause. With no fields the whole node is
// returned; otherwise only the named properties.
func BuildReturn(alias string, fields []string) string {
	if len(fields) == 0 {
		return "RETURN " + alias
	}
	refs := make([]string, 0, len(fields))
	for _, f := range fields {
		refs = append(refs, fmt.Sprintf("%s.%s", alias, f))
	}
	return "RETURN " + strings.Join(refs, ", ")
}
