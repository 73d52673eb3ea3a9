package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lucidrx/fusion/fuserr"
	"github.com/lucidrx/fusion/graph"
)

// Result holds the entities matched by a query plus evaluation metadata.
type Result struct {
	// GraphID identifies the graph the query ran against.
	GraphID string `json:"graph_id"`

	// Entities are the matches, sorted by id for determinism.
	Entities []*graph.Entity `json:"entities"`

	// Relationships are the edges connecting two matched entities, sorted
	// by id.
	Relationships []*graph.Relationship `json:"relationships,omitempty"`

	// Total is the match count before the limit was applied.
	Total int `json:"total"`

	// Truncated reports whether a limit cut the result set.
	Truncated bool `json:"truncated"`

	// Elapsed is the in-memory evaluation time.
	Elapsed time.Duration `json:"elapsed"`
}

// Engine evaluates queries in memory against completed knowledge graphs.
type Engine struct{}

// NewEngine creates a query engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs the query against the graph. Only completed graphs are
// queryable: a building or failed graph is an inconsistent snapshot.
// Returned entities are clones, so callers may mutate them freely.
func (e *Engine) Evaluate(ctx context.Context, g *graph.KnowledgeGraph, q *Query) (*Result, error) {
	if g == nil {
		return nil, fuserr.New("", "query.Evaluate", fuserr.CodeGraphNotFound, "nil graph")
	}
	if g.Status != graph.StatusCompleted {
		return nil, fuserr.New(g.ID, "query.Evaluate", fuserr.CodeValidationFailed,
			fmt.Sprintf("graph is %s, only completed graphs can be queried", g.Status))
	}
	if err := q.Validate(); err != nil {
		return nil, fuserr.New(g.ID, "query.Evaluate", fuserr.CodeValidationFailed,
			"invalid query").WithCause(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	var scope map[string]bool
	if q.neighborsOf != "" {
		if g.Entity(q.neighborsOf) == nil {
			return nil, fuserr.New(g.ID, "query.Evaluate", fuserr.CodeValidationFailed,
				fmt.Sprintf("neighborhood anchor %q not in graph", q.neighborsOf))
		}
		scope = neighborhood(g, q.neighborsOf, q.maxHops)
	}

	var matched []*graph.Entity
	for _, ent := range g.Entities {
		if scope != nil && !scope[ent.ID] {
			continue
		}
		if !matchesType(ent, q.entityTypes) {
			continue
		}
		if !matchesPredicates(ent, q.predicates) {
			continue
		}
		matched = append(matched, ent.Clone())
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	res := &Result{GraphID: g.ID, Total: len(matched)}
	if q.limit > 0 && len(matched) > q.limit {
		matched = matched[:q.limit]
		res.Truncated = true
	}
	res.Entities = matched
	res.Relationships = connecting(g, matched)
	res.Elapsed = time.Since(start)
	return res, nil
}

// connecting returns clones of the edges whose endpoints are both among the
// returned entities.
func connecting(g *graph.KnowledgeGraph, entities []*graph.Entity) []*graph.Relationship {
	in := make(map[string]bool, len(entities))
	for _, ent := range entities {
		in[ent.ID] = true
	}
	var rels []*graph.Relationship
	for _, r := range g.Relationships {
		if in[r.Source] && in[r.Target] {
			rels = append(rels, r.Clone())
		}
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].ID < rels[j].ID })
	return rels
}

// neighborhood returns the set of entity ids reachable from anchor within
// maxHops edges. Edges are walked in both directions: a company is in a
// patent's neighborhood regardless of which way ASSIGNED_TO points. The
// anchor itself is included (hop zero).
func neighborhood(g *graph.KnowledgeGraph, anchor string, maxHops int) map[string]bool {
	adjacency := make(map[string][]string)
	for _, r := range g.Relationships {
		adjacency[r.Source] = append(adjacency[r.Source], r.Target)
		adjacency[r.Target] = append(adjacency[r.Target], r.Source)
	}

	visited := map[string]bool{anchor: true}
	frontier := []string{anchor}
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, nb := range adjacency[id] {
				if !visited[nb] {
					visited[nb] = true
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}
	return visited
}

func matchesType(e *graph.Entity, types []graph.EntityType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if e.Type == t {
			return true
		}
	}
	return false
}

func matchesPredicates(e *graph.Entity, preds []Predicate) bool {
	for _, p := range preds {
		if !matchPredicate(e, p) {
			return false
		}
	}
	return true
}

func matchPredicate(e *graph.Entity, p Predicate) bool {
	val, ok := fieldValue(e, p.Field)

	switch p.Op {
	case IsNull:
		return !ok
	case IsNotNull:
		return ok
	}
	if !ok {
		return false
	}

	switch p.Op {
	case Eq:
		return compareEq(val, p.Value)
	case Neq:
		return !compareEq(val, p.Value)
	case Lt, Lte, Gt, Gte:
		a, aok := toFloat(val)
		b, bok := toFloat(p.Value)
		if !aok || !bok {
			return false
		}
		switch p.Op {
		case Lt:
			return a < b
		case Lte:
			return a <= b
		case Gt:
			return a > b
		default:
			return a >= b
		}
	case Contains:
		return strings.Contains(asString(val), asString(p.Value))
	case StartsWith:
		return strings.HasPrefix(asString(val), asString(p.Value))
	case EndsWith:
		return strings.HasSuffix(asString(val), asString(p.Value))
	default:
		return false
	}
}

// fieldValue resolves a predicate field against the entity. The names "id",
// "name" and "type" address identity fields; everything else is a property.
func fieldValue(e *graph.Entity, field string) (any, bool) {
	switch field {
	case "id":
		return e.ID, true
	case "name":
		return e.Name, true
	case "type":
		return string(e.Type), true
	}
	v, ok := e.Properties[field]
	return v, ok
}

// compareEq compares numerically when both sides are numbers, so a JSON
// float64 matches an int literal in a predicate.
func compareEq(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	}
	return 0, false
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
