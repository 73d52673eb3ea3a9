package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lucidrx/fusion/fuserr"
)

// ExportFormat identifies a serialization format for knowledge graphs.
type ExportFormat string

const (
	// ExportJSON serializes the full graph document.
	ExportJSON ExportFormat = "json"

	// ExportCypher emits Neo4j CREATE/MERGE statements.
	ExportCypher ExportFormat = "cypher"

	// ExportGraphlib emits a node-link document consumable by javascript
	// graph visualization libraries.
	ExportGraphlib ExportFormat = "graphlib"
)

// IsValid reports whether f is a known export format.
func (f ExportFormat) IsValid() bool {
	return f == ExportJSON || f == ExportCypher || f == ExportGraphlib
}

// Export serializes the graph in the requested format.
func Export(g *KnowledgeGraph, format ExportFormat) ([]byte, error) {
	if g == nil {
		return nil, fuserr.New("", "graph.Export", fuserr.CodeExportFailed, "nil graph")
	}
	switch format {
	case ExportJSON:
		return exportJSON(g)
	case ExportCypher:
		return exportCypher(g)
	case ExportGraphlib:
		return exportGraphlib(g)
	default:
		return nil, fuserr.New(g.ID, "graph.Export", fuserr.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported export format %q", format))
	}
}

func exportJSON(g *KnowledgeGraph) ([]byte, error) {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, fuserr.New(g.ID, "graph.Export", fuserr.CodeExportFailed,
			"json serialization failed").WithCause(err)
	}
	return data, nil
}

// exportCypher renders the graph as a deterministic statement script. Node
// statements come first so relationship MATCH clauses always resolve.
func exportCypher(g *KnowledgeGraph) ([]byte, error) {
	var buf bytes.Buffer

	for _, id := range sortedEntityIDs(g) {
		e := g.Entities[id]
		props := map[string]any{"id": e.ID, "name": e.Name}
		for k, v := range e.Properties {
			props[k] = v
		}
		fmt.Fprintf(&buf, "CREATE (:%s %s);\n", cypherLabel(string(e.Type)), cypherProps(props))
	}

	relIDs := make([]string, 0, len(g.Relationships))
	for id := range g.Relationships {
		relIDs = append(relIDs, id)
	}
	sort.Strings(relIDs)
	for _, id := range relIDs {
		r := g.Relationships[id]
		fmt.Fprintf(&buf,
			"MATCH (a {id: %s}), (b {id: %s}) MERGE (a)-[:%s %s]->(b);\n",
			cypherString(r.Source), cypherString(r.Target),
			cypherLabel(string(r.Type)), cypherProps(r.Properties))
	}

	return buf.Bytes(), nil
}

// graphlibDoc is the node-link shape d3 and similar libraries consume.
type graphlibDoc struct {
	Directed bool            `json:"directed"`
	Graph    map[string]any  `json:"graph"`
	Nodes    []graphlibNode  `json:"nodes"`
	Links    []graphlibLink  `json:"links"`
}

type graphlibNode struct {
	ID         string         `json:"id"`
	Type       EntityType     `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

type graphlibLink struct {
	Source     string           `json:"source"`
	Target     string           `json:"target"`
	Type       RelationshipType `json:"type"`
	Properties map[string]any   `json:"properties,omitempty"`
}

func exportGraphlib(g *KnowledgeGraph) ([]byte, error) {
	doc := graphlibDoc{
		Directed: true,
		Graph: map[string]any{
			"id":     g.ID,
			"status": g.Status,
		},
		Nodes: make([]graphlibNode, 0, len(g.Entities)),
		Links: make([]graphlibLink, 0, len(g.Relationships)),
	}

	for _, id := range sortedEntityIDs(g) {
		e := g.Entities[id]
		doc.Nodes = append(doc.Nodes, graphlibNode{
			ID: e.ID, Type: e.Type, Name: e.Name, Properties: e.Properties,
		})
	}

	relIDs := make([]string, 0, len(g.Relationships))
	for id := range g.Relationships {
		relIDs = append(relIDs, id)
	}
	sort.Strings(relIDs)
	for _, id := range relIDs {
		r := g.Relationships[id]
		doc.Links = append(doc.Links, graphlibLink{
			Source: r.Source, Target: r.Target, Type: r.Type, Properties: r.Properties,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fuserr.New(g.ID, "graph.Export", fuserr.CodeExportFailed,
			"graphlib serialization failed").WithCause(err)
	}
	return data, nil
}

func sortedEntityIDs(g *KnowledgeGraph) []string {
	ids := make([]string, 0, len(g.Entities))
	for id := range g.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// cypherLabel sanitizes a type name into a Neo4j label or relationship type.
func cypherLabel(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// cypherProps renders a property map as a Cypher literal with sorted keys.
func cypherProps(props map[string]any) string {
	if len(props) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(cypherLabel(k))
		b.WriteString(": ")
		b.WriteString(cypherValue(props[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func cypherValue(v any) string {
	switch t := v.(type) {
	case string:
		return cypherString(t)
	case float64, float32, int, int64, int32, bool:
		return fmt.Sprintf("%v", t)
	case nil:
		return "null"
	default:
		return cypherString(fmt.Sprintf("%v", t))
	}
}

func cypherString(s string) string {
	return "'" + strings.ReplaceAll(strings.ReplaceAll(s, "\\", "\\\\"), "'", "\\'") + "'"
}
