// Package record provides parsing, schema validation, and transformation of
// raw source data into field-to-value records ready for extraction agents.
//
// The pipeline runs in declaration order: Parse turns CSV or JSON bytes into
// records, Validate drops records that fail a per-source schema and annotates
// survivors with provenance, and Transform applies rename/format/derive rules.
// Derived fields are computed by a sandboxed CEL expression evaluator, never
// by host-language code execution.
package record

import "time"

// ProvenanceKey is the reserved record field carrying ingestion provenance.
// It is set during validation and must not collide with source field names.
const ProvenanceKey = "_provenance"

// Record is a mapping of source field names to typed values. Records are
// ephemeral: they exist only during a processing pass and are never mutated
// after being handed to an extraction agent.
type Record map[string]any

// Provenance annotates a validated record with its origin.
type Provenance struct {
	// SourceID is the data source the record was ingested from.
	SourceID string `json:"source_id"`

	// IngestedAt is when the record passed validation.
	IngestedAt time.Time `json:"ingested_at"`
}

// String returns the string value of a field, or "" when absent or not a string.
func (r Record) String(field string) string {
	if v, ok := r[field].(string); ok {
		return v
	}
	return ""
}

// Float returns the numeric value of a field, or 0 when absent or not numeric.
func (r Record) Float(field string) float64 {
	switch v := r[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Has reports whether the field is present with a non-nil value.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// Provenance returns the record's provenance annotation, if set.
func (r Record) Provenance() (Provenance, bool) {
	p, ok := r[ProvenanceKey].(Provenance)
	return p, ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
