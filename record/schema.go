package record

import (
	"strconv"
	"strings"
	"time"
)

// FieldType is the expected type of a schema field.
type FieldType string

const (
	// TypeString accepts any scalar, stringifying non-strings.
	TypeString FieldType = "string"

	// TypeNumber requires a value coercible to float64.
	TypeNumber FieldType = "number"

	// TypeDate requires a value parseable as a date (RFC 3339, 2006-01-02,
	// or 01/02/2006).
	TypeDate FieldType = "date"

	// TypeBool requires a boolean or "true"/"false" string.
	TypeBool FieldType = "bool"
)

// IsValid checks if the field type is a recognized value.
func (t FieldType) IsValid() bool {
	switch t {
	case TypeString, TypeNumber, TypeDate, TypeBool:
		return true
	default:
		return false
	}
}

// FieldSpec describes one field of a source schema.
type FieldSpec struct {
	// Type is the expected field type.
	Type FieldType `json:"type" yaml:"type"`

	// Required marks the field as mandatory: records missing it are dropped.
	Required bool `json:"required" yaml:"required"`
}

// Schema maps field names to their specifications.
type Schema map[string]FieldSpec

// ValidationResult reports the outcome of a validation pass.
type ValidationResult struct {
	// Accepted is the number of records that passed validation.
	Accepted int

	// Rejected is the number of records dropped. Dropped records are not
	// retried: downstream graph quality is prioritized over completeness.
	Rejected int
}

// Validate checks records against the schema, coercing typed fields in
// place and silently excluding any record that misses a required field or
// fails coercion. Surviving records are annotated with provenance under
// ProvenanceKey.
func Validate(records []Record, schema Schema, sourceID string) ([]Record, ValidationResult) {
	now := time.Now().UTC()
	accepted := make([]Record, 0, len(records))
	var result ValidationResult

	for _, rec := range records {
		if !conforms(rec, schema) {
			result.Rejected++
			continue
		}
		rec[ProvenanceKey] = Provenance{SourceID: sourceID, IngestedAt: now}
		accepted = append(accepted, rec)
		result.Accepted++
	}
	return accepted, result
}

// conforms checks a single record against the schema and coerces typed
// values in place. It returns false on the first violation.
func conforms(rec Record, schema Schema) bool {
	for field, spec := range schema {
		v, present := rec[field]
		if !present || v == nil || v == "" {
			if spec.Required {
				return false
			}
			continue
		}

		coerced, ok := coerce(v, spec.Type)
		if !ok {
			return false
		}
		rec[field] = coerced
	}
	return true
}

func coerce(v any, t FieldType) (any, bool) {
	switch t {
	case TypeString, "":
		return v, true
	case TypeNumber:
		return coerceNumber(v)
	case TypeDate:
		return coerceDate(v)
	case TypeBool:
		return coerceBool(v)
	default:
		return v, true
	}
}

func coerceNumber(v any) (any, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", ""), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

// dateLayouts are the accepted input layouts, tried in order.
var dateLayouts = []string{time.RFC3339, "2006-01-02", "01/02/2006"}

func coerceDate(v any) (any, bool) {
	s, ok := v.(string)
	if !ok {
		if t, isTime := v.(time.Time); isTime {
			return t, true
		}
		return nil, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return nil, false
}

func coerceBool(v any) (any, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return nil, false
		}
		return parsed, true
	default:
		return nil, false
	}
}
