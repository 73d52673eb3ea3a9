package graph

import "strings"

// Normalize canonicalizes an entity name for identity derivation.
//
// The normalization lowercases the name, replaces every run of characters
// outside [a-z0-9] with a single underscore, and trims leading and trailing
// underscores. Every agent must apply this identical function so that two
// agents independently extracting "Pfizer Inc." and "pfizer inc" converge on
// the same entity id without coordination.
//
// Example:
//
//	Normalize("Pfizer Inc.") // "pfizer_inc"
//	Normalize("ACME PHARMA") // "acme_pharma"
func Normalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(lower))
	pendingSep := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// EntityID derives the deterministic entity id for a type and raw name.
// Format: {type}_{normalizedName}. The id is a pure function of its inputs,
// so independent extraction passes converge on the same identity without a
// shared clock or lock.
func EntityID(entityType EntityType, name string) string {
	return string(entityType) + "_" + Normalize(name)
}

// RelationshipID derives the deterministic relationship id for a source and
// target entity id. Format: rel_{sourceEntityID}_{targetEntityID}. Duplicate
// extraction of the same edge therefore merges idempotently.
func RelationshipID(sourceID, targetID string) string {
	return "rel_" + sourceID + "_" + targetID
}
