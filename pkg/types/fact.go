// Package types defines the persisted record shapes for the Evermem
// tiered memory system. These structs are the serialization contract
// for the storage backends: persistent facts, micro-memories, and
// super-memories.
package types

import "time"

// FactCategory classifies a persistent fact.
type FactCategory string

const (
	CategoryIdentity      FactCategory = "identity"
	CategoryRelationships FactCategory = "relationships"
	CategoryStatus        FactCategory = "status"
	CategoryValues        FactCategory = "values"
	CategoryPreferences   FactCategory = "preferences"
)

// ValidCategories lists every recognized fact category.
var ValidCategories = []FactCategory{
	CategoryIdentity,
	CategoryRelationships,
	CategoryStatus,
	CategoryValues,
	CategoryPreferences,
}

// IsValid reports whether c is a recognized fact category.
func (c FactCategory) IsValid() bool {
	for _, v := range ValidCategories {
		if c == v {
			return true
		}
	}
	return false
}

// FactSource records where a fact came from, so provenance is auditable.
type FactSource string

const (
	SourceConversation FactSource = "conversation"
	SourceOnboarding   FactSource = "onboarding"
	SourceUserDirect   FactSource = "user-direct"
)

// PersistentFact is a durable fact about the user. Facts never decay and
// are never silently deleted; a new write to the same (category, key)
// overwrites value, source, and updated_at while preserving the
// category/key identity and the original created_at.
type PersistentFact struct {
	Category  FactCategory `json:"category"`
	Key       string       `json:"key"`
	Value     interface{}  `json:"value"`
	Source    FactSource   `json:"source"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
