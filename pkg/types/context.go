package types

// MemoryContext is the assembled memory view handed to the conversational
// layer before composing a reply.
//
// Recent is ordered by recency (newest first); Relevant is ordered by
// effective importance (highest first). Both contain only non-expired,
// unconsolidated micro-memories. Degraded lists the tiers whose reads
// failed; a missing tier never blocks context assembly.
type MemoryContext struct {
	Facts       []*PersistentFact `json:"facts,omitempty"`
	Recent      []ScoredMemory    `json:"recent,omitempty"`
	Relevant    []ScoredMemory    `json:"relevant,omitempty"`
	LatestSuper *SuperMemory      `json:"latest_super,omitempty"`
	Degraded    []string          `json:"degraded,omitempty"`
}

// FactStats summarizes the persistent-fact tier.
type FactStats struct {
	Total      int                  `json:"total"`
	ByCategory map[FactCategory]int `json:"by_category,omitempty"`
}

// MicroStats summarizes the micro-memory tier.
type MicroStats struct {
	Total          int `json:"total"`
	Consolidated   int `json:"consolidated"`
	Unconsolidated int `json:"unconsolidated"`
}

// SuperStats summarizes the super-memory tier.
type SuperStats struct {
	Total int `json:"total"`
}

// Stats reports derived, read-only counts per memory tier.
type Stats struct {
	Facts FactStats  `json:"facts"`
	Micro MicroStats `json:"micro"`
	Super SuperStats `json:"super"`
}
