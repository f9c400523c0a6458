package graph

import (
	"regexp"
	"strings"
	"time"
)

// EntryStatus tracks the extraction lifecycle of a raw memory entry.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusRunning   EntryStatus = "running"
	EntryStatusSucceeded EntryStatus = "succeeded"
	EntryStatusFailed    EntryStatus = "failed"
)

// ContentFormat describes the format of an entry's textual payload.
type ContentFormat string

const (
	FormatText     ContentFormat = "text"
	FormatMarkdown ContentFormat = "markdown"
	FormatHTML     ContentFormat = "html"
)

// Entry is a raw user submission awaiting (or having undergone) extraction.
// Entries are owned by the ingestion service; only the dispatcher advances
// their status.
type Entry struct {
	ID          string        `json:"id"`
	Text        string        `json:"text"`
	Format      ContentFormat `json:"format"`
	CreatedAt   time.Time     `json:"created_at"`
	Status      EntryStatus   `json:"status"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	Degraded    bool          `json:"degraded,omitempty"`
}

// EntityKind labels a node in the graph. The set is open; these are the kinds
// the extraction prompt and the local heuristic understand.
type EntityKind string

const (
	KindEntry        EntityKind = "ENTRY"
	KindPerson       EntityKind = "PERSON"
	KindLocation     EntityKind = "LOCATION"
	KindOrganization EntityKind = "ORGANIZATION"
	KindObject       EntityKind = "OBJECT"
	KindEvent        EntityKind = "EVENT"
	KindConcept      EntityKind = "CONCEPT"
)

// KnownKinds lists the kinds providers may emit, in prompt order.
var KnownKinds = []EntityKind{
	KindPerson, KindLocation, KindOrganization, KindObject, KindEvent, KindConcept,
}

// Entity is a node in the property graph. Identity is (Kind, NormalizedName):
// two mentions of the same normalized name and kind resolve to one Entity.
type Entity struct {
	ID             string     `json:"id"`
	Kind           EntityKind `json:"kind"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Summary        string     `json:"summary,omitempty"`
	SourceEntryIDs []string   `json:"source_entry_ids,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Relation is a directed typed edge between two entities. The
// (SourceID, TargetID, Kind) triple is unique; re-extracting the same fact is
// a merge, never a duplicate edge.
type Relation struct {
	SourceID      string  `json:"source_id"`
	TargetID      string  `json:"target_id"`
	Kind          string  `json:"kind"`
	Confidence    float64 `json:"confidence,omitempty"`
	SourceEntryID string  `json:"source_entry_id,omitempty"`
}

// EntityCandidate is an unresolved entity proposed by a provider. Candidates
// carry names, not IDs; the resolver assigns identity.
type EntityCandidate struct {
	Name       string
	Kind       EntityKind
	Summary    string
	Confidence float64
}

// RelationCandidate references endpoints either by candidate name or by an
// already-persisted ID (the source entry).
type RelationCandidate struct {
	Source     string
	Target     string
	Kind       string
	Confidence float64
}

// ExtractionResult is the transient output of one extraction run. It is
// consumed exactly once by the resolver and never persisted.
type ExtractionResult struct {
	Entities  []EntityCandidate
	Relations []RelationCandidate
	Provider  string
	Latency   time.Duration
	Truncated bool
	Degraded  bool
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeName canonicalizes an entity name for identity comparison.
func NormalizeName(name string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), " ")
}

var relationKindRe = regexp.MustCompile(`^[A-Z0-9_]+$`)

// NormalizeRelationKind upper-snake-cases a relation kind and reports whether
// the result is a legal relationship type. Relation kinds end up interpolated
// into Cypher, so anything outside [A-Z0-9_] is rejected.
func NormalizeRelationKind(kind string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(kind))
	normalized = whitespaceRe.ReplaceAllString(normalized, "_")
	return normalized, relationKindRe.MatchString(normalized)
}

// KindFromString maps a provider-emitted label onto an EntityKind, defaulting
// to CONCEPT for anything unrecognized so no candidate is silently dropped.
func KindFromString(s string) EntityKind {
	switch EntityKind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindPerson:
		return KindPerson
	case KindLocation:
		return KindLocation
	case KindOrganization:
		return KindOrganization
	case KindObject:
		return KindObject
	case KindEvent:
		return KindEvent
	case KindEntry:
		return KindEntry
	default:
		return KindConcept
	}
}
