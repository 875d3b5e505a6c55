package sponsorship

import (
	"sort"
	"time"

	"github.com/studx-dev/studx/internal/item"
)

// Assignment represents one listing's placement in the sponsored rotation.
// Lower slot numbers were assigned earlier and carry higher base priority.
// At most one active assignment exists per (ItemType, ItemID) pair.
type Assignment struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	ItemType  item.Type `json:"item_type"`
	Slot      int       `json:"slot"`
	CreatedAt time.Time `json:"created_at"`
}

// Context is the per-call ranking context a candidate is scored against.
// SponsorSlot is filled in by the selector from the candidate's assignment.
type Context struct {
	SearchQuery string
	Category    string
	Type        string // client-facing type name ("regular", "note", "room")
	SponsorSlot int
	College     string
}

// RankedItem is a listing augmented with sponsorship ranking data.
// Type carries the client-facing type name (products surface as "regular").
type RankedItem struct {
	item.Item

	Type           string     `json:"type"`
	SponsorSlot    int        `json:"sponsor_slot,omitempty"`
	RelevanceScore float64    `json:"relevance_score,omitempty"`
	IsSponsored    bool       `json:"is_sponsored"`
	IsFeatured     bool       `json:"is_featured,omitempty"`
	SponsoredLabel string     `json:"sponsored_label,omitempty"`
	SponsoredAt    *time.Time `json:"sponsored_at,omitempty"`
}

// Organic wraps a plain listing as an unsponsored entry for mixing.
func Organic(it *item.Item, itemType item.Type) *RankedItem {
	return &RankedItem{
		Item: *it,
		Type: itemType.Display(),
	}
}

// SortOrganicByCreated orders entries newest first, the organic ordering used
// when merging per-collection search results.
func SortOrganicByCreated(items []*RankedItem) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// Options configures a GetSponsoredItems call.
type Options struct {
	// SearchQuery enables lexical relevance scoring when non-empty.
	SearchQuery string

	// Category enables category affinity scoring when non-empty.
	Category string

	// Type restricts candidates to one client-facing type when non-empty.
	Type string

	// CurrentItemID excludes the listing currently being viewed.
	CurrentItemID string

	// College enables the college affinity bonus when non-empty.
	College string

	// Limit caps the number of returned candidates. Defaults to 3.
	Limit int

	// ExcludeUsed skips candidates already surfaced in this session and
	// marks returned candidates as used.
	ExcludeUsed bool
}

// DefaultLimit is the number of sponsored candidates returned when the
// caller does not specify one.
const DefaultLimit = 3
