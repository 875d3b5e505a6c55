package sponsorship

import (
	"context"
	"log/slog"
	"strings"
)

// SponsoredLabel is the display label attached to sponsored entries in a
// mixed result list.
const SponsoredLabel = "Sponsored"

// DefaultInsertEvery is the browse-mode interleave interval.
const DefaultInsertEvery = 5

// DefaultMaxSponsored is the default sponsored candidate cap for mixing.
const DefaultMaxSponsored = 3

// MixOptions configures a Mix call.
type MixOptions struct {
	// Type restricts sponsored candidates to one client-facing type.
	Type string

	// InsertEvery is the browse-mode interleave interval: one sponsored
	// entry after every InsertEvery organic entries. Defaults to 5.
	InsertEvery int

	// MaxSponsored caps sponsored candidates in the mix. Defaults to 3.
	MaxSponsored int
}

// Mixer merges ranked sponsored listings into organic result lists.
type Mixer struct {
	selector *Selector
	logger   *slog.Logger
}

// NewMixer creates a mixer over the given selector.
func NewMixer(selector *Selector, logger *slog.Logger) *Mixer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mixer{selector: selector, logger: logger}
}

// Mix merges sponsored candidates into the organic result list.
//
// Organic entries whose id collides with a sponsored candidate are dropped
// so no listing ever appears twice. With a non-empty searchQuery all
// sponsored entries are placed ahead of the organic list (search mode);
// otherwise the first sponsored entry leads the list and the rest are
// interleaved after every InsertEvery-th organic entry, with leftovers
// appended at the end (browse mode).
//
// When no sponsored candidates are available the organic list is returned
// unchanged.
func (m *Mixer) Mix(ctx context.Context, regular []*RankedItem, searchQuery string, opts MixOptions) []*RankedItem {
	insertEvery := opts.InsertEvery
	if insertEvery <= 0 {
		insertEvery = DefaultInsertEvery
	}
	maxSponsored := opts.MaxSponsored
	if maxSponsored <= 0 {
		maxSponsored = DefaultMaxSponsored
	}

	sponsored := m.selector.GetSponsoredItems(ctx, Options{
		SearchQuery: searchQuery,
		Type:        opts.Type,
		Limit:       maxSponsored,
		ExcludeUsed: true,
	})
	if len(sponsored) == 0 {
		return regular
	}

	sponsoredIDs := make(map[string]struct{}, len(sponsored))
	for _, sp := range sponsored {
		sp.SponsoredLabel = SponsoredLabel
		sponsoredIDs[sp.ID] = struct{}{}
	}

	deduped := make([]*RankedItem, 0, len(regular))
	for _, it := range regular {
		if _, dup := sponsoredIDs[it.ID]; dup {
			continue
		}
		deduped = append(deduped, it)
	}

	// Search mode: sponsored entries get unconditional top placement.
	if strings.TrimSpace(searchQuery) != "" {
		mixed := make([]*RankedItem, 0, len(sponsored)+len(deduped))
		mixed = append(mixed, sponsored...)
		mixed = append(mixed, deduped...)
		return mixed
	}

	// Browse mode: lead with one sponsored entry, interleave the rest.
	mixed := make([]*RankedItem, 0, len(sponsored)+len(deduped))
	mixed = append(mixed, sponsored[0])
	next := 1

	for i, it := range deduped {
		mixed = append(mixed, it)
		if (i+1)%insertEvery == 0 && next < len(sponsored) {
			mixed = append(mixed, sponsored[next])
			next++
		}
	}

	for ; next < len(sponsored); next++ {
		mixed = append(mixed, sponsored[next])
	}

	return mixed
}

// GetFeaturedItems returns sponsored listings for the homepage featured
// rail. Reuse is allowed here since each page load runs its own session.
func (m *Mixer) GetFeaturedItems(ctx context.Context, limit int) []*RankedItem {
	if limit <= 0 {
		limit = 8
	}
	return m.selector.GetSponsoredItems(ctx, Options{
		Limit:       limit,
		ExcludeUsed: false,
	})
}

// ResetUsedItems clears the session used-items tracker. Must be invoked at
// the start of each independent request lifecycle so exclusions cannot leak
// across unrelated requests.
func (m *Mixer) ResetUsedItems() {
	m.selector.Tracker().Reset()
}

// FilterStrictCategory keeps only sponsored candidates whose category
// contains the target category (case-insensitive) and, when displayType is
// non-empty, whose type matches it exactly. Category pages apply this
// stricter pre-filter before mixing; it is deliberately not part of Mix.
func FilterStrictCategory(items []*RankedItem, category, displayType string) []*RankedItem {
	target := strings.ToLower(category)
	var filtered []*RankedItem
	for _, it := range items {
		if displayType != "" && it.Type != displayType {
			continue
		}
		if target != "" && !strings.Contains(strings.ToLower(it.Category), target) {
			continue
		}
		filtered = append(filtered, it)
	}
	return filtered
}
