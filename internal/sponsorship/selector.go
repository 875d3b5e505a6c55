package sponsorship

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/studx-dev/studx/internal/item"
	"github.com/studx-dev/studx/internal/tracing"
)

// HighRelevanceThreshold is the score above which a candidate counts as
// highly relevant for random search placement.
const HighRelevanceThreshold = 3

// randomPoolLimit is how many candidates the random picker draws from.
const randomPoolLimit = 10

// categoryPageLimit is the candidate count for category page rails.
const categoryPageLimit = 5

// featuredFallbackLimit is the per-collection row cap for the legacy
// featured-flag fallback.
const featuredFallbackLimit = 5

// Selector resolves slot assignments to ranked sponsored listings.
//
// All methods are best-effort: store failures are logged and degrade to
// partial or empty results, never errors. Sponsorship must not be able to
// break page rendering.
type Selector struct {
	assignments AssignmentRepository
	items       item.Repository
	scorer      *Scorer
	tracker     *UsedTracker
	metrics     *Metrics
	logger      *slog.Logger

	// randIntN is swappable for deterministic tests.
	randIntN func(n int) int
}

// NewSelector creates a selector. metrics may be nil to disable
// instrumentation; a nil logger falls back to slog.Default().
func NewSelector(
	assignments AssignmentRepository,
	items item.Repository,
	scorer *Scorer,
	tracker *UsedTracker,
	metrics *Metrics,
	logger *slog.Logger,
) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		assignments: assignments,
		items:       items,
		scorer:      scorer,
		tracker:     tracker,
		metrics:     metrics,
		logger:      logger,
		randIntN:    rand.IntN,
	}
}

// Tracker returns the session used-items tracker.
func (s *Selector) Tracker() *UsedTracker {
	return s.tracker
}

// GetSponsoredItems walks the sponsored rotation in slot order, resolves and
// scores each candidate, and returns the top candidates sorted by relevance
// (ties broken by earlier slot).
//
// Candidates are skipped when already used (if opts.ExcludeUsed), missing
// from the backing store, or equal to opts.CurrentItemID. Accumulation stops
// once opts.Limit candidates are collected, so later slots are not scored
// unnecessarily.
func (s *Selector) GetSponsoredItems(ctx context.Context, opts Options) []*RankedItem {
	ctx, endSpan := tracing.StartSpan(ctx, "sponsorship.select")
	defer endSpan(nil)

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveSelectionDuration(time.Since(start).Seconds())
		}
	}()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var typeFilter item.Type
	if opts.Type != "" {
		t, err := item.ParseDisplay(opts.Type)
		if err != nil {
			s.logger.Warn("ignoring unknown sponsored type filter", "type", opts.Type)
			return nil
		}
		typeFilter = t
	}

	assignments, err := s.assignments.List(ctx, typeFilter)
	if err != nil {
		s.logger.Error("failed to load sponsorship assignments", "error", err)
		return nil
	}

	rc := Context{
		SearchQuery: opts.SearchQuery,
		Category:    opts.Category,
		Type:        opts.Type,
		College:     opts.College,
	}

	var candidates []*RankedItem
	for _, a := range assignments {
		if opts.ExcludeUsed && s.tracker.Used(a.ItemType, a.ItemID) {
			s.recordSkip(SkipReasonUsed)
			continue
		}

		it, err := s.items.GetByID(ctx, a.ItemType, a.ItemID)
		if err != nil {
			if errors.Is(err, item.ErrNotFound) {
				// Assignment references a deleted listing.
				s.recordSkip(SkipReasonMissing)
			} else {
				s.logger.Warn("failed to resolve sponsored item",
					"item_type", a.ItemType,
					"item_id", a.ItemID,
					"error", err)
				s.recordSkip(SkipReasonFetchError)
			}
			continue
		}

		if opts.CurrentItemID != "" && a.ItemID == opts.CurrentItemID {
			s.recordSkip(SkipReasonCurrentItem)
			continue
		}

		rc.SponsorSlot = a.Slot
		score := s.scorer.Score(it, a.ItemType, rc)
		if s.metrics != nil {
			s.metrics.RecordScored()
		}

		candidates = append(candidates, &RankedItem{
			Item:           *it,
			Type:           a.ItemType.Display(),
			SponsorSlot:    a.Slot,
			RelevanceScore: score,
			IsSponsored:    true,
		})

		if opts.ExcludeUsed {
			s.tracker.Mark(a.ItemType, a.ItemID)
		}

		if len(candidates) >= limit {
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RelevanceScore != candidates[j].RelevanceScore {
			return candidates[i].RelevanceScore > candidates[j].RelevanceScore
		}
		return candidates[i].SponsorSlot < candidates[j].SponsorSlot
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// GetRandomItemForSearch returns one sponsored listing for search priority
// placement, chosen uniformly at random from the highly relevant candidates
// (score above HighRelevanceThreshold), or from all candidates when none
// score that high. Returns nil when no candidates exist.
//
// The randomness keeps repeated searches for the same term from always
// surfacing the identical sponsored listing first.
func (s *Selector) GetRandomItemForSearch(ctx context.Context, searchQuery, displayType string) *RankedItem {
	candidates := s.GetSponsoredItems(ctx, Options{
		SearchQuery: searchQuery,
		Type:        displayType,
		Limit:       randomPoolLimit,
		ExcludeUsed: true,
	})
	if len(candidates) == 0 {
		return nil
	}

	var highlyRelevant []*RankedItem
	for _, c := range candidates {
		if c.RelevanceScore > HighRelevanceThreshold {
			highlyRelevant = append(highlyRelevant, c)
		}
	}

	pool := candidates
	if len(highlyRelevant) > 0 {
		pool = highlyRelevant
	}
	return pool[s.randIntN(len(pool))]
}

// GetItemsForCategory returns sponsored listings for a category page rail.
func (s *Selector) GetItemsForCategory(ctx context.Context, category, displayType string) []*RankedItem {
	return s.GetSponsoredItems(ctx, Options{
		Category:    category,
		Type:        displayType,
		Limit:       categoryPageLimit,
		ExcludeUsed: true,
	})
}

// GetAllSponsoredItems returns every sponsored listing for the homepage
// featured rail, newest sponsorship first, without scoring or limits.
//
// Two-tier resolution: if the assignment table errors or is empty, the
// legacy featured-flag scheme is consulted instead (listings flagged
// featured=true in each collection). The fallback is kept for backward
// compatibility with rotations created before the slot system existed.
func (s *Selector) GetAllSponsoredItems(ctx context.Context) []*RankedItem {
	ctx, endSpan := tracing.StartSpan(ctx, "sponsorship.all")
	defer endSpan(nil)

	assignments, err := s.assignments.ListRecent(ctx)
	if err != nil {
		s.logger.Error("failed to load sponsorship assignments, using featured fallback", "error", err)
		return s.fallbackFeaturedItems(ctx)
	}
	if len(assignments) == 0 {
		return s.fallbackFeaturedItems(ctx)
	}

	var results []*RankedItem
	for _, a := range assignments {
		it, err := s.items.GetByID(ctx, a.ItemType, a.ItemID)
		if err != nil {
			if errors.Is(err, item.ErrNotFound) {
				s.recordSkip(SkipReasonMissing)
			} else {
				s.logger.Warn("failed to resolve sponsored item",
					"item_type", a.ItemType,
					"item_id", a.ItemID,
					"error", err)
				s.recordSkip(SkipReasonFetchError)
			}
			continue
		}

		sponsoredAt := a.CreatedAt
		results = append(results, &RankedItem{
			Item:        *it,
			Type:        a.ItemType.Display(),
			IsSponsored: true,
			SponsoredAt: &sponsoredAt,
		})
	}
	return results
}

// fallbackFeaturedItems queries each collection for featured-flagged rows.
// Per-collection errors are logged and skipped so one bad table cannot
// empty the whole rail.
func (s *Selector) fallbackFeaturedItems(ctx context.Context) []*RankedItem {
	if s.metrics != nil {
		s.metrics.RecordFallback()
	}

	var results []*RankedItem
	for _, t := range []item.Type{item.TypeProduct, item.TypeNote, item.TypeRoom} {
		items, err := s.items.ListFeatured(ctx, t, featuredFallbackLimit)
		if err != nil {
			s.logger.Warn("failed to list featured items", "table", t.Table(), "error", err)
			continue
		}
		for _, it := range items {
			results = append(results, &RankedItem{
				Item:        *it,
				Type:        t.Display(),
				IsSponsored: true,
				IsFeatured:  true,
			})
		}
	}
	return results
}

func (s *Selector) recordSkip(reason string) {
	if s.metrics != nil {
		s.metrics.RecordSkipped(reason)
	}
}
