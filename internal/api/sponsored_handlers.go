package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/studx-dev/studx/internal/item"
	"github.com/studx-dev/studx/internal/middleware"
	"github.com/studx-dev/studx/internal/sponsorship"
)

// defaultFeaturedLimit caps the homepage featured rail.
const defaultFeaturedLimit = 8

// maxRequestLimit is the ceiling for client-supplied limit parameters, so a
// single request can never force scoring of the entire rotation.
const maxRequestLimit = 50

// SponsoredHandlers serves the public sponsored placement endpoints.
//
// The used-items tracker is request-scoped: every request gets a fresh
// selector session, so exclusions from one request can never leak into
// another. Rotation within a request (e.g. the mixer fetching twice) still
// sees the shared session.
type SponsoredHandlers struct {
	assignments sponsorship.AssignmentRepository
	items       item.Repository
	scorer      *sponsorship.Scorer
	metrics     *sponsorship.Metrics
	logger      *slog.Logger
}

// NewSponsoredHandlers creates handlers over the given stores and scorer.
// metrics may be nil to disable instrumentation.
func NewSponsoredHandlers(
	assignments sponsorship.AssignmentRepository,
	items item.Repository,
	scorer *sponsorship.Scorer,
	metrics *sponsorship.Metrics,
	logger *slog.Logger,
) *SponsoredHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &SponsoredHandlers{
		assignments: assignments,
		items:       items,
		scorer:      scorer,
		metrics:     metrics,
		logger:      logger,
	}
}

// session builds a request-scoped selector with its own used-items tracker.
func (h *SponsoredHandlers) session() *sponsorship.Selector {
	return sponsorship.NewSelector(
		h.assignments,
		h.items,
		h.scorer,
		sponsorship.NewUsedTracker(),
		h.metrics,
		h.logger,
	)
}

// RankedItemsResponse is the JSON envelope for sponsored listing results.
type RankedItemsResponse struct {
	Items []*sponsorship.RankedItem `json:"items"`
	Count int                       `json:"count"`
}

// GetSponsored handles GET /sponsored.
//
// Query parameters: q, category, type, college, current (the listing being
// viewed, excluded from results), limit, exclude_used.
//
// Sponsorship is best-effort: backing store failures surface as an empty
// item list, never as an error response.
func (h *SponsoredHandlers) GetSponsored(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	q := r.URL.Query()
	opts := sponsorship.Options{
		SearchQuery:   q.Get("q"),
		Category:      q.Get("category"),
		Type:          q.Get("type"),
		College:       q.Get("college"),
		CurrentItemID: q.Get("current"),
		Limit:         parseLimit(q.Get("limit"), sponsorship.DefaultLimit),
		ExcludeUsed:   q.Get("exclude_used") == "true",
	}

	items := h.session().GetSponsoredItems(r.Context(), opts)
	writeJSON(w, http.StatusOK, RankedItemsResponse{Items: emptyIfNil(items), Count: len(items)})
}

// GetSponsoredRandom handles GET /sponsored/random.
//
// Returns one sponsored listing for search priority placement, or 204 when
// none is available.
func (h *SponsoredHandlers) GetSponsoredRandom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	q := r.URL.Query()
	picked := h.session().GetRandomItemForSearch(r.Context(), q.Get("q"), q.Get("type"))
	if picked == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, picked)
}

// GetSponsoredCategory handles GET /sponsored/category.
//
// Query parameters: category (required), type. Candidates are additionally
// filtered to exact category containment, the stricter behavior category
// pages rely on.
func (h *SponsoredHandlers) GetSponsoredCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	q := r.URL.Query()
	category := q.Get("category")
	if category == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "category parameter is required")
		return
	}
	displayType := q.Get("type")

	items := h.session().GetItemsForCategory(r.Context(), category, displayType)
	items = sponsorship.FilterStrictCategory(items, category, displayType)

	writeJSON(w, http.StatusOK, RankedItemsResponse{Items: emptyIfNil(items), Count: len(items)})
}

// GetFeatured handles GET /featured.
//
// Returns up to limit sponsored listings for the homepage rail, ranked by
// slot. Reuse is allowed since each page load runs its own session.
func (h *SponsoredHandlers) GetFeatured(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), defaultFeaturedLimit)
	mixer := sponsorship.NewMixer(h.session(), h.logger)
	items := mixer.GetFeaturedItems(r.Context(), limit)

	writeJSON(w, http.StatusOK, RankedItemsResponse{Items: emptyIfNil(items), Count: len(items)})
}

// GetFeaturedAll handles GET /featured/all.
//
// Returns every sponsored listing, newest sponsorship first, falling back to
// featured-flagged listings when the slot table is empty or unavailable.
func (h *SponsoredHandlers) GetFeaturedAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	items := h.session().GetAllSponsoredItems(r.Context())
	writeJSON(w, http.StatusOK, RankedItemsResponse{Items: emptyIfNil(items), Count: len(items)})
}

// parseLimit parses a limit query parameter, falling back to def for
// missing, malformed, or non-positive values and clamping the result to
// maxRequestLimit.
func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > maxRequestLimit {
		return maxRequestLimit
	}
	return n
}

// emptyIfNil keeps JSON responses as [] instead of null.
func emptyIfNil(items []*sponsorship.RankedItem) []*sponsorship.RankedItem {
	if items == nil {
		return []*sponsorship.RankedItem{}
	}
	return items
}
