package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/studx-dev/studx/internal/item"
	"github.com/studx-dev/studx/internal/middleware"
	"github.com/studx-dev/studx/internal/sponsorship"
)

// defaultSearchLimit caps organic search results per request.
const defaultSearchLimit = 20

// SearchHandlers serves the mixed search endpoints.
type SearchHandlers struct {
	sponsored *SponsoredHandlers
	items     item.Repository
	logger    *slog.Logger
}

// NewSearchHandlers creates search handlers over the item store and the
// sponsored placement handlers (whose session factory it reuses for mixing).
func NewSearchHandlers(sponsored *SponsoredHandlers, items item.Repository, logger *slog.Logger) *SearchHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchHandlers{
		sponsored: sponsored,
		items:     items,
		logger:    logger,
	}
}

// SearchResponse is the JSON envelope for mixed search results.
type SearchResponse struct {
	Items     []*sponsorship.RankedItem `json:"items"`
	Sponsored int                       `json:"sponsored"`
	Regular   int                       `json:"regular"`
	Total     int                       `json:"total"`
}

func newSearchResponse(items []*sponsorship.RankedItem) SearchResponse {
	items = emptyIfNil(items)
	sponsored := 0
	for _, it := range items {
		if it.IsSponsored {
			sponsored++
		}
	}
	return SearchResponse{
		Items:     items,
		Sponsored: sponsored,
		Regular:   len(items) - sponsored,
		Total:     len(items),
	}
}

// Search handles GET /search.
//
// Query parameters: q (required), type, limit. Organic matches come from the
// listing store; sponsored candidates are merged in by the mixer. With a
// non-empty q the sponsored entries lead the list, labeled "Sponsored".
//
// Organic search failures return an error; sponsored mixing failures degrade
// to organic-only results.
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	params := r.URL.Query()
	query := strings.TrimSpace(params.Get("q"))
	if query == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "q parameter is required")
		return
	}

	displayType := params.Get("type")
	var itemType item.Type
	if displayType != "" {
		t, err := item.ParseDisplay(displayType)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidItemType)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidItemType, "Unknown listing type: "+displayType)
			return
		}
		itemType = t
	}

	limit := parseLimit(params.Get("limit"), defaultSearchLimit)

	// Search per collection so every result keeps its listing type. An
	// unscoped search covers all three collections, newest first.
	types := []item.Type{item.TypeProduct, item.TypeNote, item.TypeRoom}
	if itemType != "" {
		types = []item.Type{itemType}
	}

	var organic []*sponsorship.RankedItem
	for _, t := range types {
		results, err := h.items.Search(r.Context(), t, query, limit)
		if err != nil {
			h.logger.Error("search failed", "query", query, "table", t.Table(), "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Search failed")
			return
		}
		for _, it := range results {
			organic = append(organic, sponsorship.Organic(it, t))
		}
	}

	sponsorship.SortOrganicByCreated(organic)
	if len(organic) > limit {
		organic = organic[:limit]
	}

	mixer := sponsorship.NewMixer(h.sponsored.session(), h.logger)
	mixed := mixer.Mix(r.Context(), organic, query, sponsorship.MixOptions{Type: displayType})

	writeJSON(w, http.StatusOK, newSearchResponse(mixed))
}

// MixRequest is the body for POST /search/mix: a caller-supplied organic
// result list to merge sponsored candidates into.
type MixRequest struct {
	Items        []*sponsorship.RankedItem `json:"items"`
	Query        string                    `json:"query"`
	Type         string                    `json:"type"`
	InsertEvery  int                       `json:"insert_every"`
	MaxSponsored int                       `json:"max_sponsored"`
}

// Mix handles POST /search/mix.
//
// Merges sponsored candidates into the supplied organic list: top-loaded
// when a query is present, interleaved otherwise. Lets callers that run
// their own search (or browse listings) reuse the mixing rules.
func (h *SearchHandlers) Mix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req MixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	mixer := sponsorship.NewMixer(h.sponsored.session(), h.logger)
	mixed := mixer.Mix(r.Context(), req.Items, req.Query, sponsorship.MixOptions{
		Type:         req.Type,
		InsertEvery:  req.InsertEvery,
		MaxSponsored: req.MaxSponsored,
	})

	writeJSON(w, http.StatusOK, newSearchResponse(mixed))
}
