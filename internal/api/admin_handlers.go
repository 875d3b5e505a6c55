package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/studx-dev/studx/internal/item"
	"github.com/studx-dev/studx/internal/middleware"
	"github.com/studx-dev/studx/internal/sponsorship"
)

// AdminHandlers serves sponsorship management endpoints. Routes using these
// handlers must be wrapped with auth.RequireAdmin.
type AdminHandlers struct {
	assignments sponsorship.AssignmentRepository
	items       item.Repository
	logger      *slog.Logger
}

// NewAdminHandlers creates admin handlers over the given stores.
func NewAdminHandlers(assignments sponsorship.AssignmentRepository, items item.Repository, logger *slog.Logger) *AdminHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandlers{
		assignments: assignments,
		items:       items,
		logger:      logger,
	}
}

// PromoteRequest is the body for POST /admin/sponsorships.
type PromoteRequest struct {
	ItemType string `json:"item_type"` // client-facing type name
	ItemID   string `json:"item_id"`
}

// AssignmentsResponse is the JSON envelope for assignment listings.
type AssignmentsResponse struct {
	Assignments []*sponsorship.Assignment `json:"assignments"`
	Count       int                       `json:"count"`
}

// Sponsorships handles /admin/sponsorships: GET lists all assignments in
// slot order, POST promotes a listing into the next rotation slot.
func (h *AdminHandlers) Sponsorships(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.promote(w, r)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

func (h *AdminHandlers) list(w http.ResponseWriter, r *http.Request) {
	var typeFilter item.Type
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, err := item.ParseDisplay(raw)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidItemType)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidItemType, "Unknown listing type: "+raw)
			return
		}
		typeFilter = t
	}

	assignments, err := h.assignments.List(r.Context(), typeFilter)
	if err != nil {
		h.logger.Error("failed to list assignments", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list sponsorships")
		return
	}
	if assignments == nil {
		assignments = []*sponsorship.Assignment{}
	}

	writeJSON(w, http.StatusOK, AssignmentsResponse{Assignments: assignments, Count: len(assignments)})
}

func (h *AdminHandlers) promote(w http.ResponseWriter, r *http.Request) {
	var req PromoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.ItemID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "item_id is required")
		return
	}

	itemType, err := item.ParseDisplay(req.ItemType)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidItemType)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidItemType, "Unknown listing type: "+req.ItemType)
		return
	}

	// The listing must exist before it can hold a slot.
	if _, err := h.items.GetByID(r.Context(), itemType, req.ItemID); err != nil {
		if errors.Is(err, item.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeItemNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeItemNotFound, "Listing not found")
			return
		}
		h.logger.Error("failed to resolve listing", "item_type", itemType, "item_id", req.ItemID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to resolve listing")
		return
	}

	assignment, err := h.assignments.Promote(r.Context(), itemType, req.ItemID)
	if err != nil {
		if errors.Is(err, sponsorship.ErrDuplicateItem) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeDuplicateSponsorship)
			WriteError(w, ctx, http.StatusConflict, ErrCodeDuplicateSponsorship, "Listing already holds a sponsorship slot")
			return
		}
		h.logger.Error("failed to promote listing", "item_type", itemType, "item_id", req.ItemID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to promote listing")
		return
	}

	h.logger.Info("listing promoted",
		"item_type", itemType,
		"item_id", req.ItemID,
		"slot", assignment.Slot,
		"admin", middleware.GetUserID(r.Context()))

	writeJSON(w, http.StatusCreated, assignment)
}

// Revoke handles DELETE /admin/sponsorships/{type}/{id}.
//
// Removing an assignment retires its slot number permanently; future
// promotions continue from the highest slot ever assigned.
func (h *AdminHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	displayType, itemID, ok := splitRevokePath(r.URL.Path)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Expected /admin/sponsorships/{type}/{id}")
		return
	}

	itemType, err := item.ParseDisplay(displayType)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidItemType)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidItemType, "Unknown listing type: "+displayType)
		return
	}

	if err := h.assignments.Revoke(r.Context(), itemType, itemID); err != nil {
		if errors.Is(err, sponsorship.ErrAssignmentNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeSponsorshipNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeSponsorshipNotFound, "No sponsorship for this listing")
			return
		}
		h.logger.Error("failed to revoke sponsorship", "item_type", itemType, "item_id", itemID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to revoke sponsorship")
		return
	}

	h.logger.Info("sponsorship revoked",
		"item_type", itemType,
		"item_id", itemID,
		"admin", middleware.GetUserID(r.Context()))

	w.WriteHeader(http.StatusNoContent)
}

// splitRevokePath extracts the type and id segments from
// /admin/sponsorships/{type}/{id}.
func splitRevokePath(path string) (displayType, itemID string, ok bool) {
	rest, found := strings.CutPrefix(path, "/admin/sponsorships/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
