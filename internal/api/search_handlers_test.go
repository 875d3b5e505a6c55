package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/studx-dev/studx/internal/item"
	"github.com/studx-dev/studx/internal/sponsorship"
)

func newSearchHandlers(f *apiFixture) *SearchHandlers {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSearchHandlers(f.sponsored, f.items, logger)
}

func decodeSearch(t *testing.T, body []byte) SearchResponse {
	t.Helper()
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("invalid JSON body: %v\n%s", err, body)
	}
	return resp
}

func TestSearchRequiresQuery(t *testing.T) {
	h := newSearchHandlers(newAPIFixture(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	h.Search(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without q, got %d", rec.Code)
	}
}

func TestSearchRejectsUnknownType(t *testing.T) {
	h := newSearchHandlers(newAPIFixture(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search?q=lamp&type=vehicle", nil)
	h.Search(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown type, got %d", rec.Code)
	}
}

func TestSearchSponsoredLeadTheResults(t *testing.T) {
	f := newAPIFixture(t)
	f.addListing(t, item.TypeProduct, "p1", "Study lamp", "furniture")
	f.addListing(t, item.TypeProduct, "p2", "Lamp shade", "furniture")
	f.promote(t, item.TypeProduct, "p2")
	h := newSearchHandlers(f)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search?q=lamp", nil)
	h.Search(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeSearch(t, rec.Body.Bytes())
	if resp.Total != 2 || resp.Sponsored != 1 || resp.Regular != 1 {
		t.Fatalf("expected counts 2/1/1, got total=%d sponsored=%d regular=%d",
			resp.Total, resp.Sponsored, resp.Regular)
	}
	if resp.Items[0].ID != "p2" {
		t.Errorf("expected sponsored p2 first, got %s", resp.Items[0].ID)
	}
	if resp.Items[0].SponsoredLabel != sponsorship.SponsoredLabel {
		t.Errorf("expected sponsored label %q, got %q", sponsorship.SponsoredLabel, resp.Items[0].SponsoredLabel)
	}
	if resp.Items[1].ID != "p1" {
		t.Errorf("expected organic p1 second, got %s", resp.Items[1].ID)
	}
	if resp.Items[1].IsSponsored {
		t.Error("organic result must not be marked sponsored")
	}
}

func TestSearchDeduplicatesSponsoredMatches(t *testing.T) {
	f := newAPIFixture(t)
	f.addListing(t, item.TypeProduct, "p1", "Lamp", "furniture")
	f.promote(t, item.TypeProduct, "p1")
	h := newSearchHandlers(f)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search?q=lamp", nil)
	h.Search(rec, req)

	resp := decodeSearch(t, rec.Body.Bytes())
	if resp.Total != 1 {
		t.Fatalf("expected a single deduplicated result, got %d", resp.Total)
	}
	if !resp.Items[0].IsSponsored {
		t.Error("expected the surviving copy to be the sponsored one")
	}
}

func TestSearchOrganicOnlyWithoutSponsorships(t *testing.T) {
	f := newAPIFixture(t)
	f.addListing(t, item.TypeNote, "n1", "Lamp design notes", "engineering")
	h := newSearchHandlers(f)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search?q=lamp", nil)
	h.Search(rec, req)

	resp := decodeSearch(t, rec.Body.Bytes())
	if resp.Total != 1 || resp.Sponsored != 0 {
		t.Fatalf("expected 1 organic result, got total=%d sponsored=%d", resp.Total, resp.Sponsored)
	}
	if resp.Items[0].Type != item.TypeNote.Display() {
		t.Errorf("expected type %q, got %q", item.TypeNote.Display(), resp.Items[0].Type)
	}
}

func TestSearchSpansCollectionsNewestFirst(t *testing.T) {
	f := newAPIFixture(t)
	now := time.Now()
	f.items.Put(item.TypeProduct, &item.Item{ID: "p1", Title: "Blue lamp", CreatedAt: now.Add(-time.Hour)})
	f.items.Put(item.TypeNote, &item.Item{ID: "n1", Title: "Lamp wiring notes", CreatedAt: now})
	f.items.Put(item.TypeRoom, &item.Item{ID: "r1", Title: "Room with lamp", CreatedAt: now.Add(-2 * time.Hour)})
	h := newSearchHandlers(f)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search?q=lamp", nil)
	h.Search(rec, req)

	resp := decodeSearch(t, rec.Body.Bytes())
	if resp.Total != 3 {
		t.Fatalf("expected 3 results across collections, got %d", resp.Total)
	}
	wantOrder := []string{"n1", "p1", "r1"}
	for i, want := range wantOrder {
		if resp.Items[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, resp.Items[i].ID)
		}
	}
}

func TestSearchTypeScopesResults(t *testing.T) {
	f := newAPIFixture(t)
	f.addListing(t, item.TypeProduct, "p1", "Lamp", "furniture")
	f.addListing(t, item.TypeNote, "n1", "Lamp notes", "engineering")
	h := newSearchHandlers(f)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search?q=lamp&type=note", nil)
	h.Search(rec, req)

	resp := decodeSearch(t, rec.Body.Bytes())
	if resp.Total != 1 {
		t.Fatalf("expected 1 result, got %d", resp.Total)
	}
	if resp.Items[0].ID != "n1" {
		t.Errorf("expected n1, got %s", resp.Items[0].ID)
	}
}

func TestMixInterleavesInBrowseMode(t *testing.T) {
	f := newAPIFixture(t)
	f.addListing(t, item.TypeProduct, "sp1", "Sponsored lamp", "furniture")
	f.promote(t, item.TypeProduct, "sp1")
	h := newSearchHandlers(f)

	body := `{"items":[
		{"id":"o1","title":"One","type":"regular"},
		{"id":"o2","title":"Two","type":"regular"}
	],"query":""}`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/search/mix", strings.NewReader(body))
	h.Mix(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeSearch(t, rec.Body.Bytes())
	if resp.Total != 3 || resp.Sponsored != 1 {
		t.Fatalf("expected 3 results with 1 sponsored, got total=%d sponsored=%d", resp.Total, resp.Sponsored)
	}
	// Browse mode: the sponsored entry leads the list.
	if resp.Items[0].ID != "sp1" {
		t.Errorf("expected sp1 first, got %s", resp.Items[0].ID)
	}
	if resp.Items[1].ID != "o1" || resp.Items[2].ID != "o2" {
		t.Errorf("organic order not preserved: %s, %s", resp.Items[1].ID, resp.Items[2].ID)
	}
}

func TestMixRejectsInvalidBody(t *testing.T) {
	h := newSearchHandlers(newAPIFixture(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/search/mix", strings.NewReader("not json"))
	h.Mix(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestMixPassesThroughWithoutSponsorships(t *testing.T) {
	h := newSearchHandlers(newAPIFixture(t))

	body := `{"items":[{"id":"o1","title":"One","type":"regular"}],"query":"lamp"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/search/mix", strings.NewReader(body))
	h.Mix(rec, req)

	resp := decodeSearch(t, rec.Body.Bytes())
	if resp.Total != 1 || resp.Sponsored != 0 {
		t.Fatalf("expected organic passthrough, got total=%d sponsored=%d", resp.Total, resp.Sponsored)
	}
}
