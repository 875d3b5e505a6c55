package sponsorship

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/studx-dev/studx/internal/item"
)

func newMixerFixture(t *testing.T) (*Mixer, *testFixture) {
	t.Helper()
	f := newFixture(t)
	return NewMixer(f.selector, slog.Default()), f
}

func organicList(ids ...string) []*RankedItem {
	out := make([]*RankedItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, Organic(&item.Item{ID: id, Title: "Organic " + id}, item.TypeProduct))
	}
	return out
}

func TestMixSearchModePrependsSponsored(t *testing.T) {
	m, f := newMixerFixture(t)
	f.addListing(item.TypeProduct, "s1", "Gaming Laptop", "Electronics", 1)
	f.addListing(item.TypeProduct, "s2", "Laptop Stand", "Electronics", 2)

	mixed := m.Mix(context.Background(), organicList("o1", "o2", "o3"), "laptop", MixOptions{})
	if len(mixed) != 5 {
		t.Fatalf("expected 5 results, got %d", len(mixed))
	}
	if !mixed[0].IsSponsored || !mixed[1].IsSponsored {
		t.Error("search mode must place all sponsored entries first")
	}
	if mixed[0].SponsoredLabel != SponsoredLabel {
		t.Errorf("expected label %q, got %q", SponsoredLabel, mixed[0].SponsoredLabel)
	}
	for _, it := range mixed[2:] {
		if it.IsSponsored {
			t.Errorf("organic tail contains sponsored entry %s", it.ID)
		}
	}
}

func TestMixBrowseModeInterleaves(t *testing.T) {
	m, f := newMixerFixture(t)
	f.addListing(item.TypeProduct, "s1", "One", "Misc", 1)
	f.addListing(item.TypeProduct, "s2", "Two", "Misc", 2)
	f.addListing(item.TypeProduct, "s3", "Three", "Misc", 3)

	organic := organicList("o1", "o2", "o3", "o4", "o5", "o6", "o7", "o8", "o9", "o10", "o11", "o12")
	mixed := m.Mix(context.Background(), organic, "", MixOptions{})
	if len(mixed) != 15 {
		t.Fatalf("expected 15 results, got %d", len(mixed))
	}

	// Layout: sponsored lead, then one sponsored entry after every 5th
	// organic entry.
	sponsoredAt := map[int]bool{0: true, 6: true, 12: true}
	for i, it := range mixed {
		if sponsoredAt[i] != it.IsSponsored {
			t.Errorf("position %d: sponsored=%v, want %v (id %s)", i, it.IsSponsored, sponsoredAt[i], it.ID)
		}
	}
}

func TestMixBrowseModeAppendsLeftovers(t *testing.T) {
	m, f := newMixerFixture(t)
	f.addListing(item.TypeProduct, "s1", "One", "Misc", 1)
	f.addListing(item.TypeProduct, "s2", "Two", "Misc", 2)
	f.addListing(item.TypeProduct, "s3", "Three", "Misc", 3)

	// Too few organic entries to reach the later interleave points.
	mixed := m.Mix(context.Background(), organicList("o1", "o2"), "", MixOptions{})
	if len(mixed) != 5 {
		t.Fatalf("expected 5 results, got %d", len(mixed))
	}
	if !mixed[0].IsSponsored {
		t.Error("expected sponsored lead")
	}
	if !mixed[3].IsSponsored || !mixed[4].IsSponsored {
		t.Error("expected leftover sponsored entries appended at the end")
	}
}

func TestMixDeduplicatesOrganicEntries(t *testing.T) {
	m, f := newMixerFixture(t)
	f.addListing(item.TypeProduct, "dup", "Sponsored Listing", "Misc", 1)

	mixed := m.Mix(context.Background(), organicList("dup", "o2"), "query sponsored listing", MixOptions{})
	seen := make(map[string]int)
	for _, it := range mixed {
		seen[it.ID]++
	}
	if seen["dup"] != 1 {
		t.Errorf("listing appeared %d times, want exactly once", seen["dup"])
	}
	if len(mixed) != 2 {
		t.Errorf("expected 2 results after dedup, got %d", len(mixed))
	}
	// The surviving copy is the sponsored one.
	for _, it := range mixed {
		if it.ID == "dup" && !it.IsSponsored {
			t.Error("sponsored copy must win over the organic duplicate")
		}
	}
}

func TestMixWithoutSponsoredReturnsOrganicUnchanged(t *testing.T) {
	m, _ := newMixerFixture(t)

	organic := organicList("o1", "o2")
	mixed := m.Mix(context.Background(), organic, "laptop", MixOptions{})
	if len(mixed) != len(organic) {
		t.Fatalf("expected organic list unchanged, got %d results", len(mixed))
	}
	for i := range organic {
		if mixed[i].ID != organic[i].ID {
			t.Errorf("position %d: expected %s, got %s", i, organic[i].ID, mixed[i].ID)
		}
	}
}

func TestMixConsumesRotation(t *testing.T) {
	m, f := newMixerFixture(t)
	f.addListing(item.TypeProduct, "s1", "One", "Misc", 1)

	first := m.Mix(context.Background(), organicList("o1"), "", MixOptions{})
	if len(first) != 2 {
		t.Fatalf("expected sponsored entry in first mix, got %d results", len(first))
	}

	// The rotation excludes already-shown entries within one session.
	second := m.Mix(context.Background(), organicList("o2"), "", MixOptions{})
	if len(second) != 1 {
		t.Errorf("expected no sponsored entries on second mix, got %d results", len(second))
	}

	m.ResetUsedItems()
	third := m.Mix(context.Background(), organicList("o3"), "", MixOptions{})
	if len(third) != 2 {
		t.Errorf("expected rotation to restart after reset, got %d results", len(third))
	}
}

func TestGetFeaturedItems(t *testing.T) {
	m, f := newMixerFixture(t)
	f.addListing(item.TypeProduct, "s1", "One", "Misc", 1)
	f.addListing(item.TypeNote, "s2", "Two", "Misc", 2)

	got := m.GetFeaturedItems(context.Background(), 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 featured items, got %d", len(got))
	}

	// Featured rail calls do not consume the rotation.
	again := m.GetFeaturedItems(context.Background(), 0)
	if len(again) != 2 {
		t.Errorf("expected repeatable featured results, got %d", len(again))
	}
}

func TestFilterStrictCategory(t *testing.T) {
	now := time.Now()
	items := []*RankedItem{
		{Item: item.Item{ID: "1", Category: "Bikes and Scooters", CreatedAt: now}, Type: "regular"},
		{Item: item.Item{ID: "2", Category: "Furniture", CreatedAt: now}, Type: "regular"},
		{Item: item.Item{ID: "3", Category: "bikes", CreatedAt: now}, Type: "note"},
	}

	got := FilterStrictCategory(items, "bikes", "")
	if len(got) != 2 {
		t.Fatalf("expected 2 category matches, got %d", len(got))
	}

	got = FilterStrictCategory(items, "bikes", "regular")
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("expected only the regular bike listing, got %+v", got)
	}

	got = FilterStrictCategory(items, "", "note")
	if len(got) != 1 || got[0].ID != "3" {
		t.Errorf("expected only the note, got %+v", got)
	}
}
