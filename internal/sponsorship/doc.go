// Package sponsorship implements the sponsored-listing ranking engine for
// the StudX marketplace.
//
// Paid listings are assigned slots in an ordered rotation (the
// sponsorship_sequences table). The engine resolves slot assignments to
// full listings, scores each against the current search or browse context,
// and mixes the ranked sponsored candidates into organic results without
// ever duplicating a listing.
//
// Sponsorship display is strictly best-effort: store failures degrade to
// "no sponsored content" and are never surfaced to page rendering.
package sponsorship
