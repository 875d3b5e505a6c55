// Package item provides listing models and repositories for the StudX
// marketplace. Listings are polymorphic over three collections (products,
// notes, rooms) and are read-only from the sponsorship engine's point of view.
package item

import (
	"errors"
	"time"
)

// Type identifies which collection a listing belongs to.
// This is the storage-side name; products are surfaced to clients as
// "regular" (see Display and ParseDisplay).
type Type string

const (
	TypeProduct Type = "product"
	TypeNote    Type = "note"
	TypeRoom    Type = "room"
)

// DisplayRegular is the client-facing name for TypeProduct.
const DisplayRegular = "regular"

// ErrInvalidType is returned when a string does not name a known item type.
var ErrInvalidType = errors.New("invalid item type")

// ErrNotFound is returned when no listing matches the requested id.
var ErrNotFound = errors.New("item not found")

// Valid reports whether t is one of the three known item types.
func (t Type) Valid() bool {
	switch t {
	case TypeProduct, TypeNote, TypeRoom:
		return true
	}
	return false
}

// Table returns the collection name backing this item type.
func (t Type) Table() string {
	switch t {
	case TypeProduct:
		return "products"
	case TypeNote:
		return "notes"
	case TypeRoom:
		return "rooms"
	}
	return ""
}

// Display returns the client-facing type name. Products are historically
// surfaced as "regular"; notes and rooms keep their storage names.
func (t Type) Display() string {
	if t == TypeProduct {
		return DisplayRegular
	}
	return string(t)
}

// ParseDisplay converts a client-facing type name to a storage type.
// Accepts both the display name ("regular") and the storage name ("product")
// for products. Returns ErrInvalidType for anything else.
func ParseDisplay(s string) (Type, error) {
	switch s {
	case DisplayRegular, string(TypeProduct):
		return TypeProduct, nil
	case string(TypeNote):
		return TypeNote, nil
	case string(TypeRoom):
		return TypeRoom, nil
	}
	return "", ErrInvalidType
}

// Item is a marketplace listing. The common fields are shared by all three
// collections; variant fields are populated only for the matching type.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	College     string    `json:"college,omitempty"`
	Featured    bool      `json:"featured,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// Room-specific fields.
	Occupancy *int    `json:"occupancy,omitempty"`
	RoomType  *string `json:"room_type,omitempty"`

	// Note-specific fields.
	Subject *string `json:"subject,omitempty"`
	Course  *string `json:"course,omitempty"`
}
