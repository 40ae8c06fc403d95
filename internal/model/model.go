package model

import (
	"fmt"
	"strings"
)

// Stripe is the alternating row class used for readability.
type Stripe string

const (
	StripeEven Stripe = "row1"
	StripeOdd  Stripe = "row2"
)

// StripeFor returns the stripe class for a 0-based index.
func StripeFor(index int) Stripe {
	if index%2 == 0 {
		return StripeEven
	}
	return StripeOdd
}

// Row is one rendered table row as read from the changelist markup.
type Row struct {
	Key       string  `json:"key"`
	Depth     int     `json:"depth"`
	ParentKey *string `json:"parentKey,omitempty"`
	Title     string  `json:"title"`

	// Href is the first link in the row; ListURL is the icon button's data-list-url.
	Href    string `json:"href,omitempty"`
	ListURL string `json:"listUrl,omitempty"`

	Stripe Stripe `json:"stripe,omitempty"`
}

// Item is one node of the flattened tree as tracked by the registry.
type Item struct {
	Index     int     `json:"index"`
	Key       string  `json:"key"`
	Depth     int     `json:"depth"`
	ParentKey *string `json:"parentKey,omitempty"`
	Title     string  `json:"title"`
	DetailURL string  `json:"detailUrl,omitempty"`
	Stripe    Stripe  `json:"stripe"`
}

// HasParent reports whether the item declares a non-empty parent key.
func (it Item) HasParent() bool {
	return it.ParentKey != nil && strings.TrimSpace(*it.ParentKey) != ""
}

// Position is where a moved item lands relative to its anchor.
type Position string

const (
	PositionFirst   Position = "first"
	PositionLast    Position = "last"
	PositionRightOf Position = "right-of"
	PositionLeftOf  Position = "left-of"
)

// Wire returns the form value the backend expects for pos.
func (p Position) Wire() string {
	switch p {
	case PositionRightOf:
		return "right"
	case PositionLeftOf:
		return "left"
	default:
		return string(p)
	}
}

// ParsePosition accepts both wire values and token names.
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first":
		return PositionFirst, nil
	case "last":
		return PositionLast, nil
	case "right", "right-of":
		return PositionRightOf, nil
	case "left", "left-of":
		return PositionLeftOf, nil
	default:
		return "", fmt.Errorf("unknown position %q", s)
	}
}

// Mutation is the anchor-based move request sent to the backend.
type Mutation struct {
	MovedKey  string   `json:"node"`
	Depth     int      `json:"depth"`
	ParentKey *string  `json:"parent,omitempty"`
	AnchorKey string   `json:"target"`
	Position  Position `json:"pos"`
}

func (m Mutation) String() string {
	parent := "-"
	if m.ParentKey != nil {
		parent = *m.ParentKey
	}
	return fmt.Sprintf("%s %s %s (parent=%s depth=%d)", m.MovedKey, m.Position, m.AnchorKey, parent, m.Depth)
}

// DetailSource selects which row link becomes an item's detail target.
type DetailSource string

const (
	// DetailFromListURL uses the icon button's data-list-url (children list).
	DetailFromListURL DetailSource = "list-url"
	// DetailFromHref uses the first link in the row.
	DetailFromHref DetailSource = "href"
)
