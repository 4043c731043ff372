package wardrobe

import (
	"errors"
	"time"
)

// The two precondition/not-found failures callers must handle explicitly.
// Everything environmental (network, non-2xx) comes back as a false return
// instead, so callers can retry without unwrapping errors.
var (
	ErrNoWardrobeSelected = errors.New("no wardrobe selected")
	ErrProductNotFound    = errors.New("product not found")
)

// Wardrobe is the remote collection items are saved into.
type Wardrobe struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ItemCount int    `json:"item_count"`
}

// Product is the catalog entry a session item references.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Brand    string  `json:"brand"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
	Category string  `json:"category"`
}

// WardrobeItem is one item added to the shared wardrobe during a live
// session. ID is a temporary client-generated id until the server confirms
// the item and assigns a durable one; the id is replaced, never duplicated.
type WardrobeItem struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Brand     string    `json:"brand"`
	Price     float64   `json:"price"`
	Image     string    `json:"image"`
	Category  string    `json:"category"`
	AddedAt   time.Time `json:"added_at"`
	AddedBy   string    `json:"added_by,omitempty"`
}

// SessionState is a snapshot of one live session's wardrobe state. Returned
// by value; mutating it does not affect the coordinator.
type SessionState struct {
	CallID           string         `json:"call_id"`
	SelectedWardrobe string         `json:"selected_wardrobe"` // "" = none chosen yet
	PendingItems     []WardrobeItem `json:"pending_items"`
	ConfirmedItems   []WardrobeItem `json:"confirmed_items"`
}

// Wardrobe-update actions fanned out to other call participants.
const (
	ActionItemAdded   = "item-added"
	ActionItemRemoved = "item-removed"
)
