// Package wardrobe implements the per-call shared-wardrobe state machine.
// Items move pending → confirmed through the remote wardrobe API; local
// state is a cache that is authoritative only between confirmed round-trips.
// Participant notifications go through a durable outbox so a failed fan-out
// never affects the state machine and is retried until delivered.
package wardrobe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stylecast/stylecast/internal/storage"
)

const sessionTag = "live-session"

// Coordinator owns the wardrobe state for one live call. Construct one per
// call with NewCoordinator; instances are caller-owned, never shared between
// calls.
type Coordinator struct {
	api *APIClient
	db  *storage.DB

	// AddedBy is stamped on items as attribution. Set it before adding items;
	// empty means no attribution.
	AddedBy string

	mu       sync.RWMutex
	state    *SessionState
	inFlight map[string]bool // item ids with a confirm round-trip in progress
}

// NewCoordinator creates a coordinator backed by the given API client and
// local store (outbox + finalized summaries).
func NewCoordinator(api *APIClient, db *storage.DB) *Coordinator {
	return &Coordinator{api: api, db: db, inFlight: make(map[string]bool)}
}

// InitializeSession resets the coordinator for a new call. wardrobeID may be
// "" when no wardrobe is chosen yet. Always succeeds; no network call.
func (c *Coordinator) InitializeSession(callID, wardrobeID string) {
	c.mu.Lock()
	c.state = &SessionState{
		CallID:           callID,
		SelectedWardrobe: wardrobeID,
		PendingItems:     []WardrobeItem{},
		ConfirmedItems:   []WardrobeItem{},
	}
	c.mu.Unlock()
	log.Printf("WARDROBE [%s]: session initialized (wardrobe=%q)", callID, wardrobeID)
}

// SelectWardrobe validates access to the wardrobe with a round-trip before
// committing to it. On any failure the selection is left unchanged and false
// is returned.
func (c *Coordinator) SelectWardrobe(ctx context.Context, wardrobeID string) bool {
	c.mu.RLock()
	active := c.state != nil
	c.mu.RUnlock()
	if !active {
		log.Printf("WARDROBE: select %s ignored — no active session", wardrobeID)
		return false
	}

	if _, err := c.api.GetWardrobe(ctx, wardrobeID); err != nil {
		log.Printf("WARDROBE: validate wardrobe %s failed: %v", wardrobeID, err)
		return false
	}

	c.mu.Lock()
	if c.state != nil {
		c.state.SelectedWardrobe = wardrobeID
	}
	c.mu.Unlock()
	return true
}

// AddProductToSession stages a product as a pending item and immediately
// attempts to confirm it, returning the confirmation's success. From the
// caller's view this is one atomic add; the pending stage is observable only
// through GetPendingItems when the confirm is slow or fails.
//
// Returns ErrNoWardrobeSelected or ErrProductNotFound for the two caller
// errors; environment failures return (false, nil) and leave the item
// pending for the reconciler to retry.
func (c *Coordinator) AddProductToSession(ctx context.Context, productID string) (bool, error) {
	c.mu.RLock()
	ok := c.state != nil && c.state.SelectedWardrobe != ""
	c.mu.RUnlock()
	if !ok {
		return false, ErrNoWardrobeSelected
	}

	product, err := c.api.GetProduct(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrProductNotFound, productID, err)
	}

	item := WardrobeItem{
		ID:        "tmp-" + uuid.NewString(),
		ProductID: product.ID,
		Name:      product.Name,
		Brand:     product.Brand,
		Price:     product.Price,
		Image:     product.Image,
		Category:  product.Category,
		AddedAt:   time.Now().UTC(),
		AddedBy:   c.AddedBy,
	}

	c.mu.Lock()
	if c.state == nil || c.state.SelectedWardrobe == "" {
		c.mu.Unlock()
		return false, ErrNoWardrobeSelected
	}
	c.state.PendingItems = append(c.state.PendingItems, item)
	c.mu.Unlock()

	return c.ConfirmPendingItem(ctx, item.ID)
}

// ConfirmPendingItem posts a pending item to the wardrobe-items endpoint.
// On success the server-assigned id replaces the temporary one and the item
// moves to the confirmed list (append order). On failure the item stays
// pending and false is returned. An unknown item id returns (false, nil)
// without side effects. An item whose confirm round-trip is already in
// flight (caller and reconciler racing) also returns (false, nil) so the
// server sees at most one post per pending item.
func (c *Coordinator) ConfirmPendingItem(ctx context.Context, itemID string) (bool, error) {
	c.mu.Lock()
	if c.state == nil || c.state.SelectedWardrobe == "" {
		c.mu.Unlock()
		return false, ErrNoWardrobeSelected
	}
	callID := c.state.CallID
	wardrobeID := c.state.SelectedWardrobe
	var item WardrobeItem
	found := false
	for _, it := range c.state.PendingItems {
		if it.ID == itemID {
			item = it
			found = true
			break
		}
	}
	if found {
		if c.inFlight[itemID] {
			c.mu.Unlock()
			return false, nil
		}
		c.inFlight[itemID] = true
	}
	c.mu.Unlock()

	if !found {
		return false, nil
	}
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, itemID)
		c.mu.Unlock()
	}()

	note := fmt.Sprintf("Added during live session %s", callID)
	serverID, err := c.api.AddItem(ctx, wardrobeID, item.ProductID, note, []string{sessionTag})
	if err != nil {
		log.Printf("WARDROBE [%s]: confirm %s failed: %v", callID, itemID, err)
		return false, nil
	}

	c.mu.Lock()
	if c.state == nil {
		// Session was finalized while the request was in flight; the server
		// has the item but there is no session to record it in.
		c.mu.Unlock()
		log.Printf("WARDROBE [%s]: confirm %s landed after session ended", callID, itemID)
		return false, nil
	}
	idx := -1
	for i, it := range c.state.PendingItems {
		if it.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Removed while the request was in flight.
		c.mu.Unlock()
		return false, nil
	}
	item = c.state.PendingItems[idx]
	item.ID = serverID
	c.state.PendingItems = append(c.state.PendingItems[:idx], c.state.PendingItems[idx+1:]...)
	c.state.ConfirmedItems = append(c.state.ConfirmedItems, item)
	c.mu.Unlock()

	log.Printf("WARDROBE [%s]: confirmed item %s → %s", callID, itemID, serverID)
	c.enqueueNotify(callID, ActionItemAdded, item, wardrobeID)
	return true, nil
}

// RemovePendingItem removes a not-yet-confirmed item locally. No network
// call. Returns false if the item is not pending.
func (c *Coordinator) RemovePendingItem(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return false
	}
	for i, it := range c.state.PendingItems {
		if it.ID == itemID {
			c.state.PendingItems = append(c.state.PendingItems[:i], c.state.PendingItems[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveConfirmedItem deletes a confirmed item from the remote wardrobe. On
// failure state is unchanged and false is returned. An id that is not
// confirmed returns (false, nil) without issuing a network call.
func (c *Coordinator) RemoveConfirmedItem(ctx context.Context, itemID string) (bool, error) {
	c.mu.RLock()
	if c.state == nil || c.state.SelectedWardrobe == "" {
		c.mu.RUnlock()
		return false, ErrNoWardrobeSelected
	}
	callID := c.state.CallID
	wardrobeID := c.state.SelectedWardrobe
	found := false
	for _, it := range c.state.ConfirmedItems {
		if it.ID == itemID {
			found = true
			break
		}
	}
	c.mu.RUnlock()

	if !found {
		return false, nil
	}

	if err := c.api.DeleteItem(ctx, wardrobeID, itemID); err != nil {
		log.Printf("WARDROBE [%s]: remove %s failed: %v", callID, itemID, err)
		return false, nil
	}

	c.mu.Lock()
	var removed WardrobeItem
	for i, it := range c.state.ConfirmedItems {
		if it.ID == itemID {
			removed = it
			c.state.ConfirmedItems = append(c.state.ConfirmedItems[:i], c.state.ConfirmedItems[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	c.enqueueNotify(callID, ActionItemRemoved, removed, wardrobeID)
	return true, nil
}

// AddMultipleProducts applies AddProductToSession sequentially over the ids,
// in caller order, partitioning results. A later failure never affects an
// earlier item's committed success; failures do not halt the walk.
func (c *Coordinator) AddMultipleProducts(ctx context.Context, productIDs []string) (success, failed []string) {
	for _, id := range productIDs {
		ok, err := c.AddProductToSession(ctx, id)
		if err != nil || !ok {
			failed = append(failed, id)
			continue
		}
		success = append(success, id)
	}
	return success, failed
}

// FinalizeLiveSession returns the session summary, persists it, and clears
// all session state unconditionally. This is terminal: afterwards
// GetSessionState returns nil until the next InitializeSession.
func (c *Coordinator) FinalizeLiveSession() storage.SessionSummary {
	c.mu.Lock()
	var summary storage.SessionSummary
	if c.state != nil {
		summary = storage.SessionSummary{
			CallID:     c.state.CallID,
			WardrobeID: c.state.SelectedWardrobe,
			TotalItems: len(c.state.ConfirmedItems),
		}
	}
	c.state = nil
	c.mu.Unlock()

	if summary.CallID != "" && c.db != nil {
		if err := c.db.SaveSessionSummary(summary); err != nil {
			log.Printf("WARDROBE [%s]: save summary failed: %v", summary.CallID, err)
		}
	}
	log.Printf("WARDROBE [%s]: session finalized — %d items in wardrobe %q",
		summary.CallID, summary.TotalItems, summary.WardrobeID)
	return summary
}

// Cleanup clears all session state without computing a summary. Used on
// abandonment paths (call dropped) as opposed to graceful finalization.
func (c *Coordinator) Cleanup() {
	c.mu.Lock()
	c.state = nil
	c.mu.Unlock()
}

// GetSessionState returns a copy of the session state, or nil when no
// session is active.
func (c *Coordinator) GetSessionState() *SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return nil
	}
	cp := *c.state
	cp.PendingItems = append([]WardrobeItem(nil), c.state.PendingItems...)
	cp.ConfirmedItems = append([]WardrobeItem(nil), c.state.ConfirmedItems...)
	return &cp
}

// GetPendingItems returns the items staged but not yet confirmed.
func (c *Coordinator) GetPendingItems() []WardrobeItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return nil
	}
	return append([]WardrobeItem(nil), c.state.PendingItems...)
}

// GetConfirmedItems returns the durably saved items in append order.
func (c *Coordinator) GetConfirmedItems() []WardrobeItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return nil
	}
	return append([]WardrobeItem(nil), c.state.ConfirmedItems...)
}

// GetAllSessionItems returns pending then confirmed items.
func (c *Coordinator) GetAllSessionItems() []WardrobeItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return nil
	}
	out := make([]WardrobeItem, 0, len(c.state.PendingItems)+len(c.state.ConfirmedItems))
	out = append(out, c.state.PendingItems...)
	out = append(out, c.state.ConfirmedItems...)
	return out
}

// GetSelectedWardrobe returns the selected wardrobe id, "" when none.
func (c *Coordinator) GetSelectedWardrobe() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return ""
	}
	return c.state.SelectedWardrobe
}

// IsItemInSession checks membership by product reference across the union of
// pending and confirmed items.
func (c *Coordinator) IsItemInSession(productID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return false
	}
	for _, it := range c.state.PendingItems {
		if it.ProductID == productID {
			return true
		}
	}
	for _, it := range c.state.ConfirmedItems {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

// OutboxDepth returns the number of participant notifications not yet
// delivered. UIs can surface this as a "sync pending" indicator.
func (c *Coordinator) OutboxDepth() int {
	if c.db == nil {
		return 0
	}
	n, err := c.db.OutboxDepth()
	if err != nil {
		log.Printf("WARDROBE: outbox depth: %v", err)
		return 0
	}
	return n
}

// enqueueNotify records a participant notification in the durable outbox.
// Failures are logged and swallowed — notification must never affect the
// primary operation's result.
func (c *Coordinator) enqueueNotify(callID, action string, item WardrobeItem, wardrobeID string) {
	if c.db == nil {
		return
	}
	itemJSON, err := json.Marshal(item)
	if err != nil {
		log.Printf("WARDROBE [%s]: marshal notify item: %v", callID, err)
		return
	}
	if err := c.db.EnqueueNotification(callID, action, string(itemJSON), wardrobeID); err != nil {
		log.Printf("WARDROBE [%s]: enqueue notify: %v", callID, err)
	}
}
