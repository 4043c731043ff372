package wardrobe

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/stylecast/stylecast/internal/util"
)

const notifyBatchSize = 20

// StartNotifier launches the outbox drain loop. Every interval it delivers
// pending participant notifications oldest first; a delivery failure bumps
// the attempt counter and leaves the entry for the next pass. Returns when
// ctx is cancelled.
func (c *Coordinator) StartNotifier(ctx context.Context, interval time.Duration) {
	if c.db == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.drainOutbox(ctx)
			}
		}
	}()
}

func (c *Coordinator) drainOutbox(ctx context.Context) {
	entries, err := c.db.PendingNotifications(notifyBatchSize)
	if err != nil {
		log.Printf("WARDROBE: read outbox: %v", err)
		return
	}
	for _, e := range entries {
		var item WardrobeItem
		if err := json.Unmarshal([]byte(e.ItemJSON), &item); err != nil {
			// Unreadable entry, drop it rather than retry forever.
			log.Printf("WARDROBE: outbox entry %d corrupt, dropping: %v", e.ID, err)
			c.db.MarkNotificationDelivered(e.ID)
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, util.DefaultFetchTimeout)
		err = c.api.NotifyParticipants(sendCtx, e.CallID, e.Action, item, e.WardrobeID)
		cancel()
		if err != nil {
			log.Printf("WARDROBE [%s]: notify attempt %d failed: %v", e.CallID, e.Attempts+1, err)
			c.db.BumpNotificationAttempts(e.ID)
			continue
		}
		if err := c.db.MarkNotificationDelivered(e.ID); err != nil {
			log.Printf("WARDROBE: mark outbox entry %d delivered: %v", e.ID, err)
		}
	}
}

// StartReconciler launches the stuck-pending recovery loop. Items that stay
// pending longer than one interval (confirm failed or was interrupted) get
// re-confirmed in the background. Returns when ctx is cancelled.
func (c *Coordinator) StartReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.reconcilePending(ctx, interval)
			}
		}
	}()
}

func (c *Coordinator) reconcilePending(ctx context.Context, minAge time.Duration) {
	c.mu.RLock()
	var stale []string
	if c.state != nil && c.state.SelectedWardrobe != "" {
		cutoff := time.Now().Add(-minAge)
		for _, it := range c.state.PendingItems {
			if strings.HasPrefix(it.ID, "tmp-") && it.AddedAt.Before(cutoff) {
				stale = append(stale, it.ID)
			}
		}
	}
	c.mu.RUnlock()

	for _, id := range stale {
		ok, err := c.ConfirmPendingItem(ctx, id)
		if err != nil {
			log.Printf("WARDROBE: reconcile %s: %v", id, err)
			continue
		}
		if ok {
			log.Printf("WARDROBE: reconciled stuck pending item %s", id)
		}
	}
}
