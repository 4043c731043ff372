package storage

import "fmt"

// OutboxEntry is one pending participant notification.
type OutboxEntry struct {
	ID         int64
	CallID     string
	Action     string // "item-added" or "item-removed"
	ItemJSON   string
	WardrobeID string
	Attempts   int
}

// EnqueueNotification appends a notification to the outbox.
func (d *DB) EnqueueNotification(callID, action, itemJSON, wardrobeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO notify_outbox (call_id, action, item_json, wardrobe_id)
		VALUES (?, ?, ?, ?)
	`, callID, action, itemJSON, wardrobeID)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// PendingNotifications returns up to limit undelivered entries, oldest first.
func (d *DB) PendingNotifications(limit int) ([]OutboxEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT id, call_id, action, item_json, wardrobe_id, attempts
		FROM notify_outbox ORDER BY id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.CallID, &e.Action, &e.ItemJSON, &e.WardrobeID, &e.Attempts); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkNotificationDelivered removes a delivered entry from the outbox.
func (d *DB) MarkNotificationDelivered(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`DELETE FROM notify_outbox WHERE id = ?`, id)
	return err
}

// BumpNotificationAttempts increments the attempt counter after a failed send.
func (d *DB) BumpNotificationAttempts(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`UPDATE notify_outbox SET attempts = attempts + 1 WHERE id = ?`, id)
	return err
}

// OutboxDepth returns the number of undelivered notifications.
func (d *DB) OutboxDepth() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM notify_outbox`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
