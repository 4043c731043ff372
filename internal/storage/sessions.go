package storage

import "fmt"

// SessionSummary is the durable record of a finalized live session.
type SessionSummary struct {
	CallID     string `json:"call_id"`
	WardrobeID string `json:"wardrobe_id"`
	TotalItems int    `json:"total_items"`
}

// SaveSessionSummary records the outcome of a finalized live session.
func (d *DB) SaveSessionSummary(s SessionSummary) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO session_summaries (call_id, wardrobe_id, total_items)
		VALUES (?, ?, ?)
	`, s.CallID, s.WardrobeID, s.TotalItems)
	if err != nil {
		return fmt.Errorf("save session summary: %w", err)
	}
	return nil
}

// SessionSummaries returns all recorded summaries, newest first.
func (d *DB) SessionSummaries() ([]SessionSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`
		SELECT call_id, wardrobe_id, total_items
		FROM session_summaries ORDER BY finalized_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list session summaries: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.CallID, &s.WardrobeID, &s.TotalItems); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
