package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// Credentials is the stored identity for the messaging transport and the
// wardrobe API (bearer token plus display identity).
type Credentials struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// ErrNoCredentials is returned by LoadCredentials when nothing is stored.
var ErrNoCredentials = errors.New("no stored credentials")

// SaveCredentials stores or replaces the single credential row.
func (d *DB) SaveCredentials(c Credentials) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO credentials (id, token, user_id, user_name, updated_at)
		VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			user_name = excluded.user_name,
			updated_at = CURRENT_TIMESTAMP
	`, c.Token, c.UserID, c.UserName)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns the stored credentials, or ErrNoCredentials.
func (d *DB) LoadCredentials() (Credentials, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var c Credentials
	err := d.db.QueryRow(`SELECT token, user_id, user_name FROM credentials WHERE id = 1`).
		Scan(&c.Token, &c.UserID, &c.UserName)
	if err == sql.ErrNoRows {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return c, nil
}

// ClearCredentials deletes the stored credentials. No-op if none exist.
func (d *DB) ClearCredentials() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`DELETE FROM credentials WHERE id = 1`)
	return err
}
