package store

import (
	"github.com/jmoiron/sqlx"

	"textcast/internal/models"
)

// SeedSettings inserts defaults for any missing settings keys.
func (s *Store) SeedSettings(q sqlx.Ext) error {
	for key, value := range models.DefaultSettings {
		if _, err := q.Exec(`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, key, value); err != nil {
			return err
		}
	}
	return nil
}

// GetSettings returns the full settings map.
func (s *Store) GetSettings(q sqlx.Ext) (map[string]string, error) {
	rows := []models.Setting{}
	if err := sqlx.Select(q, &rows, `SELECT key, value FROM settings`); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// PutSetting upserts one settings key.
func (s *Store) PutSetting(q sqlx.Ext, key, value string) error {
	_, err := q.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
