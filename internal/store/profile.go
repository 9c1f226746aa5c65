package store

import "database/sql"

// UpsertProfile records a user's display name for sender and presence
// hydration.
func (db *DB) UpsertProfile(userID, fullName string) error {
	_, err := db.Exec(`
		INSERT INTO profiles (user_id, full_name)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET full_name = excluded.full_name`,
		userID, fullName)
	return wrapErr("upsert profile", err)
}

// DisplayName returns the stored display name for a user, or "" when
// the profile is unknown. Callers decide the fallback.
func (db *DB) DisplayName(userID string) (string, error) {
	var name string
	err := db.QueryRow(`SELECT full_name FROM profiles WHERE user_id = ?`, userID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", wrapErr("display name", err)
	}
	return name, nil
}
