package database

import "database/sql"

// InsertUser inserts a user row with a fresh id and returns it.
func (db *DB) InsertUser(username string, externalUserID *string, websiteID string) (*User, error) {
	u := &User{
		ID:             NewID(),
		Username:       username,
		ExternalUserID: externalUserID,
		WebsiteID:      websiteID,
	}
	_, err := db.conn.Exec(
		`INSERT INTO users (id, username, external_user_id, website_id) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.ExternalUserID, u.WebsiteID,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByID returns the user with the given internal id, or nil.
func (db *DB) GetUserByID(id string) (*User, error) {
	row := db.conn.QueryRow(
		`SELECT id, username, external_user_id, website_id, created_at
		FROM users WHERE id = ?`, id,
	)
	return scanUser(row)
}

// GetUserByExternalID returns the user with the given platform user id, or nil.
func (db *DB) GetUserByExternalID(externalUserID string) (*User, error) {
	row := db.conn.QueryRow(
		`SELECT id, username, external_user_id, website_id, created_at
		FROM users WHERE external_user_id = ?`, externalUserID,
	)
	return scanUser(row)
}

// GetUserByUsername returns the user with the given exact username, or nil.
func (db *DB) GetUserByUsername(username string) (*User, error) {
	row := db.conn.QueryRow(
		`SELECT id, username, external_user_id, website_id, created_at
		FROM users WHERE username = ?`, username,
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.ExternalUserID, &u.WebsiteID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
