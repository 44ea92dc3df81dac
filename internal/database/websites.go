package database

import "database/sql"

// InsertWebsite inserts a website row with a fresh id and returns it.
func (db *DB) InsertWebsite(platformName, platformURL string) (*Website, error) {
	w := &Website{
		ID:           NewID(),
		PlatformName: platformName,
		PlatformURL:  platformURL,
	}
	_, err := db.conn.Exec(
		`INSERT INTO websites (id, platform_name, platform_url) VALUES (?, ?, ?)`,
		w.ID, w.PlatformName, w.PlatformURL,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetWebsiteByName returns the website with the given platform name, or nil.
func (db *DB) GetWebsiteByName(platformName string) (*Website, error) {
	row := db.conn.QueryRow(
		`SELECT id, platform_name, platform_url, created_at
		FROM websites WHERE platform_name = ?`, platformName,
	)
	var w Website
	err := row.Scan(&w.ID, &w.PlatformName, &w.PlatformURL, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
