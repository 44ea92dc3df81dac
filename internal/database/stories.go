package database

import (
	"database/sql"
	"encoding/json"
)

// InsertStory inserts a story. The caller supplies all fields except the id.
func (db *DB) InsertStory(s *Story) error {
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.Status == "" {
		s.Status = StatusUnknown
	}
	tags, err := json.Marshal(s.Tags)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`INSERT INTO stories (id, external_story_id, website_id, author_user_id, title, url,
			description, status, tags, total_views, total_chapters, meta_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ExternalStoryID, s.WebsiteID, s.AuthorUserID, s.Title, s.URL,
		s.Description, s.Status, string(tags), s.TotalViews, s.TotalChapters, s.MetaHash,
	)
	return err
}

// StoryExists reports whether a story with the given external id is stored.
// This is the idempotency gate for both the importer and the batch runner.
func (db *DB) StoryExists(externalStoryID string) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM stories WHERE external_story_id = ?`, externalStoryID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetStoryByExternalID returns the story with the given external id, or nil.
func (db *DB) GetStoryByExternalID(externalStoryID string) (*Story, error) {
	row := db.conn.QueryRow(
		`SELECT id, external_story_id, website_id, author_user_id, title, url,
			description, status, tags, total_views, total_chapters, meta_hash, created_at, updated_at
		FROM stories WHERE external_story_id = ?`, externalStoryID,
	)
	return scanStory(row)
}

// GetStoryByID returns the story with the given internal id, or nil.
func (db *DB) GetStoryByID(id string) (*Story, error) {
	row := db.conn.QueryRow(
		`SELECT id, external_story_id, website_id, author_user_id, title, url,
			description, status, tags, total_views, total_chapters, meta_hash, created_at, updated_at
		FROM stories WHERE id = ?`, id,
	)
	return scanStory(row)
}

// ListStories returns all stories ordered by title.
func (db *DB) ListStories() ([]Story, error) {
	rows, err := db.conn.Query(
		`SELECT id, external_story_id, website_id, author_user_id, title, url,
			description, status, tags, total_views, total_chapters, meta_hash, created_at, updated_at
		FROM stories ORDER BY title`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []Story
	for rows.Next() {
		var s Story
		var tags sql.NullString
		if err := rows.Scan(&s.ID, &s.ExternalStoryID, &s.WebsiteID, &s.AuthorUserID, &s.Title, &s.URL,
			&s.Description, &s.Status, &tags, &s.TotalViews, &s.TotalChapters, &s.MetaHash,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &s.Tags); err != nil {
				return nil, err
			}
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

func scanStory(row *sql.Row) (*Story, error) {
	var s Story
	var tags sql.NullString
	err := row.Scan(&s.ID, &s.ExternalStoryID, &s.WebsiteID, &s.AuthorUserID, &s.Title, &s.URL,
		&s.Description, &s.Status, &tags, &s.TotalViews, &s.TotalChapters, &s.MetaHash,
		&s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &s.Tags); err != nil {
			return nil, err
		}
	}
	return &s, nil
}
