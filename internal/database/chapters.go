package database

import "database/sql"

// InsertChapter inserts chapter metadata.
func (db *DB) InsertChapter(c *Chapter) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	_, err := db.conn.Exec(
		`INSERT INTO chapters (id, external_chapter_id, story_id, "order", title, url, published_at, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ExternalChapterID, c.StoryID, c.Order, c.Title, c.URL, c.PublishedAt, c.ContentHash,
	)
	return err
}

// GetChapterByExternalID returns the chapter with the given external id, or nil.
func (db *DB) GetChapterByExternalID(externalChapterID string) (*Chapter, error) {
	row := db.conn.QueryRow(
		`SELECT id, external_chapter_id, story_id, "order", title, url, published_at, content_hash, created_at
		FROM chapters WHERE external_chapter_id = ?`, externalChapterID,
	)
	var c Chapter
	err := row.Scan(&c.ID, &c.ExternalChapterID, &c.StoryID, &c.Order, &c.Title, &c.URL,
		&c.PublishedAt, &c.ContentHash, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChapterByID returns the chapter with the given internal id, or nil.
func (db *DB) GetChapterByID(id string) (*Chapter, error) {
	row := db.conn.QueryRow(
		`SELECT id, external_chapter_id, story_id, "order", title, url, published_at, content_hash, created_at
		FROM chapters WHERE id = ?`, id,
	)
	var c Chapter
	err := row.Scan(&c.ID, &c.ExternalChapterID, &c.StoryID, &c.Order, &c.Title, &c.URL,
		&c.PublishedAt, &c.ContentHash, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChaptersForStory returns a story's chapters ordered by sequence number.
func (db *DB) GetChaptersForStory(storyID string) ([]Chapter, error) {
	rows, err := db.conn.Query(
		`SELECT id, external_chapter_id, story_id, "order", title, url, published_at, content_hash, created_at
		FROM chapters WHERE story_id = ? ORDER BY "order"`, storyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []Chapter
	for rows.Next() {
		var c Chapter
		if err := rows.Scan(&c.ID, &c.ExternalChapterID, &c.StoryID, &c.Order, &c.Title, &c.URL,
			&c.PublishedAt, &c.ContentHash, &c.CreatedAt); err != nil {
			return nil, err
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

// UpdateChapterContentHash records a new content digest for a chapter.
func (db *DB) UpdateChapterContentHash(chapterID, contentHash string) error {
	_, err := db.conn.Exec(
		`UPDATE chapters SET content_hash = ? WHERE id = ?`, contentHash, chapterID,
	)
	return err
}

// InsertChapterContent inserts the text payload for a chapter.
func (db *DB) InsertChapterContent(chapterID, content string, wordCount int) error {
	_, err := db.conn.Exec(
		`INSERT INTO chapter_contents (id, chapter_id, content, word_count) VALUES (?, ?, ?, ?)`,
		NewID(), chapterID, content, wordCount,
	)
	return err
}

// ReplaceChapterContent fully replaces a chapter's text payload. Used when the
// change detector observes a different content hash on re-acquisition.
func (db *DB) ReplaceChapterContent(chapterID, content string, wordCount int) error {
	res, err := db.conn.Exec(
		`UPDATE chapter_contents SET content = ?, word_count = ? WHERE chapter_id = ?`,
		content, wordCount, chapterID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return db.InsertChapterContent(chapterID, content, wordCount)
	}
	return nil
}

// GetChapterContent returns the text payload for a chapter, or nil.
func (db *DB) GetChapterContent(chapterID string) (*ChapterContent, error) {
	row := db.conn.QueryRow(
		`SELECT id, chapter_id, content, word_count, created_at
		FROM chapter_contents WHERE chapter_id = ?`, chapterID,
	)
	var cc ChapterContent
	err := row.Scan(&cc.ID, &cc.ChapterID, &cc.Content, &cc.WordCount, &cc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cc, nil
}
