package database

// InsertComment inserts a comment or reply.
func (db *DB) InsertComment(c *Comment) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	_, err := db.conn.Exec(
		`INSERT INTO comments (id, external_comment_id, story_id, chapter_id, user_id,
			parent_comment_id, content, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ExternalCommentID, c.StoryID, c.ChapterID, c.UserID,
		c.ParentCommentID, c.Content, c.PostedAt,
	)
	return err
}

// InsertReview inserts a review.
func (db *DB) InsertReview(r *Review) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	_, err := db.conn.Exec(
		`INSERT INTO reviews (id, external_review_id, story_id, user_id, content, rating, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ExternalReviewID, r.StoryID, r.UserID, r.Content, r.Rating, r.PostedAt,
	)
	return err
}

// GetCommentsForStory returns all comments for a story, including replies.
func (db *DB) GetCommentsForStory(storyID string) ([]Comment, error) {
	rows, err := db.conn.Query(
		`SELECT id, external_comment_id, story_id, chapter_id, user_id, parent_comment_id,
			content, posted_at, created_at
		FROM comments WHERE story_id = ? ORDER BY created_at`, storyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ExternalCommentID, &c.StoryID, &c.ChapterID, &c.UserID,
			&c.ParentCommentID, &c.Content, &c.PostedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// GetReviewsForStory returns all reviews for a story.
func (db *DB) GetReviewsForStory(storyID string) ([]Review, error) {
	rows, err := db.conn.Query(
		`SELECT id, external_review_id, story_id, user_id, content, rating, posted_at, created_at
		FROM reviews WHERE story_id = ? ORDER BY created_at`, storyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.ExternalReviewID, &r.StoryID, &r.UserID,
			&r.Content, &r.Rating, &r.PostedAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
