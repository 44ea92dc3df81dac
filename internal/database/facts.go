package database

import "database/sql"

// UpsertRanking inserts or replaces the current ranking snapshot for a story.
// One current-value row per story; re-import overwrites, it does not append.
func (db *DB) UpsertRanking(r *Ranking) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	_, err := db.conn.Exec(
		`INSERT INTO rankings (id, story_id, website_id, ranking_title, position, recorded_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(story_id) DO UPDATE SET
			ranking_title = excluded.ranking_title,
			position = excluded.position,
			recorded_at = excluded.recorded_at`,
		r.ID, r.StoryID, r.WebsiteID, r.RankingTitle, r.Position,
	)
	return err
}

// UpsertScore inserts or replaces the current score snapshot for a story.
func (db *DB) UpsertScore(s *Score) error {
	if s.ID == "" {
		s.ID = NewID()
	}
	_, err := db.conn.Exec(
		`INSERT INTO scores (id, story_id, website_id, overall_score, total_ratings,
			writing_quality, stability_of_updates, story_development, character_design,
			world_background, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(story_id) DO UPDATE SET
			overall_score = excluded.overall_score,
			total_ratings = excluded.total_ratings,
			writing_quality = excluded.writing_quality,
			stability_of_updates = excluded.stability_of_updates,
			story_development = excluded.story_development,
			character_design = excluded.character_design,
			world_background = excluded.world_background,
			recorded_at = excluded.recorded_at`,
		s.ID, s.StoryID, s.WebsiteID, s.Overall, s.TotalRatings,
		s.WritingQuality, s.StabilityOfUpdates, s.StoryDevelopment, s.CharacterDesign,
		s.WorldBackground,
	)
	return err
}

// GetRankingForStory returns the current ranking snapshot, or nil.
func (db *DB) GetRankingForStory(storyID string) (*Ranking, error) {
	row := db.conn.QueryRow(
		`SELECT id, story_id, website_id, ranking_title, position, recorded_at
		FROM rankings WHERE story_id = ?`, storyID,
	)
	var r Ranking
	err := row.Scan(&r.ID, &r.StoryID, &r.WebsiteID, &r.RankingTitle, &r.Position, &r.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetScoreForStory returns the current score snapshot, or nil.
func (db *DB) GetScoreForStory(storyID string) (*Score, error) {
	row := db.conn.QueryRow(
		`SELECT id, story_id, website_id, overall_score, total_ratings, writing_quality,
			stability_of_updates, story_development, character_design, world_background, recorded_at
		FROM scores WHERE story_id = ?`, storyID,
	)
	var s Score
	err := row.Scan(&s.ID, &s.StoryID, &s.WebsiteID, &s.Overall, &s.TotalRatings,
		&s.WritingQuality, &s.StabilityOfUpdates, &s.StoryDevelopment, &s.CharacterDesign,
		&s.WorldBackground, &s.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
