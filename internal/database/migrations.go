package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS websites (
    id TEXT PRIMARY KEY,
    platform_name TEXT UNIQUE NOT NULL,
    platform_url TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL,
    external_user_id TEXT,
    website_id TEXT NOT NULL REFERENCES websites(id),
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS stories (
    id TEXT PRIMARY KEY,
    external_story_id TEXT UNIQUE NOT NULL,
    website_id TEXT NOT NULL REFERENCES websites(id),
    author_user_id TEXT REFERENCES users(id),
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    description TEXT,
    status TEXT NOT NULL DEFAULT 'unknown',
    tags TEXT,
    total_views INTEGER DEFAULT 0,
    total_chapters INTEGER DEFAULT 0,
    meta_hash TEXT NOT NULL DEFAULT '',
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS chapters (
    id TEXT PRIMARY KEY,
    external_chapter_id TEXT UNIQUE NOT NULL,
    story_id TEXT NOT NULL REFERENCES stories(id),
    "order" INTEGER NOT NULL DEFAULT 0,
    title TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    published_at TEXT,
    content_hash TEXT NOT NULL DEFAULT '',
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS chapter_contents (
    id TEXT PRIMARY KEY,
    chapter_id TEXT UNIQUE NOT NULL REFERENCES chapters(id),
    content TEXT NOT NULL,
    word_count INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS comments (
    id TEXT PRIMARY KEY,
    external_comment_id TEXT,
    story_id TEXT NOT NULL REFERENCES stories(id),
    chapter_id TEXT REFERENCES chapters(id),
    user_id TEXT REFERENCES users(id),
    parent_comment_id TEXT REFERENCES comments(id),
    content TEXT NOT NULL DEFAULT '',
    posted_at TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reviews (
    id TEXT PRIMARY KEY,
    external_review_id TEXT,
    story_id TEXT NOT NULL REFERENCES stories(id),
    user_id TEXT REFERENCES users(id),
    content TEXT NOT NULL DEFAULT '',
    rating REAL,
    posted_at TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS rankings (
    id TEXT PRIMARY KEY,
    story_id TEXT UNIQUE NOT NULL REFERENCES stories(id),
    website_id TEXT NOT NULL REFERENCES websites(id),
    ranking_title TEXT,
    position INTEGER,
    recorded_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scores (
    id TEXT PRIMARY KEY,
    story_id TEXT UNIQUE NOT NULL REFERENCES stories(id),
    website_id TEXT NOT NULL REFERENCES websites(id),
    overall_score REAL DEFAULT 0,
    total_ratings INTEGER DEFAULT 0,
    writing_quality REAL DEFAULT 0,
    stability_of_updates REAL DEFAULT 0,
    story_development REAL DEFAULT 0,
    character_design REAL DEFAULT 0,
    world_background REAL DEFAULT 0,
    recorded_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_users_external ON users(external_user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_identity ON users(website_id, username);
CREATE INDEX IF NOT EXISTS idx_chapters_story_order ON chapters(story_id, "order");
CREATE INDEX IF NOT EXISTS idx_comments_story ON comments(story_id);
CREATE INDEX IF NOT EXISTS idx_comments_chapter ON comments(chapter_id);
CREATE INDEX IF NOT EXISTS idx_reviews_story ON reviews(story_id);
CREATE INDEX IF NOT EXISTS idx_rankings_story ON rankings(story_id);
CREATE INDEX IF NOT EXISTS idx_scores_story ON scores(story_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
