// Package record defines the intermediate JSON document passed from the
// acquisition phase to the import phase: one file per story, field presence
// matters, field order does not.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Story is one acquired story unit with its nested chapters and comments.
type Story struct {
	PlatformID    string   `json:"platform_id,omitempty"`
	Name          string   `json:"name"`
	URL           string   `json:"url"`
	Author        string   `json:"author,omitempty"`
	Description   string   `json:"description,omitempty"`
	Status        string   `json:"status,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	TotalViews    string   `json:"total_views,omitempty"`
	TotalChapters int      `json:"total_chapters,omitempty"`

	Ratings         *Ratings  `json:"ratings,omitempty"`
	RankingTitle    string    `json:"power_ranking_title,omitempty"`
	RankingPosition int       `json:"power_ranking_position,omitempty"`
	Chapters        []Chapter `json:"chapters,omitempty"`
	Comments        []Comment `json:"comments,omitempty"` // book-level
}

// Ratings is the platform's score breakdown for a story.
type Ratings struct {
	Overall            float64 `json:"overall_score"`
	TotalRatings       int     `json:"total_ratings"`
	WritingQuality     float64 `json:"writing_quality,omitempty"`
	StabilityOfUpdates float64 `json:"stability_of_updates,omitempty"`
	StoryDevelopment   float64 `json:"story_development,omitempty"`
	CharacterDesign    float64 `json:"character_design,omitempty"`
	WorldBackground    float64 `json:"world_background,omitempty"`
}

// Chapter is one acquired chapter with its content and comments.
type Chapter struct {
	SourceID      string    `json:"source_id,omitempty"`
	Order         int       `json:"order"`
	Name          string    `json:"name,omitempty"`
	URL           string    `json:"url,omitempty"`
	PublishedTime string    `json:"published_time,omitempty"`
	Content       string    `json:"content,omitempty"`
	Comments      []Comment `json:"comments,omitempty"`
}

// Comment is one acquired comment, review candidate, or reply.
type Comment struct {
	SourceID string    `json:"source_id,omitempty"`
	UserName string    `json:"user_name,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	Time     string    `json:"time,omitempty"`
	Content  string    `json:"content"`
	Score    *Score    `json:"score,omitempty"`
	Replies  []Comment `json:"replies,omitempty"`
}

// Score is a per-comment rating. Only book-level comments carrying one are
// classified as reviews.
type Score struct {
	Overall float64 `json:"overall"`
}

// Emitter persists acquired story units as JSON files in a directory.
type Emitter struct {
	dir string
}

// NewEmitter creates an emitter writing into dir, creating it if needed.
func NewEmitter(dir string) (*Emitter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating record directory: %w", err)
	}
	return &Emitter{dir: dir}, nil
}

// Emit writes one story record and returns the file path. The file name
// carries the external id so the batch runner can check presence cheaply.
func (e *Emitter) Emit(s *Story) (string, error) {
	name := s.PlatformID
	if name == "" {
		name = "story"
	}
	if slug := Slug(s.Name); slug != "" {
		name += "_" + slug
	}
	path := filepath.Join(e.dir, name+".json")

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing record: %w", err)
	}
	return path, nil
}

// Load reads one story record from disk.
func Load(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	var s Story
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", filepath.Base(path), err)
	}
	return &s, nil
}

// List returns the record files in dir, sorted by name.
func List(dir string) ([]string, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	return entries, nil
}

// Slug reduces a title to a short filesystem-safe fragment.
func Slug(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
		if b.Len() >= 40 {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}
