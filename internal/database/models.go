package database

// Website represents a content platform. One row per platform name.
type Website struct {
	ID           string
	PlatformName string
	PlatformURL  string
	CreatedAt    *string
}

// User is an author or commenter. Identity resolution prefers ExternalUserID
// when the platform exposes one, otherwise falls back to exact username match.
type User struct {
	ID             string
	Username       string
	ExternalUserID *string
	WebsiteID      string
	CreatedAt      *string
}

// Story status values.
const (
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
	StatusUnknown   = "unknown"
)

// Story is one serialized work. ExternalStoryID is the natural key for
// idempotent re-import.
type Story struct {
	ID              string
	ExternalStoryID string
	WebsiteID       string
	AuthorUserID    *string
	Title           string
	URL             string
	Description     *string
	Status          string
	Tags            []string
	TotalViews      int64
	TotalChapters   int
	MetaHash        string
	CreatedAt       *string
	UpdatedAt       *string
}

// Chapter holds chapter metadata. Text lives in ChapterContent so large
// payloads do not inflate metadata queries.
type Chapter struct {
	ID                string
	ExternalChapterID string
	StoryID           string
	Order             int
	Title             string
	URL               string
	PublishedAt       *string
	ContentHash       string
	CreatedAt         *string
}

// ChapterContent is the 1:1 text payload for a chapter.
type ChapterContent struct {
	ID        string
	ChapterID string
	Content   string
	WordCount int
	CreatedAt *string
}

// Comment is a chapter-level or book-level comment. ChapterID nil means
// book-level; UserID nil means anonymous; ParentCommentID nil means top-level.
type Comment struct {
	ID                string
	ExternalCommentID *string
	StoryID           string
	ChapterID         *string
	UserID            *string
	ParentCommentID   *string
	Content           string
	PostedAt          *string
	CreatedAt         *string
}

// Review is a book-level comment that carries a rating.
type Review struct {
	ID               string
	ExternalReviewID *string
	StoryID          string
	UserID           *string
	Content          string
	Rating           *float64
	PostedAt         *string
	CreatedAt        *string
}

// Ranking is the current ranking snapshot for a story.
type Ranking struct {
	ID           string
	StoryID      string
	WebsiteID    string
	RankingTitle *string
	Position     *int
	RecordedAt   *string
}

// Score is the current rating breakdown snapshot for a story.
type Score struct {
	ID                 string
	StoryID            string
	WebsiteID          string
	Overall            float64
	TotalRatings       int
	WritingQuality     float64
	StabilityOfUpdates float64
	StoryDevelopment   float64
	CharacterDesign    float64
	WorldBackground    float64
	RecordedAt         *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Websites        int
	Users           int
	Stories         int
	Chapters        int
	ChapterContents int
	Comments        int
	Reviews         int
	Rankings        int
	Scores          int
}
