package transform

import (
	"path/filepath"
	"strings"
	"testing"

	"novelharvest/internal/database"
	"novelharvest/internal/record"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestEngine(t *testing.T) (*Engine, *database.DB) {
	t.Helper()
	db := openTestDB(t)
	return NewEngine(db, "Webnovel", "https://www.webnovel.com"), db
}

func sampleRecord() *record.Story {
	return &record.Story{
		PlatformID:      "31415926",
		Name:            "Dao of Testing",
		URL:             "https://example.com/book/dao-of-testing_31415926",
		Author:          "author_one",
		Description:     "A cultivator discovers unit tests.",
		Status:          "Ongoing",
		Tags:            []string{"fantasy", "system"},
		TotalViews:      "1.2M",
		TotalChapters:   2,
		Ratings:         &record.Ratings{Overall: 4.61, TotalRatings: 128},
		RankingTitle:    "Weekly Power Ranking",
		RankingPosition: 7,
		Chapters: []record.Chapter{
			{
				SourceID:      "ch_1",
				Order:         1,
				Name:          "Beginnings",
				Content:       "Once upon a time.",
				PublishedTime: "2024-03-01T10:00:00Z",
				Comments: []record.Comment{
					{
						UserName: "reader",
						Content:  "Nice start",
						Time:     "2 days ago",
						Replies: []record.Comment{
							{UserName: "author_one", Content: "Thanks"},
						},
					},
				},
			},
			{SourceID: "ch_2", Order: 2, Name: "Endings"},
		},
		Comments: []record.Comment{
			{UserName: "critic", Content: "Loved it", Score: &record.Score{Overall: 5}},
			{UserName: "lurker", Content: "Following"},
		},
	}
}

func TestImportCreatesEntityGraph(t *testing.T) {
	e, db := newTestEngine(t)

	res, err := e.ImportRecord(sampleRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected unit errors: %v", res.Errors)
	}
	if res.StoriesCreated != 1 || res.ChaptersCreated != 2 {
		t.Errorf("story/chapter tally: %+v", res)
	}
	// reader + reply + book-level "Following" = 3 comments; "Loved it" is a review.
	if res.CommentsCreated != 3 || res.ReviewsCreated != 1 {
		t.Errorf("comment/review tally: %+v", res)
	}
	// author_one, reader, critic, lurker.
	if res.UsersCreated != 4 {
		t.Errorf("expected 4 users, got %d", res.UsersCreated)
	}

	story, err := db.GetStoryByExternalID("31415926")
	if err != nil || story == nil {
		t.Fatalf("story not found: %v", err)
	}
	if story.Status != database.StatusOngoing || story.TotalViews != 1_200_000 {
		t.Errorf("story normalization: %+v", story)
	}
	if story.AuthorUserID == nil {
		t.Error("expected resolved author")
	}
	if story.MetaHash == "" {
		t.Error("expected metadata digest")
	}

	chapters, _ := db.GetChaptersForStory(story.ID)
	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(chapters))
	}
	if chapters[0].PublishedAt == nil || *chapters[0].PublishedAt != "2024-03-01T10:00:00Z" {
		t.Errorf("published_at = %v", chapters[0].PublishedAt)
	}
	content, _ := db.GetChapterContent(chapters[0].ID)
	if content == nil || content.Content != "Once upon a time." {
		t.Errorf("chapter content = %+v", content)
	}
	if chapters[0].ContentHash == "" {
		t.Error("expected content hash for chapter with text")
	}

	comments, _ := db.GetCommentsForStory(story.ID)
	if len(comments) != 3 {
		t.Fatalf("expected 3 comments, got %d", len(comments))
	}
	for _, c := range comments {
		if c.StoryID != story.ID {
			t.Errorf("comment %s points at foreign story %s", c.ID, c.StoryID)
		}
		if c.ChapterID != nil && *c.ChapterID != chapters[0].ID {
			t.Errorf("chapter comment points at %s, want %s", *c.ChapterID, chapters[0].ID)
		}
	}

	ranking, _ := db.GetRankingForStory(story.ID)
	if ranking == nil || ranking.Position == nil || *ranking.Position != 7 {
		t.Errorf("ranking = %+v", ranking)
	}
	score, _ := db.GetScoreForStory(story.ID)
	if score == nil || score.Overall != 4.61 {
		t.Errorf("score = %+v", score)
	}
}

func TestImportIdempotent(t *testing.T) {
	e, db := newTestEngine(t)

	if _, err := e.ImportRecord(sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before, _ := db.GetStats()

	res, err := e.ImportRecord(sampleRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StoriesSkipped != 1 {
		t.Errorf("expected skip report, got %+v", res)
	}
	if res.StoriesCreated != 0 || res.ChaptersCreated != 0 || res.CommentsCreated != 0 || res.ReviewsCreated != 0 {
		t.Errorf("second import created entities: %+v", res)
	}

	after, _ := db.GetStats()
	if *before != *after {
		t.Errorf("entity counts changed on re-import: %+v -> %+v", before, after)
	}
}

func TestReviewClassification(t *testing.T) {
	e, db := newTestEngine(t)

	rec := &record.Story{
		PlatformID: "200",
		Name:       "Classified",
		URL:        "https://example.com/book/classified_200",
		Chapters: []record.Chapter{
			{
				SourceID: "c200_1",
				Order:    1,
				Comments: []record.Comment{
					// Same shape as the book-level comment below; rating must
					// not promote a chapter comment.
					{UserName: "critic", Content: "Great", Score: &record.Score{Overall: 4}},
				},
			},
		},
		Comments: []record.Comment{
			{UserName: "critic", Content: "Great", Score: &record.Score{Overall: 4}},
			{UserName: "other", Content: "No rating here"},
		},
	}

	res, err := e.ImportRecord(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReviewsCreated != 1 {
		t.Errorf("expected exactly 1 review, got %d", res.ReviewsCreated)
	}
	if res.CommentsCreated != 2 {
		t.Errorf("expected 2 comments, got %d", res.CommentsCreated)
	}

	story, _ := db.GetStoryByExternalID("200")
	reviews, _ := db.GetReviewsForStory(story.ID)
	if len(reviews) != 1 || reviews[0].Rating == nil || *reviews[0].Rating != 4 {
		t.Errorf("reviews = %+v", reviews)
	}
}

func TestRepliesKeepParentAndNeverBecomeReviews(t *testing.T) {
	e, db := newTestEngine(t)

	rec := &record.Story{
		PlatformID: "300",
		Name:       "Threaded",
		URL:        "https://example.com/book/threaded_300",
		Comments: []record.Comment{
			{
				UserName: "top",
				Content:  "parent",
				Replies: []record.Comment{
					// Score on a reply is ignored for classification.
					{UserName: "child", Content: "reply", Score: &record.Score{Overall: 5}},
				},
			},
		},
	}

	res, err := e.ImportRecord(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReviewsCreated != 0 || res.CommentsCreated != 2 {
		t.Fatalf("unexpected tally: %+v", res)
	}

	story, _ := db.GetStoryByExternalID("300")
	comments, _ := db.GetCommentsForStory(story.ID)
	byContent := make(map[string]database.Comment)
	for _, c := range comments {
		byContent[c.Content] = c
	}
	parent, child := byContent["parent"], byContent["reply"]
	if parent.ParentCommentID != nil {
		t.Error("top-level comment has a parent")
	}
	if child.ParentCommentID == nil || *child.ParentCommentID != parent.ID {
		t.Errorf("reply parent = %v, want %s", child.ParentCommentID, parent.ID)
	}
}

func TestReplyDepthGuard(t *testing.T) {
	e, _ := newTestEngine(t)

	// Chain of 13 nested comments; depths 0..10 survive the guard.
	leaf := record.Comment{UserName: "u", Content: "deepest"}
	for i := 0; i < 12; i++ {
		leaf = record.Comment{UserName: "u", Content: "level", Replies: []record.Comment{leaf}}
	}
	rec := &record.Story{
		PlatformID: "400",
		Name:       "Deep",
		URL:        "https://example.com/book/deep_400",
		Comments:   []record.Comment{leaf},
	}

	res, err := e.ImportRecord(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CommentsCreated != 11 {
		t.Errorf("expected 11 comments within the depth bound, got %d", res.CommentsCreated)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "deeper") {
		t.Errorf("expected a truncation error, got %v", res.Errors)
	}
}

func TestAnonymousCommenter(t *testing.T) {
	e, db := newTestEngine(t)

	rec := &record.Story{
		PlatformID: "500",
		Name:       "Anon",
		URL:        "https://example.com/book/anon_500",
		Comments: []record.Comment{
			{Content: "drive-by"},
			{UserName: "Anonymous", Content: "placeholder name"},
			{UserName: "anonymous", Content: "lowercase too"},
		},
	}
	res, err := e.ImportRecord(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UsersCreated != 0 {
		t.Errorf("created %d users for anonymous commenters, want 0", res.UsersCreated)
	}

	story, _ := db.GetStoryByExternalID("500")
	comments, _ := db.GetCommentsForStory(story.ID)
	if len(comments) != 3 {
		t.Fatalf("expected 3 anonymous comments, got %d", len(comments))
	}
	for _, c := range comments {
		if c.UserID != nil {
			t.Errorf("comment %q carries a user id", c.Content)
		}
	}
}

func TestSameUsernameResolvesToOneUser(t *testing.T) {
	e, _ := newTestEngine(t)

	first := &record.Story{PlatformID: "600", Name: "A", URL: "u", Author: "prolific"}
	second := &record.Story{PlatformID: "601", Name: "B", URL: "u", Author: "prolific"}

	res1, err := e.ImportRecord(first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res2, err := e.ImportRecord(second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res1.UsersCreated != 1 || res2.UsersCreated != 0 {
		t.Errorf("expected author identity to collide by username: %d, %d", res1.UsersCreated, res2.UsersCreated)
	}
}

func TestUserGetOrCreateRaceRetried(t *testing.T) {
	e, db := newTestEngine(t)
	site, err := e.resolveWebsite()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A rival writer lands the same user between the miss lookup and the
	// insert; the unique violation must fall back to a re-lookup.
	var rival *database.User
	e.beforeIdentityInsert = func() {
		u, err := db.InsertUser("racer", nil, site.ID)
		if err != nil {
			t.Fatalf("rival insert failed: %v", err)
		}
		rival = u
	}

	res := &UnitResult{}
	u, err := e.resolveUser(res, site, "racer", "")
	if err != nil {
		t.Fatalf("expected the retry to absorb the conflict, got %v", err)
	}
	if rival == nil || u.ID != rival.ID {
		t.Errorf("resolved user %+v, want the rival row", u)
	}
	if res.UsersCreated != 0 {
		t.Errorf("a lost race must not count as a creation, got %d", res.UsersCreated)
	}
}

func TestWebsiteGetOrCreateRaceRetried(t *testing.T) {
	e, db := newTestEngine(t)

	var rival *database.Website
	e.beforeIdentityInsert = func() {
		site, err := db.InsertWebsite("Webnovel", "https://www.webnovel.com")
		if err != nil {
			t.Fatalf("rival insert failed: %v", err)
		}
		rival = site
	}

	site, err := e.resolveWebsite()
	if err != nil {
		t.Fatalf("expected the retry to absorb the conflict, got %v", err)
	}
	if rival == nil || site.ID != rival.ID {
		t.Errorf("resolved website %+v, want the rival row", site)
	}
}

func TestUserCacheSurvivesColdCache(t *testing.T) {
	// A second engine over the same store must find users in the store, not
	// re-insert them.
	db := openTestDB(t)
	e1 := NewEngine(db, "Webnovel", "https://www.webnovel.com")
	if _, err := e1.ImportRecord(&record.Story{PlatformID: "700", Name: "A", URL: "u", Author: "dup"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e2 := NewEngine(db, "Webnovel", "https://www.webnovel.com")
	res, err := e2.ImportRecord(&record.Story{PlatformID: "701", Name: "B", URL: "u", Author: "dup"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.UsersCreated != 0 {
		t.Errorf("expected store lookup to find the existing user, got %d created", res.UsersCreated)
	}
}

func TestStoryExternalIDDerivation(t *testing.T) {
	e, _ := newTestEngine(t)

	if got := e.storyExternalID(&record.Story{PlatformID: "explicit"}); got != "explicit" {
		t.Errorf("explicit id: %q", got)
	}
	if got := e.storyExternalID(&record.Story{URL: "https://example.com/book/tale_987654"}); got != "987654" {
		t.Errorf("url suffix id: %q", got)
	}
	got := e.storyExternalID(&record.Story{URL: "https://example.com/book/tale"})
	if !strings.HasPrefix(got, "gen-") {
		t.Errorf("expected synthesized id, got %q", got)
	}
}

func TestDuplicateChapterWithinRecord(t *testing.T) {
	e, db := newTestEngine(t)

	rec := &record.Story{
		PlatformID: "800",
		Name:       "Revised",
		URL:        "https://example.com/book/revised_800",
		Chapters: []record.Chapter{
			{SourceID: "c800_1", Order: 1, Content: "draft text"},
			{SourceID: "c800_1", Order: 1, Content: "draft text"},
			{SourceID: "c800_1", Order: 1, Content: "revised text"},
		},
	}

	res, err := e.ImportRecord(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ChaptersCreated != 1 || res.ChaptersSkipped != 1 || res.ChaptersUpdated != 1 {
		t.Fatalf("unexpected tally: %+v", res)
	}

	story, _ := db.GetStoryByExternalID("800")
	chapters, _ := db.GetChaptersForStory(story.ID)
	if len(chapters) != 1 {
		t.Fatalf("expected 1 chapter row, got %d", len(chapters))
	}
	content, _ := db.GetChapterContent(chapters[0].ID)
	if content == nil || content.Content != "revised text" {
		t.Errorf("expected replaced content, got %+v", content)
	}
}

func TestImportDir(t *testing.T) {
	e, _ := newTestEngine(t)

	dir := t.TempDir()
	emitter, err := record.NewEmitter(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := emitter.Emit(sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := emitter.Emit(&record.Story{PlatformID: "901", Name: "Other", URL: "u"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	run, err := e.ImportDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Records != 2 || run.RecordsFailed != 0 {
		t.Errorf("record tally: %+v", run)
	}
	if run.StoriesCreated != 2 {
		t.Errorf("expected 2 stories, got %d", run.StoriesCreated)
	}
	if !strings.Contains(run.Summary(), "2 new") {
		t.Errorf("summary = %q", run.Summary())
	}
}
