// Package transform loads acquired story records into the entity store:
// idempotent at the story and chapter level, with get-or-create identity
// resolution for websites and users.
package transform

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"novelharvest/internal/changedetect"
	"novelharvest/internal/database"
	"novelharvest/internal/record"
)

var urlIDRe = regexp.MustCompile(`_(\d+)/?$`)

// maxReplyDepth bounds the reply worklist on pathological chains.
const maxReplyDepth = 10

// UnitResult tallies one imported record.
type UnitResult struct {
	StoriesCreated  int
	StoriesSkipped  int
	UsersCreated    int
	ChaptersCreated int
	ChaptersSkipped int
	ChaptersUpdated int
	CommentsCreated int
	ReviewsCreated  int
	Errors          []string
}

func (r *UnitResult) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Errors = append(r.Errors, msg)
	log.Printf("import: %s", msg)
}

// RunResult tallies a whole import run.
type RunResult struct {
	UnitResult
	Records       int
	RecordsFailed int
}

func (r *RunResult) add(u *UnitResult) {
	r.StoriesCreated += u.StoriesCreated
	r.StoriesSkipped += u.StoriesSkipped
	r.UsersCreated += u.UsersCreated
	r.ChaptersCreated += u.ChaptersCreated
	r.ChaptersSkipped += u.ChaptersSkipped
	r.ChaptersUpdated += u.ChaptersUpdated
	r.CommentsCreated += u.CommentsCreated
	r.ReviewsCreated += u.ReviewsCreated
	r.Errors = append(r.Errors, u.Errors...)
}

// Summary renders the run tally for the end-of-run report.
func (r *RunResult) Summary() string {
	return fmt.Sprintf(
		"records: %d processed, %d failed | stories: %d new, %d already imported | chapters: %d new, %d updated, %d skipped | comments: %d | reviews: %d | users: %d | errors: %d",
		r.Records, r.RecordsFailed, r.StoriesCreated, r.StoriesSkipped,
		r.ChaptersCreated, r.ChaptersUpdated, r.ChaptersSkipped,
		r.CommentsCreated, r.ReviewsCreated, r.UsersCreated, len(r.Errors),
	)
}

// Engine imports story records. The website and user caches live on the
// engine so one run shares lookups and tests stay isolated.
type Engine struct {
	db           *database.DB
	platformName string
	platformURL  string
	now          func() time.Time

	websites map[string]*database.Website
	users    map[string]*database.User

	// beforeIdentityInsert runs between a store miss and the insert in
	// resolveWebsite/resolveUser. Tests stage a rival writer here.
	beforeIdentityInsert func()
}

// NewEngine creates an import engine for one platform.
func NewEngine(db *database.DB, platformName, platformURL string) *Engine {
	return &Engine{
		db:           db,
		platformName: platformName,
		platformURL:  platformURL,
		now:          time.Now,
		websites:     make(map[string]*database.Website),
		users:        make(map[string]*database.User),
	}
}

// ImportDir imports every record file in dir, one at a time.
func (e *Engine) ImportDir(dir string) (*RunResult, error) {
	files, err := record.List(dir)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	run := &RunResult{}
	for _, path := range files {
		run.Records++
		unit, err := e.ImportFile(path)
		if err != nil {
			run.RecordsFailed++
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", path, err))
			log.Printf("import: record %s failed: %v", path, err)
			continue
		}
		run.add(unit)
	}
	return run, nil
}

// ImportFile imports one record file.
func (e *Engine) ImportFile(path string) (*UnitResult, error) {
	rec, err := record.Load(path)
	if err != nil {
		return nil, err
	}
	return e.ImportRecord(rec)
}

// ImportRecord imports one story unit. A story whose external id already
// exists is skipped whole. Failures before the story row is written abort
// the unit; failures inside one chapter or comment skip that sub-unit only.
func (e *Engine) ImportRecord(rec *record.Story) (*UnitResult, error) {
	res := &UnitResult{}

	site, err := e.resolveWebsite()
	if err != nil {
		return nil, fmt.Errorf("resolving website: %w", err)
	}

	externalID := e.storyExternalID(rec)
	exists, err := e.db.StoryExists(externalID)
	if err != nil {
		return nil, fmt.Errorf("checking story %s: %w", externalID, err)
	}
	if exists {
		log.Printf("import: story %s already imported, skipping", externalID)
		res.StoriesSkipped++
		return res, nil
	}

	var authorID *string
	if rec.Author != "" {
		author, err := e.resolveUser(res, site, rec.Author, "")
		if err != nil {
			return nil, fmt.Errorf("resolving author %q: %w", rec.Author, err)
		}
		authorID = &author.ID
	}

	story := &database.Story{
		ID:              database.NewID(),
		ExternalStoryID: externalID,
		WebsiteID:       site.ID,
		AuthorUserID:    authorID,
		Title:           rec.Name,
		URL:             rec.URL,
		Status:          normalizeStatus(rec.Status),
		Tags:            rec.Tags,
		TotalViews:      ParseViews(rec.TotalViews),
		TotalChapters:   rec.TotalChapters,
		MetaHash:        metaDigest(rec),
	}
	if rec.Description != "" {
		story.Description = &rec.Description
	}
	if err := e.db.InsertStory(story); err != nil {
		return nil, fmt.Errorf("inserting story %s: %w", externalID, err)
	}
	res.StoriesCreated++

	e.upsertFacts(res, site, story, rec)

	for i := range rec.Chapters {
		e.importChapter(res, site, story, &rec.Chapters[i])
	}
	for i := range rec.Comments {
		e.importCommentTree(res, site, story, nil, &rec.Comments[i])
	}
	return res, nil
}

// storyExternalID derives the platform's story id: explicit field, then the
// numeric URL suffix, then a synthesized one. A story without a stable id is
// never deduplicated across runs.
func (e *Engine) storyExternalID(rec *record.Story) string {
	if rec.PlatformID != "" {
		return rec.PlatformID
	}
	if m := urlIDRe.FindStringSubmatch(rec.URL); m != nil {
		return m[1]
	}
	return "gen-" + database.NewID()
}

func (e *Engine) upsertFacts(res *UnitResult, site *database.Website, story *database.Story, rec *record.Story) {
	if rec.RankingTitle != "" || rec.RankingPosition > 0 {
		r := &database.Ranking{StoryID: story.ID, WebsiteID: site.ID}
		if rec.RankingTitle != "" {
			r.RankingTitle = &rec.RankingTitle
		}
		if rec.RankingPosition > 0 {
			pos := rec.RankingPosition
			r.Position = &pos
		}
		if err := e.db.UpsertRanking(r); err != nil {
			res.errorf("ranking for %s: %v", story.ExternalStoryID, err)
		}
	}
	if rec.Ratings != nil {
		s := &database.Score{
			StoryID:            story.ID,
			WebsiteID:          site.ID,
			Overall:            rec.Ratings.Overall,
			TotalRatings:       rec.Ratings.TotalRatings,
			WritingQuality:     rec.Ratings.WritingQuality,
			StabilityOfUpdates: rec.Ratings.StabilityOfUpdates,
			StoryDevelopment:   rec.Ratings.StoryDevelopment,
			CharacterDesign:    rec.Ratings.CharacterDesign,
			WorldBackground:    rec.Ratings.WorldBackground,
		}
		if err := e.db.UpsertScore(s); err != nil {
			res.errorf("score for %s: %v", story.ExternalStoryID, err)
		}
	}
}

// importChapter is chapter-level idempotent: an existing chapter is skipped,
// except that changed content is replaced and its hash updated.
func (e *Engine) importChapter(res *UnitResult, site *database.Website, story *database.Story, ch *record.Chapter) {
	externalID := ch.SourceID
	if externalID == "" {
		externalID = fmt.Sprintf("%s-ch-%d", story.ExternalStoryID, ch.Order)
	}

	existing, err := e.db.GetChapterByExternalID(externalID)
	if err != nil {
		res.errorf("looking up chapter %s: %v", externalID, err)
		return
	}
	if existing != nil {
		if ch.Content == "" {
			res.ChaptersSkipped++
			return
		}
		changed, digest := changedetect.Changed(existing.ContentHash, ch.Content)
		if !changed {
			res.ChaptersSkipped++
			return
		}
		if err := e.db.ReplaceChapterContent(existing.ID, ch.Content, wordCount(ch.Content)); err != nil {
			res.errorf("replacing content of chapter %s: %v", externalID, err)
			return
		}
		if err := e.db.UpdateChapterContentHash(existing.ID, digest); err != nil {
			res.errorf("updating hash of chapter %s: %v", externalID, err)
			return
		}
		res.ChaptersUpdated++
		return
	}

	row := &database.Chapter{
		ID:                database.NewID(),
		ExternalChapterID: externalID,
		StoryID:           story.ID,
		Order:             ch.Order,
		Title:             ch.Name,
		URL:               ch.URL,
		PublishedAt:       ParseTime(ch.PublishedTime, e.now()),
	}
	if ch.Content != "" {
		row.ContentHash = changedetect.Digest(ch.Content)
	}
	if err := e.db.InsertChapter(row); err != nil {
		res.errorf("inserting chapter %s: %v", externalID, err)
		return
	}
	if ch.Content != "" {
		if err := e.db.InsertChapterContent(row.ID, ch.Content, wordCount(ch.Content)); err != nil {
			res.errorf("inserting content of chapter %s: %v", externalID, err)
		}
	}
	res.ChaptersCreated++

	for i := range ch.Comments {
		e.importCommentTree(res, site, story, &row.ID, &ch.Comments[i])
	}
}

type commentWork struct {
	c        *record.Comment
	parentID *string
	depth    int
}

// importCommentTree walks one comment and its replies as an explicit
// worklist. Classification happens only at the root: a book-level comment
// carrying a rating becomes a Review; everything else, replies included,
// becomes a Comment.
func (e *Engine) importCommentTree(res *UnitResult, site *database.Website, story *database.Story, chapterID *string, root *record.Comment) {
	if chapterID == nil && root.Score != nil {
		reviewID := e.importReview(res, site, story, root)
		if reviewID == nil {
			return
		}
		// Review replies live in the comment tree without a parent row.
		for i := range root.Replies {
			e.enqueueReplies(res, site, story, chapterID, &commentWork{c: &root.Replies[i], depth: 1})
		}
		return
	}
	e.enqueueReplies(res, site, story, chapterID, &commentWork{c: root})
}

func (e *Engine) enqueueReplies(res *UnitResult, site *database.Website, story *database.Story, chapterID *string, root *commentWork) {
	work := []*commentWork{root}
	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]

		if item.depth > maxReplyDepth {
			res.errorf("reply chain deeper than %d under story %s, truncating", maxReplyDepth, story.ExternalStoryID)
			continue
		}

		id := e.importComment(res, site, story, chapterID, item)
		if id == nil {
			continue // failed sub-unit; its replies go with it
		}
		for i := range item.c.Replies {
			work = append(work, &commentWork{c: &item.c.Replies[i], parentID: id, depth: item.depth + 1})
		}
	}
}

func (e *Engine) importComment(res *UnitResult, site *database.Website, story *database.Story, chapterID *string, item *commentWork) *string {
	userID, err := e.commenterID(res, site, item.c)
	if err != nil {
		res.errorf("resolving commenter %q: %v", item.c.UserName, err)
		return nil
	}

	c := &database.Comment{
		ID:              database.NewID(),
		StoryID:         story.ID,
		ChapterID:       chapterID,
		UserID:          userID,
		ParentCommentID: item.parentID,
		Content:         item.c.Content,
		PostedAt:        ParseTime(item.c.Time, e.now()),
	}
	if item.c.SourceID != "" {
		c.ExternalCommentID = &item.c.SourceID
	}
	if err := e.db.InsertComment(c); err != nil {
		res.errorf("inserting comment under story %s: %v", story.ExternalStoryID, err)
		return nil
	}
	res.CommentsCreated++
	return &c.ID
}

func (e *Engine) importReview(res *UnitResult, site *database.Website, story *database.Story, c *record.Comment) *string {
	userID, err := e.commenterID(res, site, c)
	if err != nil {
		res.errorf("resolving reviewer %q: %v", c.UserName, err)
		return nil
	}

	rating := c.Score.Overall
	r := &database.Review{
		ID:       database.NewID(),
		StoryID:  story.ID,
		UserID:   userID,
		Content:  c.Content,
		Rating:   &rating,
		PostedAt: ParseTime(c.Time, e.now()),
	}
	if c.SourceID != "" {
		r.ExternalReviewID = &c.SourceID
	}
	if err := e.db.InsertReview(r); err != nil {
		res.errorf("inserting review under story %s: %v", story.ExternalStoryID, err)
		return nil
	}
	res.ReviewsCreated++
	return &r.ID
}

// commenterID resolves the posting user, nil for anonymous. A commenter
// named "Anonymous" is the platform's placeholder, never a User row.
func (e *Engine) commenterID(res *UnitResult, site *database.Website, c *record.Comment) (*string, error) {
	if c.UserName == "" && c.UserID == "" {
		return nil, nil
	}
	if strings.EqualFold(c.UserName, "anonymous") {
		return nil, nil
	}
	name := c.UserName
	if name == "" {
		name = "user-" + c.UserID
	}
	u, err := e.resolveUser(res, site, name, c.UserID)
	if err != nil {
		return nil, err
	}
	return &u.ID, nil
}

// resolveWebsite is get-or-create on platform name: cache, then store, then
// insert. A uniqueness conflict on insert means another writer won the race;
// the lookup is retried once.
func (e *Engine) resolveWebsite() (*database.Website, error) {
	if site, ok := e.websites[e.platformName]; ok {
		return site, nil
	}
	site, err := e.db.GetWebsiteByName(e.platformName)
	if err != nil {
		return nil, err
	}
	if site == nil {
		if e.beforeIdentityInsert != nil {
			e.beforeIdentityInsert()
		}
		site, err = e.db.InsertWebsite(e.platformName, e.platformURL)
		if database.IsUniqueViolation(err) {
			site, err = e.db.GetWebsiteByName(e.platformName)
		}
		if err != nil {
			return nil, err
		}
		if site == nil {
			return nil, fmt.Errorf("website %s vanished after conflict", e.platformName)
		}
	}
	e.websites[e.platformName] = site
	return site, nil
}

// resolveUser is get-or-create on external user id when the platform exposes
// one, else exact username. Same race handling as resolveWebsite.
func (e *Engine) resolveUser(res *UnitResult, site *database.Website, username, externalID string) (*database.User, error) {
	key := "name:" + username
	if externalID != "" {
		key = "ext:" + externalID
	}
	if u, ok := e.users[key]; ok {
		return u, nil
	}

	u, err := e.lookupUser(username, externalID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		var extPtr *string
		if externalID != "" {
			extPtr = &externalID
		}
		if e.beforeIdentityInsert != nil {
			e.beforeIdentityInsert()
		}
		created := true
		u, err = e.db.InsertUser(username, extPtr, site.ID)
		if database.IsUniqueViolation(err) {
			created = false
			u, err = e.lookupUser(username, externalID)
		}
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("user %q vanished after conflict", username)
		}
		if created {
			res.UsersCreated++
		}
	}
	e.users[key] = u
	return u, nil
}

func (e *Engine) lookupUser(username, externalID string) (*database.User, error) {
	if externalID != "" {
		if u, err := e.db.GetUserByExternalID(externalID); err != nil || u != nil {
			return u, err
		}
	}
	return e.db.GetUserByUsername(username)
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ongoing":
		return database.StatusOngoing
	case "completed":
		return database.StatusCompleted
	default:
		return database.StatusUnknown
	}
}

func metaDigest(rec *record.Story) string {
	return changedetect.MetadataDigest(map[string]string{
		"name":        rec.Name,
		"author":      rec.Author,
		"description": rec.Description,
		"status":      rec.Status,
		"tags":        strings.Join(rec.Tags, ","),
		"views":       rec.TotalViews,
	})
}

func wordCount(content string) int {
	return len(strings.Fields(content))
}
