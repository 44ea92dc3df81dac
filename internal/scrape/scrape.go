// Package scrape acquires story units from a platform: an outer pool over
// stories, an inner pool over each story's chapters, every navigation passing
// the shared rate limiter. Completed (or partially gathered) units are handed
// to the record emitter.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"novelharvest/internal/record"
	"novelharvest/internal/session"
)

// PageGetter is the slice of a session the pool needs.
type PageGetter interface {
	Get(ctx context.Context, target string) (string, error)
}

// SessionFactory builds one fresh session per acquisition unit. Sessions are
// not shared across concurrent navigations; chapter workers get their own,
// warm-started from the cookies the story session persisted.
type SessionFactory func() (PageGetter, error)

// Limiter gates every navigation. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// ChapterRef is one entry of a story's chapter index: enough to fetch and
// order the chapter before its page has been seen.
type ChapterRef struct {
	SourceID string
	Name     string
	URL      string
	Order    int
}

// Extractor turns fetched pages into record structures.
type Extractor interface {
	// Story parses a story landing page into its metadata and chapter index.
	Story(html, pageURL string) (*record.Story, []ChapterRef, error)

	// Chapter parses one chapter page.
	Chapter(html string, ref ChapterRef) (*record.Chapter, error)
}

// Options bound the pools and the per-story workload.
type Options struct {
	StoryWorkers   int
	ChapterWorkers int
	MaxChapters    int // 0 = all
	MaxComments    int // per level; 0 = all
	ChapterDelay   time.Duration
}

// Result tallies one acquisition run.
type Result struct {
	mu             sync.Mutex
	StoriesOK      int
	StoriesFailed  int
	ChaptersOK     int
	ChaptersFailed int
	Emitted        []string
	Errors         []string
}

func (r *Result) storyDone(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StoriesOK++
	r.Emitted = append(r.Emitted, path)
}

func (r *Result) storyFailed(target string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StoriesFailed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", target, err))
}

func (r *Result) chapterDone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ChaptersOK++
}

func (r *Result) chapterFailed(ref ChapterRef, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ChaptersFailed++
	r.Errors = append(r.Errors, fmt.Sprintf("chapter %d (%s): %v", ref.Order, ref.URL, err))
}

// Scraper runs the two-tier acquisition.
type Scraper struct {
	sessions  SessionFactory
	extractor Extractor
	limiter   Limiter
	emitter   *record.Emitter
	opts      Options

	retryBackoff time.Duration
}

// New assembles a scraper. Zero worker counts default to 1.
func New(sessions SessionFactory, extractor Extractor, limiter Limiter, emitter *record.Emitter, opts Options) *Scraper {
	if opts.StoryWorkers <= 0 {
		opts.StoryWorkers = 1
	}
	if opts.ChapterWorkers <= 0 {
		opts.ChapterWorkers = 1
	}
	return &Scraper{
		sessions:     sessions,
		extractor:    extractor,
		limiter:      limiter,
		emitter:      emitter,
		opts:         opts,
		retryBackoff: 2 * time.Second,
	}
}

// Run acquires every target. A failed story is recorded and skipped, never
// aborting the batch. On interrupt, units already gathered in memory are
// still flushed to disk before Run returns.
func (s *Scraper) Run(ctx context.Context, targets []string) (*Result, error) {
	res := &Result{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.StoryWorkers)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := s.acquireStory(gctx, target, res); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				log.Printf("scrape: story %s failed: %v", target, err)
				res.storyFailed(target, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return res, err
	}
	return res, nil
}

// acquireStory fetches the story page, fans out over its chapters, and emits
// the aggregate. The aggregate is emitted even when the run is interrupted
// partway through the chapter list.
func (s *Scraper) acquireStory(ctx context.Context, target string, res *Result) error {
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	sess, err := s.sessions()
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	html, err := s.getWithRetry(ctx, sess, target)
	if err != nil {
		return err
	}

	story, refs, err := s.extractor.Story(html, target)
	if err != nil {
		return fmt.Errorf("parsing story page: %w", err)
	}
	story.Comments = capComments(story.Comments, s.opts.MaxComments)
	if s.opts.MaxChapters > 0 && len(refs) > s.opts.MaxChapters {
		refs = refs[:s.opts.MaxChapters]
	}
	log.Printf("scrape: %s: %d chapters queued", story.Name, len(refs))

	chapters := make([]*record.Chapter, len(refs))
	cg, cctx := errgroup.WithContext(ctx)
	cg.SetLimit(s.opts.ChapterWorkers)
	for i, ref := range refs {
		i, ref := i, ref
		cg.Go(func() error {
			if cctx.Err() != nil {
				return cctx.Err()
			}
			ch, err := s.acquireChapter(cctx, ref)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				log.Printf("scrape: chapter %d of %s failed: %v", ref.Order, story.Name, err)
				res.chapterFailed(ref, err)
				return nil
			}
			chapters[i] = ch
			res.chapterDone()
			return nil
		})
	}
	interrupted := cg.Wait()

	for _, ch := range chapters {
		if ch != nil {
			story.Chapters = append(story.Chapters, *ch)
		}
	}
	sort.Slice(story.Chapters, func(a, b int) bool {
		return story.Chapters[a].Order < story.Chapters[b].Order
	})

	path, err := s.emitter.Emit(story)
	if err != nil {
		return fmt.Errorf("emitting record: %w", err)
	}
	res.storyDone(path)
	if interrupted != nil {
		log.Printf("scrape: %s flushed with %d/%d chapters after interrupt", story.Name, len(story.Chapters), len(refs))
		return interrupted
	}
	return nil
}

func (s *Scraper) acquireChapter(ctx context.Context, ref ChapterRef) (*record.Chapter, error) {
	if s.opts.ChapterDelay > 0 {
		jitter := time.Duration(rand.Int63n(int64(s.opts.ChapterDelay)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.ChapterDelay + jitter):
		}
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	sess, err := s.sessions()
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	html, err := s.getWithRetry(ctx, sess, ref.URL)
	if err != nil {
		return nil, err
	}
	ch, err := s.extractor.Chapter(html, ref)
	if err != nil {
		return nil, fmt.Errorf("parsing chapter page: %w", err)
	}
	ch.Comments = capComments(ch.Comments, s.opts.MaxComments)
	return ch, nil
}

// getWithRetry retries once on a transport timeout. Blocked is definitive
// and never retried.
func (s *Scraper) getWithRetry(ctx context.Context, sess PageGetter, target string) (string, error) {
	html, err := sess.Get(ctx, target)
	if err == nil {
		return html, nil
	}
	if !errors.Is(err, session.ErrTimedOut) {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.retryBackoff):
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	return sess.Get(ctx, target)
}

func capComments(comments []record.Comment, max int) []record.Comment {
	if max > 0 && len(comments) > max {
		return comments[:max]
	}
	return comments
}
