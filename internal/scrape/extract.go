package scrape

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"novelharvest/internal/record"
)

var (
	idSuffixRe   = regexp.MustCompile(`_(\d+)/?$`)
	bookPathRe   = regexp.MustCompile(`/book/[^/]*?(\d{4,})`)
	chapterIDRe  = regexp.MustCompile(`(\d{6,})`)
	chapterURLRe = regexp.MustCompile(`/\d{6,}`)
	viewsRe      = regexp.MustCompile(`([\d.,]+\s*[KkMm]?)\s*Views`)
	chaptersRe   = regexp.MustCompile(`([\d,]+)\s*Chapters`)
)

// SiteExtractor parses serialized-fiction pages with goquery, falling back
// to readability extraction for chapter bodies whose markup doesn't match
// the known content selectors.
type SiteExtractor struct {
	platform string
}

// NewSiteExtractor creates an extractor labeling records with platform.
func NewSiteExtractor(platform string) *SiteExtractor {
	return &SiteExtractor{platform: platform}
}

// Story parses a story landing page: metadata, book-level comments, and the
// chapter index in page order.
func (x *SiteExtractor) Story(html, pageURL string) (*record.Story, []ChapterRef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing story page: %w", err)
	}

	s := &record.Story{
		PlatformID: StoryID(pageURL),
		URL:        pageURL,
		Name:       strings.TrimSpace(doc.Find("h1").First().Text()),
		Author:     strings.TrimSpace(doc.Find("a[href*='/profile/']").First().Text()),
	}
	if s.Name == "" {
		return nil, nil, fmt.Errorf("story page has no title: %s", pageURL)
	}

	s.Description = strings.TrimSpace(doc.Find(".j_synopsis, .book-synopsis, [class*='synopsis']").First().Text())

	doc.Find("a[href*='/tags/']").Each(func(_ int, a *goquery.Selection) {
		if tag := strings.TrimSpace(a.Text()); tag != "" {
			s.Tags = append(s.Tags, tag)
		}
	})

	info := doc.Find(".book-info .meta, .book-meta, .book-info").First().Text()
	if m := viewsRe.FindStringSubmatch(info); m != nil {
		s.TotalViews = strings.TrimSpace(m[1])
	}
	if m := chaptersRe.FindStringSubmatch(info); m != nil {
		s.TotalChapters, _ = strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	}
	switch {
	case strings.Contains(info, "Completed"):
		s.Status = "Completed"
	case strings.Contains(info, "Ongoing"):
		s.Status = "Ongoing"
	}

	if score := parseFloatText(doc.Find(".j_score, .score, ._score").First().Text()); score > 0 {
		s.Ratings = &record.Ratings{Overall: score}
		if n := parseIntText(doc.Find(".review-count, .j_review_count").First().Text()); n > 0 {
			s.Ratings.TotalRatings = n
		}
	}
	if rank := doc.Find(".rank-info, .power-rank").First(); rank.Length() > 0 {
		s.RankingTitle = strings.TrimSpace(rank.Find(".rank-title").Text())
		s.RankingPosition = parseIntText(rank.Find(".rank-no, .rank-position").Text())
	}

	s.Comments = parseComments(doc.Find(".m-comment, .book-comments").First())

	refs, err := chapterIndex(doc, pageURL)
	if err != nil {
		return nil, nil, err
	}
	return s, refs, nil
}

// Chapter parses one chapter page. The content selector set covers the known
// reader layouts; readability handles anything else.
func (x *SiteExtractor) Chapter(html string, ref ChapterRef) (*record.Chapter, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing chapter page: %w", err)
	}

	ch := &record.Chapter{
		SourceID: ref.SourceID,
		Order:    ref.Order,
		URL:      ref.URL,
		Name:     strings.TrimSpace(doc.Find("h1, h2.cha-tit, .cha-title").First().Text()),
	}
	if ch.Name == "" {
		ch.Name = ref.Name
	}

	if t := doc.Find("time[datetime]").First(); t.Length() > 0 {
		ch.PublishedTime, _ = t.Attr("datetime")
	} else {
		ch.PublishedTime = strings.TrimSpace(doc.Find(".cha-time, .chapter-time").First().Text())
	}

	var paras []string
	doc.Find(".cha-words p, .chapter-content p, .read-content p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			paras = append(paras, text)
		}
	})
	ch.Content = strings.Join(paras, "\n\n")
	if ch.Content == "" {
		ch.Content = readableText(html, ref.URL)
	}

	ch.Comments = parseComments(doc.Find(".m-comment, .chapter-comments").First())
	return ch, nil
}

// chapterIndex collects chapter links in page order, de-duplicated by URL.
func chapterIndex(doc *goquery.Document, pageURL string) ([]ChapterRef, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url: %w", err)
	}

	var refs []ChapterRef
	seen := make(map[string]struct{})
	doc.Find("a[href*='/book/']").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || !isChapterLink(href) {
			return
		}
		ref, err := base.Parse(href)
		if err != nil {
			return
		}
		abs := ref.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		refs = append(refs, ChapterRef{
			SourceID: lastNumericID(abs),
			Name:     strings.TrimSpace(a.Text()),
			URL:      abs,
			Order:    len(refs) + 1,
		})
	})
	return refs, nil
}

// lastNumericID returns the last long numeric run in a URL: chapter URLs
// embed the book id first and the chapter id after it.
func lastNumericID(s string) string {
	ids := chapterIDRe.FindAllString(s, -1)
	if len(ids) == 0 {
		return ""
	}
	return ids[len(ids)-1]
}

func isChapterLink(href string) bool {
	return strings.Contains(href, "/chapter-") ||
		strings.Contains(href, "/read/") ||
		chapterURLRe.MatchString(href)
}

// parseComments reads a comment block: one level of DOM nesting carries the
// replies.
func parseComments(block *goquery.Selection) []record.Comment {
	var out []record.Comment
	block.Find(".comment-item").Each(func(_ int, item *goquery.Selection) {
		if item.ParentsFiltered(".comment-item").Length() > 0 {
			return // replies are collected by their parent
		}
		out = append(out, parseComment(item))
	})
	return out
}

func parseComment(item *goquery.Selection) record.Comment {
	c := record.Comment{
		UserName: strings.TrimSpace(item.Find(".user-name, .comment-user").First().Text()),
		Time:     strings.TrimSpace(item.Find(".comment-time, time").First().Text()),
		Content:  strings.TrimSpace(item.Find(".comment-content, p").First().Text()),
	}
	if id, ok := item.Attr("data-comment-id"); ok {
		c.SourceID = id
	}
	if uid, ok := item.Find(".user-name, .comment-user").First().Attr("data-user-id"); ok {
		c.UserID = uid
	}
	if raw, ok := item.Attr("data-score"); ok {
		if score, err := strconv.ParseFloat(raw, 64); err == nil {
			c.Score = &record.Score{Overall: score}
		}
	}
	item.Find(".comment-item").Each(func(_ int, reply *goquery.Selection) {
		// Direct replies only: deeper levels are collected by their own parent.
		if reply.ParentsFilteredUntilSelection(".comment-item", item).Length() > 0 {
			return
		}
		c.Replies = append(c.Replies, parseComment(reply))
	})
	return c
}

// StoryID derives the platform's story id from its URL: trailing _NNN slug
// suffix first, then a numeric id in the book path. Empty when neither form
// matches.
func StoryID(pageURL string) string {
	if m := idSuffixRe.FindStringSubmatch(pageURL); m != nil {
		return m[1]
	}
	if m := bookPathRe.FindStringSubmatch(pageURL); m != nil {
		return m[1]
	}
	return ""
}

func readableText(html, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}

func parseFloatText(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseIntText(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(strings.ReplaceAll(s, ",", "")))
	return n
}
