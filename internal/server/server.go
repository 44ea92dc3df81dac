// Package server is a local read-only browser over the imported library:
// story list, story detail, chapter text.
package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"novelharvest/internal/database"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server serves the library pages.
type Server struct {
	db    *database.DB
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB) (*Server, error) {
	funcMap := template.FuncMap{
		"prose": renderProse,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"rating": func(f *float64) float64 {
			if f == nil {
				return 0
			}
			return *f
		},
	}

	// Each page clones the base so it gets its own {{define "content"}}.
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"index.html", "story.html", "chapter.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/story/", s.handleStory)
	s.mux.HandleFunc("/chapter/", s.handleChapter)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	stories, err := s.db.ListStories()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, _ := s.db.GetStats()

	s.render(w, "index.html", map[string]any{
		"Stories": stories,
		"Stats":   stats,
	})
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/story/")
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	story, err := s.db.GetStoryByID(id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if story == nil {
		http.NotFound(w, r)
		return
	}

	chapters, _ := s.db.GetChaptersForStory(story.ID)
	reviews, _ := s.db.GetReviewsForStory(story.ID)
	comments, _ := s.db.GetCommentsForStory(story.ID)
	ranking, _ := s.db.GetRankingForStory(story.ID)
	score, _ := s.db.GetScoreForStory(story.ID)

	s.render(w, "story.html", map[string]any{
		"Story":    story,
		"Author":   s.username(story.AuthorUserID),
		"Chapters": chapters,
		"Reviews":  s.reviewViews(reviews),
		"Comments": s.commentViews(comments),
		"Ranking":  ranking,
		"Score":    score,
	})
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/chapter/")
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	chapter, err := s.db.GetChapterByID(id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if chapter == nil {
		http.NotFound(w, r)
		return
	}

	story, _ := s.db.GetStoryByID(chapter.StoryID)
	content, _ := s.db.GetChapterContent(chapter.ID)
	text := ""
	if content != nil {
		text = content.Content
	}

	s.render(w, "chapter.html", map[string]any{
		"Chapter": chapter,
		"Story":   story,
		"Content": text,
	})
}

// commentView pairs a comment with its resolved display name.
type commentView struct {
	database.Comment
	Username string
}

type reviewView struct {
	database.Review
	Username string
}

func (s *Server) commentViews(comments []database.Comment) []commentView {
	out := make([]commentView, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentView{Comment: c, Username: s.username(c.UserID)})
	}
	return out
}

func (s *Server) reviewViews(reviews []database.Review) []reviewView {
	out := make([]reviewView, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, reviewView{Review: r, Username: s.username(r.UserID)})
	}
	return out
}

func (s *Server) username(userID *string) string {
	if userID == nil {
		return "anonymous"
	}
	u, err := s.db.GetUserByID(*userID)
	if err != nil || u == nil {
		return "anonymous"
	}
	return u.Username
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

// renderProse converts stored chapter text (blank-line paragraphs) to HTML.
func renderProse(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, port int) error {
	srv, err := New(db)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
