package record

import (
	"path/filepath"
	"strings"
	"testing"
)

func sampleStory() *Story {
	return &Story{
		PlatformID:    "wn_12345",
		Name:          "Dao of Testing",
		URL:           "https://example.com/book/dao-of-testing_12345",
		Author:        "author_one",
		Status:        "Ongoing",
		Tags:          []string{"fantasy"},
		TotalViews:    "1.2M",
		TotalChapters: 2,
		Ratings:       &Ratings{Overall: 4.5, TotalRatings: 100},
		Chapters: []Chapter{
			{
				SourceID: "ch_1",
				Order:    1,
				Name:     "Beginnings",
				Content:  "Once upon a time.",
				Comments: []Comment{
					{
						UserName: "reader",
						Content:  "Nice start",
						Replies: []Comment{
							{UserName: "author_one", Content: "Thanks"},
						},
					},
				},
			},
			{SourceID: "ch_2", Order: 2, Name: "Endings"},
		},
		Comments: []Comment{
			{UserName: "critic", Content: "Loved it", Score: &Score{Overall: 5}},
		},
	}
}

func TestEmitAndLoad(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEmitter(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := e.Emit(sampleStory())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(filepath.Base(path), "wn_12345") {
		t.Errorf("expected external id in file name, got %q", filepath.Base(path))
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Dao of Testing" {
		t.Errorf("expected story name to round-trip, got %q", got.Name)
	}
	if len(got.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(got.Chapters))
	}
	if len(got.Chapters[0].Comments) != 1 || len(got.Chapters[0].Comments[0].Replies) != 1 {
		t.Error("expected nested comment replies to round-trip")
	}
	if got.Comments[0].Score == nil || got.Comments[0].Score.Overall != 5 {
		t.Error("expected book-level comment score to round-trip")
	}
	if got.Chapters[1].Comments != nil {
		t.Error("expected absent comments to stay absent")
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	e, _ := NewEmitter(dir)
	e.Emit(&Story{PlatformID: "wn_2", Name: "B"})
	e.Emit(&Story{PlatformID: "wn_1", Name: "A"})

	files, err := List(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 records, got %d", len(files))
	}
	if !strings.Contains(files[0], "wn_1") {
		t.Errorf("expected sorted order, got %v", files)
	}
}

func TestSlug(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Dao of Testing", "dao-of-testing"},
		{"Hello, World!", "hello-world"},
		{"", ""},
		{"---", ""},
	}
	for _, c := range cases {
		if got := Slug(c.in); got != c.want {
			t.Errorf("Slug(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
