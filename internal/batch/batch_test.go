package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"novelharvest/internal/database"
)

type fakeRunner struct {
	mu       sync.Mutex
	launched []string
	codes    map[string]int
	onRun    func(target string)
}

func (r *fakeRunner) Run(ctx context.Context, target string) (int, error) {
	r.mu.Lock()
	r.launched = append(r.launched, target)
	code := r.codes[target]
	onRun := r.onRun
	r.mu.Unlock()
	if onRun != nil {
		onRun(target)
	}
	return code, nil
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedStory(t *testing.T, db *database.DB, externalID string) {
	t.Helper()
	site, err := db.InsertWebsite("Webnovel", "https://www.webnovel.com")
	if err != nil {
		site, err = db.GetWebsiteByName("Webnovel")
		if err != nil || site == nil {
			t.Fatalf("failed to resolve website: %v", err)
		}
	}
	err = db.InsertStory(&database.Story{
		ID:              database.NewID(),
		ExternalStoryID: externalID,
		WebsiteID:       site.ID,
		Title:           "seeded",
		URL:             "https://example.com/book/seeded_" + externalID,
		Status:          database.StatusUnknown,
	})
	if err != nil {
		t.Fatalf("failed to seed story: %v", err)
	}
}

var queueTargets = []string{
	"https://example.com/book/one_111111",
	"https://example.com/book/two_222222",
	"https://example.com/book/three_333333",
}

func TestSkipsTargetsAlreadyInStore(t *testing.T) {
	db := openTestDB(t)
	seedStory(t, db, "222222")

	runner := &fakeRunner{codes: map[string]int{}}
	o := New(db, runner, Options{})

	res, err := o.Run(context.Background(), queueTargets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Launched != 2 || res.Skipped != 1 || res.Succeeded != 2 {
		t.Fatalf("unexpected tally: %+v", res)
	}
	if len(runner.launched) != 2 || !strings.Contains(runner.launched[0], "one_") || !strings.Contains(runner.launched[1], "three_") {
		t.Errorf("launched = %v", runner.launched)
	}
}

func TestForceLaunchesAllTargets(t *testing.T) {
	db := openTestDB(t)
	seedStory(t, db, "222222")

	runner := &fakeRunner{codes: map[string]int{}}
	o := New(db, runner, Options{Force: true})

	res, err := o.Run(context.Background(), queueTargets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Launched != 3 || res.Skipped != 0 {
		t.Fatalf("unexpected tally: %+v", res)
	}
}

func TestFailedRunLoggedAndBatchContinues(t *testing.T) {
	db := openTestDB(t)
	errLog := filepath.Join(t.TempDir(), "errors.log")

	runner := &fakeRunner{codes: map[string]int{queueTargets[1]: 2}}
	o := New(db, runner, Options{ErrorLog: errLog})

	res, err := o.Run(context.Background(), queueTargets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Launched != 3 || res.Succeeded != 2 || res.Failed != 1 {
		t.Fatalf("unexpected tally: %+v", res)
	}

	data, err := os.ReadFile(errLog)
	if err != nil {
		t.Fatalf("error log not written: %v", err)
	}
	line := strings.TrimSpace(string(data))
	if !strings.Contains(line, "two_222222") || !strings.Contains(line, "exit=2") {
		t.Errorf("error log line = %q", line)
	}
}

func TestLimitBoundsQueue(t *testing.T) {
	db := openTestDB(t)
	runner := &fakeRunner{codes: map[string]int{}}
	o := New(db, runner, Options{Limit: 2})

	res, err := o.Run(context.Background(), queueTargets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Launched != 2 {
		t.Fatalf("expected limit of 2, got %+v", res)
	}
}

func TestInterruptReturnsPartialTally(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{codes: map[string]int{}}
	runner.onRun = func(target string) {
		if strings.Contains(target, "one_") {
			cancel()
		}
	}
	o := New(db, runner, Options{})

	res, err := o.Run(ctx, queueTargets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Interrupted {
		t.Fatal("expected interrupted result")
	}
	if res.Launched != 1 {
		t.Errorf("expected only the first target launched, got %+v", res)
	}
	if !strings.Contains(res.Summary(), "(interrupted)") {
		t.Errorf("summary = %q", res.Summary())
	}
}

func TestReadQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.txt")
	content := "# queue\nhttps://example.com/book/a_1\n\n  \nhttps://example.com/book/b_2\n# trailing comment\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	targets, err := ReadQueue(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 2 || targets[0] != "https://example.com/book/a_1" {
		t.Errorf("targets = %v", targets)
	}
}

func TestPowerActionCancelled(t *testing.T) {
	called := false
	orig := runPowerCommand
	runPowerCommand = func(name string, args ...string) error {
		called = true
		return nil
	}
	defer func() { runPowerCommand = orig }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := PowerAction(ctx, "off", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if called {
		t.Error("power command must not run after cancellation")
	}
}

func TestPowerActionRuns(t *testing.T) {
	var got string
	orig := runPowerCommand
	runPowerCommand = func(name string, args ...string) error {
		got = name + " " + strings.Join(args, " ")
		return nil
	}
	defer func() { runPowerCommand = orig }()

	if err := PowerAction(context.Background(), "sleep", time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "systemctl suspend" {
		t.Errorf("command = %q", got)
	}
}

func TestPowerActionUnknown(t *testing.T) {
	if err := PowerAction(context.Background(), "reboot", 0); err == nil {
		t.Fatal("expected error for unsupported action")
	}
}
