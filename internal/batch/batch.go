// Package batch walks a queue of story URLs, launching one isolated
// acquisition process per target so each run starts with clean session and
// memory state.
package batch

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"novelharvest/internal/database"
	"novelharvest/internal/scrape"
)

// Runner launches one acquisition run and reports its exit code.
type Runner interface {
	Run(ctx context.Context, target string) (int, error)
}

// ExecRunner runs this binary's scrape command as a child process.
type ExecRunner struct {
	// ExtraArgs are appended to every scrape invocation (--headless, --fast, ...).
	ExtraArgs []string
}

func (r *ExecRunner) Run(ctx context.Context, target string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return -1, fmt.Errorf("locating executable: %w", err)
	}
	args := append([]string{"scrape", target}, r.ExtraArgs...)
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// Options tune one batch run.
type Options struct {
	Limit    int // 0 = whole queue
	Force    bool
	Cooldown time.Duration
	ErrorLog string
}

// Result is the batch tally, printed even after an interrupt.
type Result struct {
	Launched    int
	Succeeded   int
	Skipped     int
	Failed      int
	Interrupted bool
}

// Summary renders the tally for the end-of-batch report.
func (r *Result) Summary() string {
	s := fmt.Sprintf("batch: %d launched, %d succeeded, %d skipped, %d failed",
		r.Launched, r.Succeeded, r.Skipped, r.Failed)
	if r.Interrupted {
		s += " (interrupted)"
	}
	return s
}

// Orchestrator drives the queue.
type Orchestrator struct {
	db     *database.DB
	runner Runner
	opts   Options
}

// New creates an orchestrator over db using runner for each target.
func New(db *database.DB, runner Runner, opts Options) *Orchestrator {
	return &Orchestrator{db: db, runner: runner, opts: opts}
}

// ReadQueue parses the target queue file: one URL per line, blank lines and
// #-comments ignored.
func ReadQueue(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening queue file: %w", err)
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading queue file: %w", err)
	}
	return targets, nil
}

// Run processes targets in order. A target already present in the store is
// skipped unless Force is set. A failed run is logged and does not halt the
// batch. On interrupt the partial tally is returned with Interrupted set.
func (o *Orchestrator) Run(ctx context.Context, targets []string) (*Result, error) {
	res := &Result{}
	if o.opts.Limit > 0 && len(targets) > o.opts.Limit {
		targets = targets[:o.opts.Limit]
	}

	for i, target := range targets {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}

		skip, err := o.alreadyAcquired(target)
		if err != nil {
			return res, err
		}
		if skip {
			log.Printf("batch: %s already in store, skipping", target)
			res.Skipped++
			continue
		}

		log.Printf("batch: [%d/%d] launching %s", i+1, len(targets), target)
		res.Launched++
		code, err := o.runner.Run(ctx, target)
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}
		if err != nil {
			res.Failed++
			o.logError(target, code, err)
			continue
		}
		if code != 0 {
			res.Failed++
			o.logError(target, code, nil)
			continue
		}
		res.Succeeded++

		if i < len(targets)-1 && o.opts.Cooldown > 0 {
			select {
			case <-ctx.Done():
				res.Interrupted = true
			case <-time.After(o.opts.Cooldown):
			}
		}
	}
	return res, nil
}

// alreadyAcquired checks the store for the target's natural external id.
// Targets without a derivable id are always acquired.
func (o *Orchestrator) alreadyAcquired(target string) (bool, error) {
	if o.opts.Force {
		return false, nil
	}
	id := scrape.StoryID(target)
	if id == "" {
		return false, nil
	}
	exists, err := o.db.StoryExists(id)
	if err != nil {
		return false, fmt.Errorf("checking store for %s: %w", id, err)
	}
	return exists, nil
}

// logError appends one line per failed run: timestamp, target, exit code.
func (o *Orchestrator) logError(target string, code int, runErr error) {
	if runErr != nil {
		log.Printf("batch: %s failed: %v", target, runErr)
	} else {
		log.Printf("batch: %s exited with code %d", target, code)
	}
	if o.opts.ErrorLog == "" {
		return
	}
	f, err := os.OpenFile(o.opts.ErrorLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("batch: cannot open error log: %v", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s\t%s\texit=%d\n", database.Now(), target, code)
}
