package transform

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	viewsRe    = regexp.MustCompile(`^([0-9.]+)\s*([KkMm])?$`)
	relativeRe = regexp.MustCompile(`(?i)^(\d+)\s+(minute|hour|day|week|month|year)s?(\s+ago)?$`)
)

// ParseViews normalizes platform view-count strings ("1.2M", "500K",
// "2,721") to integers. Anything unparseable is zero, never an error.
func ParseViews(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	m := viewsRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		n *= 1_000
	case "M":
		n *= 1_000_000
	}
	return int64(n)
}

// ParseTime resolves a platform timestamp to RFC3339 UTC. Absolute values go
// through dateparse; relative phrases ("3 days", "2 hours ago") resolve
// against now. Unparseable values are nil, never fabricated.
func ParseTime(s string, now time.Time) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if m := relativeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		var t time.Time
		switch strings.ToLower(m[2]) {
		case "minute":
			t = now.Add(-time.Duration(n) * time.Minute)
		case "hour":
			t = now.Add(-time.Duration(n) * time.Hour)
		case "day":
			t = now.AddDate(0, 0, -n)
		case "week":
			t = now.AddDate(0, 0, -7*n)
		case "month":
			t = now.AddDate(0, -n, 0)
		case "year":
			t = now.AddDate(-n, 0, 0)
		}
		out := t.UTC().Format(time.RFC3339)
		return &out
	}

	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	out := t.UTC().Format(time.RFC3339)
	return &out
}
