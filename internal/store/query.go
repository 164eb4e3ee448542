package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/tj/go-naturaldate"
)

// RunFilter selects journal entries.
type RunFilter struct {
	// Time filters. Since/Until take priority over Days.
	Since *time.Time // inclusive
	Until *time.Time // inclusive
	Days  int        // last N days

	Status RunStatus
	Limit  int
}

// Apply adds the filter's conditions to sb. Limit is left to the caller.
func (f RunFilter) Apply(sb *sqlbuilder.SelectBuilder, now time.Time) {
	var conds []string

	switch {
	case f.Since != nil || f.Until != nil:
		if f.Since != nil {
			conds = append(conds, sb.GreaterEqualThan("started_at", f.Since.UnixNano()))
		}
		if f.Until != nil {
			conds = append(conds, sb.LessEqualThan("started_at", f.Until.UnixNano()))
		}
	case f.Days > 0:
		conds = append(conds, sb.GreaterEqualThan("started_at", now.AddDate(0, 0, -f.Days).UnixNano()))
	}

	if f.Status != "" {
		conds = append(conds, sb.Equal("status", string(f.Status)))
	}

	if len(conds) > 0 {
		sb.Where(conds...)
	}
}

// ParseTime accepts RFC3339 timestamps, plain dates (2006-01-02) and natural
// language such as "yesterday" or "3 days ago", resolved against now.
func ParseTime(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", input, now.Location()); err == nil {
		return t, nil
	}

	t, err := naturaldate.Parse(input, now, naturaldate.WithDirection(naturaldate.Past))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time '%s': %w", input, err)
	}
	// naturaldate hands back now, without an error, for text it cannot read.
	if t.Equal(now) && !referencesNow(input) {
		return time.Time{}, fmt.Errorf("failed to parse time '%s': unrecognized expression", input)
	}
	return t, nil
}

func referencesNow(input string) bool {
	switch strings.ToLower(input) {
	case "now", "today", "right now":
		return true
	}
	return false
}
