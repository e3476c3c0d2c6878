// Package planner decides the fetch window and destination write mode
// for a sync run, before any network call is made.
package planner

import (
	"errors"
	"fmt"

	"MacroTracker/internal/series"
)

// Mode is the destination write mode for a planned window.
type Mode int

const (
	// ModeNoOp means the destination is already up to date; no fetch, no write.
	ModeNoOp Mode = iota
	// ModeOverwrite rewrites destination rows for the whole window.
	ModeOverwrite
	// ModeAppend adds rows strictly newer than the cursor, never touching
	// existing rows.
	ModeAppend
)

func (m Mode) String() string {
	switch m {
	case ModeOverwrite:
		return "overwrite"
	case ModeAppend:
		return "append"
	default:
		return "noop"
	}
}

// Configuration errors, rejected before any network call.
var (
	ErrSinceInFuture    = errors.New("requested start date is in the future")
	ErrSinceBeforeFloor = errors.New("requested start date is before the epoch floor")
)

// Plan is a resolved fetch window plus write mode.
type Plan struct {
	Since series.Date
	Until series.Date
	Mode  Mode
}

// Daily resolves the window for a daily-series run.
//
//	requested set           → [requested, today], overwrite
//	no request, cursor set  → [cursor+1, today], append
//	no request, no cursor   → [epoch, today], overwrite (first run)
//
// An explicit requested date in the future or before the floor is a
// configuration error, not something to clamp silently. A computed
// window with since > until signals a no-op rather than an empty write.
func Daily(cursor series.Cursor, requested *series.Date, today, epoch, floor series.Date) (Plan, error) {
	if requested != nil {
		if requested.After(today) {
			return Plan{}, fmt.Errorf("%w: %s (today is %s)", ErrSinceInFuture, requested, today)
		}
		if requested.Before(floor) {
			return Plan{}, fmt.Errorf("%w: %s (floor is %s)", ErrSinceBeforeFloor, requested, floor)
		}
		return Plan{Since: *requested, Until: today, Mode: ModeOverwrite}, nil
	}

	if cursor.Valid {
		since := cursor.Last.AddDays(1)
		if since.After(today) {
			return Plan{Mode: ModeNoOp}, nil
		}
		return Plan{Since: since, Until: today, Mode: ModeAppend}, nil
	}

	return Plan{Since: epoch, Until: today, Mode: ModeOverwrite}, nil
}
