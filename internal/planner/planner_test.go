package planner

import (
	"errors"
	"testing"
	"time"

	"MacroTracker/internal/series"
)

var (
	epoch = series.NewDate(2022, time.January, 1)
	floor = series.NewDate(2010, time.January, 1)
	today = series.NewDate(2024, time.March, 15)
)

func TestExplicitSinceOverwrites(t *testing.T) {
	since := series.NewDate(2023, time.June, 1)
	cursor := series.Cursor{Series: "daily", Last: series.NewDate(2024, time.March, 10), Valid: true}

	// An explicit start date wins over the cursor.
	p, err := Daily(cursor, &since, today, epoch, floor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Mode != ModeOverwrite {
		t.Errorf("expected overwrite, got %s", p.Mode)
	}
	if p.Since != since || p.Until != today {
		t.Errorf("window: got [%s, %s]", p.Since, p.Until)
	}
}

func TestCursorAppendBoundary(t *testing.T) {
	cursor := series.Cursor{Series: "daily", Last: series.NewDate(2024, time.March, 10), Valid: true}

	p, err := Daily(cursor, nil, today, epoch, floor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Mode != ModeAppend {
		t.Errorf("expected append, got %s", p.Mode)
	}
	if p.Since != series.NewDate(2024, time.March, 11) {
		t.Errorf("window must start the day after the cursor, got %s", p.Since)
	}
	if p.Until != today {
		t.Errorf("until: got %s", p.Until)
	}
}

func TestFirstRunBackfillsFromEpoch(t *testing.T) {
	p, err := Daily(series.Cursor{}, nil, today, epoch, floor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Mode != ModeOverwrite {
		t.Errorf("expected overwrite on first run, got %s", p.Mode)
	}
	if p.Since != epoch {
		t.Errorf("expected epoch start, got %s", p.Since)
	}
}

func TestUpToDateIsNoOp(t *testing.T) {
	cursor := series.Cursor{Series: "daily", Last: today, Valid: true}

	p, err := Daily(cursor, nil, today, epoch, floor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Mode != ModeNoOp {
		t.Errorf("expected no-op when cursor is at today, got %s", p.Mode)
	}
}

func TestIncrementalIdempotence(t *testing.T) {
	// First run appends up to today; with no new upstream data the cursor
	// advances to today and the second plan is a no-op.
	cursor := series.Cursor{Series: "daily", Last: series.NewDate(2024, time.March, 10), Valid: true}

	first, err := Daily(cursor, nil, today, epoch, floor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Mode != ModeAppend {
		t.Fatalf("expected append, got %s", first.Mode)
	}

	cursor.Last = first.Until
	second, err := Daily(cursor, nil, today, epoch, floor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Mode != ModeNoOp {
		t.Errorf("expected no-op on the second run, got %s", second.Mode)
	}
}

func TestFutureSinceRejected(t *testing.T) {
	since := today.AddDays(1)
	_, err := Daily(series.Cursor{}, &since, today, epoch, floor)
	if !errors.Is(err, ErrSinceInFuture) {
		t.Errorf("expected ErrSinceInFuture, got %v", err)
	}
}

func TestSinceBeforeFloorRejected(t *testing.T) {
	since := series.NewDate(1999, time.December, 31)
	_, err := Daily(series.Cursor{}, &since, today, epoch, floor)
	if !errors.Is(err, ErrSinceBeforeFloor) {
		t.Errorf("expected ErrSinceBeforeFloor, got %v", err)
	}
}

func TestSinceEqualTodayAllowed(t *testing.T) {
	since := today
	p, err := Daily(series.Cursor{}, &since, today, epoch, floor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Mode != ModeOverwrite || p.Since != today {
		t.Errorf("got %+v", p)
	}
}
