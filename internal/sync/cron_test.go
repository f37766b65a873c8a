// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package sync

import (
	"testing"
	"time"
)

func TestParseScheduleErrors(t *testing.T) {
	tests := []string{
		"",
		"0 2 * *",
		"0 2 * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * 32 * *",
		"* * * 13 *",
		"* * * * 8",
		"*/0 * * * *",
		"5-2 * * * *",
		"a * * * *",
		"* * * frb *",
		"* * * * funday",
		"* mon * * *",
	}
	for _, expr := range tests {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) succeeded, want error", expr)
		}
	}
}

func TestScheduleNext(t *testing.T) {
	// Friday 2026-08-21 10:30 UTC.
	base := time.Date(2026, 8, 21, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		// The nightly jobs.
		{"0 1 * * *", time.Date(2026, 8, 22, 1, 0, 0, 0, time.UTC)},
		{"0 2 * * *", time.Date(2026, 8, 22, 2, 0, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 8, 22, 3, 0, 0, 0, time.UTC)},
		// Same day when the slot is still ahead.
		{"0 11 * * *", time.Date(2026, 8, 21, 11, 0, 0, 0, time.UTC)},
		// Steps.
		{"*/15 * * * *", time.Date(2026, 8, 21, 10, 45, 0, 0, time.UTC)},
		// Weekly: next Monday.
		{"0 9 * * 1", time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)},
		// Day 7 is Sunday.
		{"0 9 * * 7", time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)},
		// Monthly.
		{"0 0 1 * *", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		// Lists and ranges.
		{"0 10,14 * * *", time.Date(2026, 8, 21, 14, 0, 0, 0, time.UTC)},
		{"30-40 10 * * *", time.Date(2026, 8, 21, 10, 31, 0, 0, time.UTC)},
		// Names, case-insensitive.
		{"0 9 * * MON", time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)},
		{"0 9 * * mon-fri", time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)},
		{"0 0 1 sep *", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{"0 0 1 jan,jul *", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			sched, err := ParseSchedule(tt.expr)
			if err != nil {
				t.Fatalf("ParseSchedule: %v", err)
			}
			if got := sched.Next(base, time.UTC); !got.Equal(tt.want) {
				t.Errorf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduleNextIsStrictlyAfter(t *testing.T) {
	sched, err := ParseSchedule("0 2 * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	// Exactly on the slot: next fire is tomorrow.
	at := time.Date(2026, 8, 21, 2, 0, 0, 0, time.UTC)
	want := time.Date(2026, 8, 22, 2, 0, 0, 0, time.UTC)
	if got := sched.Next(at, time.UTC); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestScheduleDomDowUnion(t *testing.T) {
	// "the 15th OR any Monday", standard cron OR semantics.
	sched, err := ParseSchedule("0 0 15 * 1")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	// From Friday 2026-08-21: Monday the 24th comes before the 15th of
	// September.
	base := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	want := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	if got := sched.Next(base, time.UTC); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}

	// From the 25th: Monday the 31st comes before September 15th.
	base = time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	want = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	if got := sched.Next(base, time.UTC); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestScheduleTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	sched, err := ParseSchedule("0 2 * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	// 01:00 New York on 2026-08-21 is 05:00 UTC; the 02:00 local slot is
	// one hour out.
	base := time.Date(2026, 8, 21, 5, 0, 0, 0, time.UTC)
	got := sched.Next(base, loc)
	want := time.Date(2026, 8, 21, 2, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}
