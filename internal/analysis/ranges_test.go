package analysis

import (
	"testing"
	"time"
)

func TestRangeResolver_ExplicitPhrases(t *testing.T) {
	r := NewRangeResolver(DefaultRangeRules)
	e := NewDateExtractor(DefaultDateRules)
	now := time.Date(2024, 8, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		text      string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "english from to",
			text:      "Applications are open from 01/09/2024 to 31/10/2024.",
			wantStart: day(2024, time.September, 1),
			wantEnd:   day(2024, time.October, 31),
		},
		{
			name:      "chinese literal range",
			text:      "報名時間：從 2024年9月1日 至 2024年10月31日。",
			wantStart: day(2024, time.September, 1),
			wantEnd:   day(2024, time.October, 31),
		},
		{
			name:      "reversed pair is ordered",
			text:      "Registration from 31/10/2024 until 01/09/2024",
			wantStart: day(2024, time.September, 1),
			wantEnd:   day(2024, time.October, 31),
		},
		{
			name:      "chinese numeric range",
			text:      "由01/09/2024至15/09/2024",
			wantStart: day(2024, time.September, 1),
			wantEnd:   day(2024, time.September, 15),
		},
		{
			name:      "from-to rule precedes bare pair",
			text:      "Interviews 01/12/2024 to 05/12/2024. Applications from 01/09/2024 to 31/10/2024.",
			wantStart: day(2024, time.September, 1),
			wantEnd:   day(2024, time.October, 31),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := r.Resolve(tt.text, e.Extract(tt.text), now)
			if start == nil || end == nil {
				t.Fatalf("expected range, got start=%v end=%v", start, end)
			}
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Fatalf("Resolve() = %s..%s, want %s..%s", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestRangeResolver_Fallback(t *testing.T) {
	r := NewRangeResolver(DefaultRangeRules)
	now := time.Date(2024, 8, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		dates     []time.Time
		wantStart *time.Time
		wantEnd   *time.Time
	}{
		{
			name:      "two or more future dates",
			dates:     []time.Time{day(2024, 9, 1), day(2024, 9, 10), day(2024, 10, 1)},
			wantStart: ptr(day(2024, 9, 1)),
			wantEnd:   ptr(day(2024, 10, 1)),
		},
		{
			name:      "one future after past dates",
			dates:     []time.Time{day(2024, 7, 1), day(2024, 8, 1), day(2024, 9, 1)},
			wantStart: ptr(day(2024, 8, 1)),
			wantEnd:   ptr(day(2024, 9, 1)),
		},
		{
			name:      "today counts as past",
			dates:     []time.Time{day(2024, 8, 15), day(2024, 9, 1)},
			wantStart: ptr(day(2024, 8, 15)),
			wantEnd:   ptr(day(2024, 9, 1)),
		},
		{
			name:      "all past",
			dates:     []time.Time{day(2024, 1, 1), day(2024, 2, 1), day(2024, 3, 1)},
			wantStart: ptr(day(2024, 1, 1)),
			wantEnd:   ptr(day(2024, 3, 1)),
		},
		{
			name:  "single future date",
			dates: []time.Time{day(2024, 9, 1)},
		},
		{
			name:  "single past date",
			dates: []time.Time{day(2024, 1, 1)},
		},
		{
			name: "no dates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := r.Resolve("no range phrase here", tt.dates, now)
			assertDatePtr(t, "start", start, tt.wantStart)
			assertDatePtr(t, "end", end, tt.wantEnd)
		})
	}
}

func TestPickDeadline(t *testing.T) {
	now := time.Date(2024, 8, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		dates []time.Time
		want  *time.Time
	}{
		{"earliest future", []time.Time{day(2024, 7, 1), day(2024, 9, 1), day(2024, 10, 1)}, ptr(day(2024, 9, 1))},
		{"latest when all past", []time.Time{day(2024, 1, 1), day(2024, 8, 15)}, ptr(day(2024, 8, 15))},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDatePtr(t, "deadline", PickDeadline(tt.dates, now), tt.want)
		})
	}
}

func assertDatePtr(t *testing.T, label string, got, want *time.Time) {
	t.Helper()
	switch {
	case got == nil && want == nil:
		return
	case got == nil || want == nil:
		t.Fatalf("%s = %v, want %v", label, got, want)
	case !got.Equal(*want):
		t.Fatalf("%s = %s, want %s", label, got, want)
	}
}
