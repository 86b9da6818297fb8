package analysis

import (
	"testing"
	"time"

	"github.com/hkschools/admission-monitor/internal/models"
)

func TestHasChanged(t *testing.T) {
	base := time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC)
	shifted := func(d time.Duration) *time.Time {
		v := base.Add(d)
		return &v
	}

	tests := []struct {
		name string
		prev models.ApplicationStatus
		next models.AnalysisResult
		want bool
	}{
		{
			name: "open flag flips",
			prev: models.ApplicationStatus{IsOpen: false},
			next: models.AnalysisResult{IsOpen: true},
			want: true,
		},
		{
			name: "closes",
			prev: models.ApplicationStatus{IsOpen: true, Deadline: &base},
			next: models.AnalysisResult{IsOpen: false, Deadline: &base},
			want: true,
		},
		{
			name: "deadline shift of 23 hours ignored",
			prev: models.ApplicationStatus{Deadline: &base},
			next: models.AnalysisResult{Deadline: shifted(23 * time.Hour)},
			want: false,
		},
		{
			name: "deadline shift of exactly 24 hours ignored",
			prev: models.ApplicationStatus{Deadline: &base},
			next: models.AnalysisResult{Deadline: shifted(24 * time.Hour)},
			want: false,
		},
		{
			name: "deadline shift of 25 hours reported",
			prev: models.ApplicationStatus{Deadline: &base},
			next: models.AnalysisResult{Deadline: shifted(25 * time.Hour)},
			want: true,
		},
		{
			name: "earlier deadline reported",
			prev: models.ApplicationStatus{Deadline: &base},
			next: models.AnalysisResult{Deadline: shifted(-72 * time.Hour)},
			want: true,
		},
		{
			name: "new deadline without prior one ignored",
			prev: models.ApplicationStatus{},
			next: models.AnalysisResult{Deadline: &base},
			want: false,
		},
		{
			name: "requirements and notes ignored",
			prev: models.ApplicationStatus{Requirements: []string{"a"}, Notes: "x"},
			next: models.AnalysisResult{Requirements: []string{"b"}, Notes: "y"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasChanged(tt.prev, tt.next); got != tt.want {
				t.Fatalf("HasChanged() = %v, want %v", got, tt.want)
			}
		})
	}
}
