package models

import "time"

type WindowStatus string

const (
	StatusOpen    WindowStatus = "open"
	StatusClosed  WindowStatus = "closed"
	StatusUnknown WindowStatus = "unknown"
)

// AnalysisResult is the outcome of one content analysis pass. Dates are
// calendar days at 00:00 UTC.
type AnalysisResult struct {
	Status       WindowStatus `json:"status"`
	IsOpen       bool         `json:"is_open"`
	StartDate    *time.Time   `json:"start_date,omitempty"`
	EndDate      *time.Time   `json:"end_date,omitempty"`
	Deadline     *time.Time   `json:"deadline,omitempty"`
	AllDates     []time.Time  `json:"all_dates"`
	Requirements []string     `json:"requirements"`
	Notes        string       `json:"notes"`
	Confidence   float64      `json:"confidence"`
}

// Snapshot converts the analysis into the persisted status shape.
func (r AnalysisResult) Snapshot(updatedAt time.Time) ApplicationStatus {
	reqs := r.Requirements
	if reqs == nil {
		reqs = []string{}
	}
	return ApplicationStatus{
		IsOpen:       r.IsOpen,
		LastUpdated:  &updatedAt,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		Deadline:     r.Deadline,
		Requirements: reqs,
		Notes:        r.Notes,
	}
}

// MonitorResult is returned for every school check, successful or not.
type MonitorResult struct {
	SchoolNo          string          `json:"school_no"`
	SchoolName        string          `json:"school_name,omitempty"`
	Success           bool            `json:"success"`
	HasChanged        bool            `json:"has_changed"`
	ContentChanged    bool            `json:"content_changed"`
	ApplicationStatus *AnalysisResult `json:"application_status,omitempty"`
	KeywordHits       []string        `json:"keyword_hits,omitempty"`
	Relevant          bool            `json:"relevant"`
	Notified          int             `json:"notified"`
	Message           string          `json:"message,omitempty"`
	Error             string          `json:"error,omitempty"`
}

type BatchSummary struct {
	Total                int `json:"total"`
	Successful           int `json:"successful"`
	WithChanges          int `json:"with_changes"`
	WithOpenApplications int `json:"with_open_applications"`
	Errors               int `json:"errors"`
}

type BatchResult struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Results    []MonitorResult `json:"results"`
	Summary    BatchSummary    `json:"summary"`
}

// Summarize recomputes the summary counters from Results.
func (b *BatchResult) Summarize() {
	s := BatchSummary{Total: len(b.Results)}
	for _, r := range b.Results {
		if r.Success {
			s.Successful++
		} else {
			s.Errors++
		}
		if r.HasChanged {
			s.WithChanges++
		}
		if r.ApplicationStatus != nil && r.ApplicationStatus.IsOpen {
			s.WithOpenApplications++
		}
	}
	b.Summary = s
}

// PageAnalysis is the stateless single-URL analysis.
type PageAnalysis struct {
	URL          string       `json:"url"`
	Status       WindowStatus `json:"status"`
	IsOpen       bool         `json:"is_open"`
	OpenDate     *time.Time   `json:"open_date,omitempty"`
	CloseDate    *time.Time   `json:"close_date,omitempty"`
	Requirements []string     `json:"requirements"`
	Notes        string       `json:"notes"`
	Confidence   float64      `json:"confidence"`
	Language     string       `json:"language"`
}
