package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/hkschools/admission-monitor/internal/models"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func day(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

func openLabel(open bool) string {
	if open {
		return "OPEN"
	}
	return "closed"
}

func renderTargets(w io.Writer, targets []models.MonitorTarget) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"School", "Name", "Active", "Freq", "Status", "Deadline", "Last Checked", "OK", "Errors"})
	for _, tg := range targets {
		checked := "never"
		if tg.LastChecked != nil {
			checked = tg.LastChecked.Format("2006-01-02 15:04")
		}
		t.AppendRow(table.Row{
			tg.SchoolNo, tg.SchoolName, tg.IsActive, tg.CheckFrequency,
			openLabel(tg.ApplicationStatus.IsOpen), day(tg.ApplicationStatus.Deadline),
			checked, tg.SuccessCount, tg.ErrorCount,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d schools", len(targets))})
	t.Render()
}

func renderBatch(w io.Writer, b *models.BatchResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"School", "Result", "Changed", "Status", "Deadline", "Notified", "Detail"})
	for _, r := range b.Results {
		result, status, deadline := "ok", "-", "-"
		if !r.Success {
			result = "error"
		}
		if r.ApplicationStatus != nil {
			status = string(r.ApplicationStatus.Status)
			deadline = day(r.ApplicationStatus.Deadline)
		}
		detail := r.Message
		if r.Error != "" {
			detail = r.Error
		}
		t.AppendRow(table.Row{r.SchoolNo, result, r.HasChanged, status, deadline, r.Notified, detail})
	}
	s := b.Summary
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d total", s.Total),
		fmt.Sprintf("%d ok / %d errors", s.Successful, s.Errors),
		fmt.Sprintf("%d changed", s.WithChanges),
		fmt.Sprintf("%d open", s.WithOpenApplications),
	})
	t.Render()
}

func renderAnalysis(w io.Writer, p *models.PageAnalysis) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendRows([]table.Row{
		{"URL", p.URL},
		{"Status", p.Status},
		{"Open date", day(p.OpenDate)},
		{"Close date", day(p.CloseDate)},
		{"Language", p.Language},
		{"Confidence", fmt.Sprintf("%.1f", p.Confidence)},
		{"Notes", p.Notes},
		{"Requirements", strings.Join(p.Requirements, "\n")},
	})
	t.Render()
}

func renderStats(w io.Writer, st *models.MonitoringStats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendRows([]table.Row{
		{"Schools", st.Total},
		{"Active", st.Active},
		{"Inactive", st.Inactive},
		{"Open", st.OpenCount},
		{"Closed", st.ClosedCount},
		{"Successful checks", st.TotalSuccess},
		{"Failed checks", st.TotalErrors},
	})
	for freq, n := range st.ByFrequency {
		t.AppendRow(table.Row{"Frequency " + freq, n})
	}
	t.Render()
}
