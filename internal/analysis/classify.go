package analysis

import (
	"strings"

	"github.com/hkschools/admission-monitor/internal/models"
)

// OpenKeywords indicate an admission window that is accepting applications.
var OpenKeywords = []string{
	"application open", "applications open", "admission open", "admissions open",
	"enrollment open", "enrollments open", "registration open", "registrations open",
	"apply now", "apply online", "start application", "begin application",
	"application period", "admission period", "enrollment period",
	"accepting applications", "accepting students", "taking applications",
	"application form", "admission form", "enrollment form",
	"報名開始", "招生開始", "申請開始", "入學申請", "報名表格",
}

// CloseKeywords indicate a window that has ended.
var CloseKeywords = []string{
	"application closed", "applications closed", "admission closed", "admissions closed",
	"enrollment closed", "enrollments closed", "registration closed", "registrations closed",
	"no longer accepting", "not accepting",
	"application ended", "admission ended", "enrollment ended", "registration ended",
	"application deadline passed", "admission deadline passed", "enrollment deadline passed",
	"報名結束", "招生結束", "申請結束", "截止日期已過",
}

// Signals reports which keyword families matched. Both can be true.
type Signals struct {
	IsOpen   bool
	IsClosed bool
}

// Status resolves the signals. Closing phrases win over opening phrases.
func (s Signals) Status() models.WindowStatus {
	switch {
	case s.IsClosed:
		return models.StatusClosed
	case s.IsOpen:
		return models.StatusOpen
	default:
		return models.StatusUnknown
	}
}

// Classifier matches lower-cased text against two phrase lists.
type Classifier struct {
	open   []string
	closed []string
}

func NewClassifier(openPhrases, closedPhrases []string) *Classifier {
	return &Classifier{open: lowerAll(openPhrases), closed: lowerAll(closedPhrases)}
}

func (c *Classifier) Classify(text string) Signals {
	lower := strings.ToLower(text)
	return Signals{
		IsOpen:   containsAny(lower, c.open),
		IsClosed: containsAny(lower, c.closed),
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
