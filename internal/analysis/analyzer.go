// Package analysis reads admission-window information out of school web pages:
// page text extraction, open/closed classification, bilingual date extraction,
// range resolution, requirement snippets and change detection. It performs no I/O.
package analysis

import (
	"time"

	"github.com/hkschools/admission-monitor/internal/models"
)

// Options selects which stages run for a target.
type Options struct {
	SkipDates bool
}

// Analyzer bundles the rule tables built once at startup. It is safe for
// concurrent use.
type Analyzer struct {
	extractor  *Extractor
	classifier *Classifier
	dates      *DateExtractor
	ranges     *RangeResolver
	reqWords   []string
	now        func() time.Time
}

// New builds an Analyzer with the default keyword and rule tables. A nil
// clock means time.Now.
func New(now func() time.Time) *Analyzer {
	if now == nil {
		now = time.Now
	}
	return &Analyzer{
		extractor:  NewExtractor(),
		classifier: NewClassifier(OpenKeywords, CloseKeywords),
		dates:      NewDateExtractor(DefaultDateRules),
		ranges:     NewRangeResolver(DefaultRangeRules),
		reqWords:   RequirementKeywords,
		now:        now,
	}
}

// ExtractText is the content extraction stage on its own.
func (a *Analyzer) ExtractText(html string, selectors []string) string {
	return a.extractor.Extract(html, selectors)
}

// Analyze runs classification, date extraction, range resolution and
// requirement extraction over already extracted text.
func (a *Analyzer) Analyze(text string, opts Options) models.AnalysisResult {
	now := a.now()
	sig := a.classifier.Classify(text)

	dates := []time.Time{}
	if !opts.SkipDates {
		dates = a.dates.Extract(text)
	}

	status := sig.Status()
	res := models.AnalysisResult{
		Status:       status,
		IsOpen:       status == models.StatusOpen,
		AllDates:     dates,
		Requirements: ExtractRequirements(text, a.reqWords),
		Notes:        GenerateNotes(text, sig, len(dates)),
		Confidence:   Confidence(text, sig, len(dates)),
	}
	if !opts.SkipDates {
		res.Deadline = PickDeadline(dates, now)
		res.StartDate, res.EndDate = a.ranges.Resolve(text, dates, now)
	}
	return res
}

// Language reports "Chinese" when the text holds any CJK unified ideograph
// in U+4E00..U+9FA5, "English" otherwise.
func Language(text string) string {
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			return "Chinese"
		}
	}
	return "English"
}
