package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

var RequirementKeywords = []string{
	"requirement", "requirements", "eligibility", "criteria",
	"document", "documents", "certificate", "certificates",
	"需要", "要求", "資格", "文件", "證書",
}

const (
	maxRequirements      = 5
	minRequirementLength = 10
	maxRequirementLength = 200

	// requirementScanLimit bounds the text scanned for requirement snippets.
	requirementScanLimit = 50000

	detailedContentLength = 1000
	longContentLength     = 500
)

// ExtractRequirements returns up to five sentence-like snippets that mention
// a requirement keyword and are between 10 and 200 characters long.
func ExtractRequirements(text string, keywords []string) []string {
	text = truncateRunes(text, requirementScanLimit)
	lowered := lowerAll(keywords)

	out := []string{}
	for _, unit := range splitUnits(text) {
		unit = strings.TrimSpace(unit)
		n := utf8.RuneCountInString(unit)
		if n < minRequirementLength || n > maxRequirementLength {
			continue
		}
		if !containsAny(strings.ToLower(unit), lowered) {
			continue
		}
		out = append(out, unit)
		if len(out) == maxRequirements {
			break
		}
	}
	return out
}

func splitUnits(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '\n', '.', '!', '?', ';', '。', '！', '？', '；':
			return true
		}
		return false
	})
}

// GenerateNotes builds the fixed observational summary joined by "; ".
func GenerateNotes(text string, sig Signals, dateCount int) string {
	var notes []string
	if sig.IsOpen {
		notes = append(notes, "Application appears to be open")
	}
	if sig.IsClosed {
		notes = append(notes, "Application appears to be closed")
	}
	if dateCount > 0 {
		notes = append(notes, fmt.Sprintf("Found %d date(s) in content", dateCount))
	}
	if utf8.RuneCountInString(text) > detailedContentLength {
		notes = append(notes, "Detailed application information available")
	}
	return strings.Join(notes, "; ")
}

// Confidence starts at 0.5 and rises with keyword evidence, dates and content length.
func Confidence(text string, sig Signals, dateCount int) float64 {
	tenths := 5
	if sig.IsOpen || sig.IsClosed {
		tenths += 2
	}
	if dateCount > 0 {
		tenths += 2
	}
	if utf8.RuneCountInString(text) > longContentLength {
		tenths++
	}
	if tenths > 10 {
		tenths = 10
	}
	return float64(tenths) / 10
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
