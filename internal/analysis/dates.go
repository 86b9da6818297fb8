package analysis

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	numericDate = `\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`
	chineseDate = `\d{4}年\d{1,2}月\d{1,2}日?`
	anyDate     = numericDate + `|` + chineseDate
	monthNames  = `january|february|march|april|may|june|july|august|september|october|november|december`
	programWord = `application|admission|enrollment|registration`
)

var chineseDateParts = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})`)

// DateRule is one named pattern in the date extraction table. Parse turns
// the submatches of a single match into zero or more dates.
type DateRule struct {
	Name    string
	Pattern *regexp.Regexp
	Parse   func(groups []string) []time.Time
}

// DefaultDateRules is the ordered extraction table. Every rule runs; the
// union of their dates is returned.
var DefaultDateRules = []DateRule{
	{
		Name:    "program-deadline",
		Pattern: regexp.MustCompile(`(?i)\b(?:` + programWord + `)\s+(?:deadline|due date|closing date|end date)\s*:?\s*(` + numericDate + `)`),
		Parse:   parseTokenGroups,
	},
	{
		Name:    "deadline",
		Pattern: regexp.MustCompile(`(?i)\b(?:deadline|due date|closing date|end date)\s*:?\s*(` + numericDate + `)`),
		Parse:   parseTokenGroups,
	},
	{
		Name:    "english-from-to",
		Pattern: regexp.MustCompile(`(?i)\b(?:from|between)\s+(` + numericDate + `)\s+(?:to|until|and)\s+(` + numericDate + `)`),
		Parse:   parseTokenGroups,
	},
	{
		Name:    "english-pair",
		Pattern: regexp.MustCompile(`(?i)\b(` + numericDate + `)\s+(?:to|until)\s+(` + numericDate + `)`),
		Parse:   parseTokenGroups,
	},
	{
		Name:    "chinese-program-deadline",
		Pattern: regexp.MustCompile(`(?:報名|招生|申請|入學)\s*(?:截止日期|截止時間|結束日期)\s*[:：]?\s*(` + anyDate + `)`),
		Parse:   parseTokenGroups,
	},
	{
		Name:    "chinese-deadline",
		Pattern: regexp.MustCompile(`(?:截止日期|截止時間|結束日期)\s*[:：]?\s*(` + anyDate + `)`),
		Parse:   parseTokenGroups,
	},
	{
		Name:    "chinese-from-to",
		Pattern: regexp.MustCompile(`(?:從|由|開始於)\s*(` + anyDate + `)\s*(?:至|到|結束於)\s*(` + anyDate + `)`),
		Parse:   parseTokenGroups,
	},
	{
		Name:    "chinese-literal",
		Pattern: regexp.MustCompile(`(` + chineseDate + `)`),
		Parse:   parseTokenGroups,
	},
	{
		Name:    "month-year-program",
		Pattern: regexp.MustCompile(`(?i)\b(?:` + programWord + `)s?\s+(?:for|in)\s+(` + monthNames + `)\s+(\d{4})\b`),
		Parse:   parseMonthYear,
	},
	{
		Name:    "month-year-suffix",
		Pattern: regexp.MustCompile(`(?i)\b(` + monthNames + `)\s+(\d{4})\s+(?:` + programWord + `)`),
		Parse:   parseMonthYear,
	},
}

// DateExtractor applies a rule table to text.
type DateExtractor struct {
	rules []DateRule
}

func NewDateExtractor(rules []DateRule) *DateExtractor {
	return &DateExtractor{rules: rules}
}

// Extract returns every date found by any rule, unique by calendar day and
// sorted ascending. Unparseable tokens are dropped.
func (e *DateExtractor) Extract(text string) []time.Time {
	seen := make(map[time.Time]bool)
	dates := []time.Time{}
	for _, rule := range e.rules {
		for _, groups := range rule.Pattern.FindAllStringSubmatch(text, -1) {
			for _, d := range rule.Parse(groups[1:]) {
				if !seen[d] {
					seen[d] = true
					dates = append(dates, d)
				}
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// RuleMatches reports the dates a single named rule yields; used to audit the table.
func (e *DateExtractor) RuleMatches(name, text string) []time.Time {
	for _, rule := range e.rules {
		if rule.Name != name {
			continue
		}
		var out []time.Time
		for _, groups := range rule.Pattern.FindAllStringSubmatch(text, -1) {
			out = append(out, rule.Parse(groups[1:])...)
		}
		return out
	}
	return nil
}

func parseTokenGroups(groups []string) []time.Time {
	var out []time.Time
	for _, g := range groups {
		if d, ok := ParseDateToken(g); ok {
			out = append(out, d)
		}
	}
	return out
}

func parseMonthYear(groups []string) []time.Time {
	if len(groups) < 2 {
		return nil
	}
	month, ok := monthIndex[strings.ToLower(groups[0])]
	if !ok {
		return nil
	}
	year, err := strconv.Atoi(groups[1])
	if err != nil {
		return nil
	}
	return []time.Time{time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)}
}

var monthIndex = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// ParseDateToken parses a single date token: a Chinese YYYY年M月D日 literal
// or a numeric D/M/Y (dash or slash) token. Numeric tokens are read day-first
// and fall back to month-first, so 03/04/2024 is 3 April 2024.
func ParseDateToken(token string) (time.Time, bool) {
	token = strings.TrimSpace(token)
	if m := chineseDateParts.FindStringSubmatch(token); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return calendarDate(y, mo, d)
	}
	return parseNumericDate(token)
}

func parseNumericDate(token string) (time.Time, bool) {
	parts := strings.FieldsFunc(token, func(r rune) bool { return r == '/' || r == '-' })
	if len(parts) != 3 {
		return time.Time{}, false
	}
	first, err1 := strconv.Atoi(parts[0])
	second, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	switch len(parts[2]) {
	case 2:
		year += 2000
	case 4:
	default:
		return time.Time{}, false
	}

	if d, ok := calendarDate(year, second, first); ok {
		return d, true
	}
	return calendarDate(year, first, second)
}

// calendarDate rejects values time.Date would normalise, such as 31 April.
func calendarDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// DateOnly truncates t to its calendar day in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
