package analysis

import (
	"regexp"
	"time"
)

// RangeRule is a named range-phrase pattern with exactly two date captures.
type RangeRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultRangeRules are tried in order; the first match whose two captures
// both parse decides the range.
var DefaultRangeRules = []RangeRule{
	{
		Name:    "english-from-to",
		Pattern: regexp.MustCompile(`(?i)(?:from|between|starting|beginning)\s+(` + numericDate + `)\s+(?:to|until|through|ending|and)\s+(` + numericDate + `)`),
	},
	{
		Name:    "english-pair",
		Pattern: regexp.MustCompile(`(?i)(` + numericDate + `)\s+(?:to|until|through)\s+(` + numericDate + `)`),
	},
	{
		Name:    "chinese-literal-from-to",
		Pattern: regexp.MustCompile(`(?:從|由|開始於)\s*(` + chineseDate + `)\s*(?:至|到|結束於)\s*(` + chineseDate + `)`),
	},
	{
		Name:    "chinese-literal-pair",
		Pattern: regexp.MustCompile(`(` + chineseDate + `)\s*(?:至|到)\s*(` + chineseDate + `)`),
	},
	{
		Name:    "chinese-numeric-from-to",
		Pattern: regexp.MustCompile(`(?:從|由|開始於)\s*(` + numericDate + `)\s*(?:至|到|結束於)\s*(` + numericDate + `)`),
	},
	{
		Name:    "chinese-numeric-pair",
		Pattern: regexp.MustCompile(`(` + numericDate + `)\s*(?:至|到)\s*(` + numericDate + `)`),
	},
}

// RangeResolver infers the application window from range phrases, then from
// the position of the extracted dates relative to now.
type RangeResolver struct {
	rules []RangeRule
}

func NewRangeResolver(rules []RangeRule) *RangeResolver {
	return &RangeResolver{rules: rules}
}

// Resolve returns the start and end of the window. Either may be nil.
// dates must be sorted ascending.
func (r *RangeResolver) Resolve(text string, dates []time.Time, now time.Time) (start, end *time.Time) {
	if s, e, ok := r.explicitRange(text); ok {
		return &s, &e
	}
	if len(dates) == 0 {
		return nil, nil
	}

	future, past := splitByNow(dates, now)
	switch {
	case len(future) >= 2:
		return ptr(future[0]), ptr(future[len(future)-1])
	case len(future) == 1 && len(past) > 0:
		return ptr(past[len(past)-1]), ptr(future[0])
	case len(dates) >= 2:
		return ptr(dates[0]), ptr(dates[len(dates)-1])
	}
	return nil, nil
}

func (r *RangeResolver) explicitRange(text string) (time.Time, time.Time, bool) {
	for _, rule := range r.rules {
		for _, m := range rule.Pattern.FindAllStringSubmatch(text, -1) {
			a, okA := ParseDateToken(m[1])
			b, okB := ParseDateToken(m[2])
			if !okA || !okB {
				continue
			}
			if b.Before(a) {
				a, b = b, a
			}
			return a, b, true
		}
	}
	return time.Time{}, time.Time{}, false
}

// PickDeadline prefers the earliest future date and otherwise the latest
// date overall. dates must be sorted ascending.
func PickDeadline(dates []time.Time, now time.Time) *time.Time {
	if len(dates) == 0 {
		return nil
	}
	future, _ := splitByNow(dates, now)
	if len(future) > 0 {
		return ptr(future[0])
	}
	return ptr(dates[len(dates)-1])
}

// splitByNow partitions sorted dates into those strictly after now and the rest.
func splitByNow(dates []time.Time, now time.Time) (future, past []time.Time) {
	for _, d := range dates {
		if d.After(now) {
			future = append(future, d)
		} else {
			past = append(past, d)
		}
	}
	return future, past
}

func ptr(t time.Time) *time.Time {
	return &t
}
