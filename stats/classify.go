package stats

import (
	"strconv"
	"strings"
	"time"
)

// classify attempts to widen-classify a single non-empty field value,
// returning the observed Type and, for numeric types, the parsed
// float64 value (isNum indicates whether numeric represents the value).
func classify(s string, opts Options) (observed Type, numeric float64, isNum bool) {
	// Boolean recognition must run before numeric parsing: "0"/"1" are
	// valid integers too, and would always win the ParseInt attempt
	// below, making --infer-boolean dead for the {0,1} spelling.
	if opts.InferBoolean && isRecognizedBoolean(s) {
		return TypeBoolean, 0, false
	}
	if iv, err := strconv.ParseInt(s, 10, 64); err == nil {
		return TypeInteger, float64(iv), true
	}
	if fv, err := strconv.ParseFloat(s, 64); err == nil {
		return TypeFloat, fv, true
	}
	if opts.InferDate {
		if looksLikeDateTime(s) {
			if t, ok := parseDateTime(s, opts.PreferDMY); ok {
				_ = t
				return TypeDateTime, 0, false
			}
		}
		if looksLikeDate(s) {
			if t, ok := parseDate(s, opts.PreferDMY); ok {
				_ = t
				return TypeDate, 0, false
			}
		}
	}
	return TypeString, 0, false
}

func isRecognizedBoolean(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "1", "t", "f", "true", "false":
		return true
	default:
		return false
	}
}

func looksLikeDateTime(s string) bool {
	return strings.Contains(s, "T") || strings.Contains(s, ":")
}

func looksLikeDate(s string) bool {
	if len(s) < 8 || len(s) > 10 {
		return false
	}
	seps := 0
	for _, c := range s {
		if c == '-' || c == '/' {
			seps++
		}
	}
	return seps == 2
}

// dateLayouts and dateTimeLayouts are tried in order; dmy/mdy
// preference swaps the first two date-only layouts, per the
// configuration's explicit dmy/mdy preference field.
func dateLayouts(preferDMY bool) []string {
	if preferDMY {
		return []string{"02-01-2006", "02/01/2006", "2006-01-02"}
	}
	return []string{"01-02-2006", "01/02/2006", "2006-01-02"}
}

var dateTimeLayoutList = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseDate(s string, preferDMY bool) (time.Time, bool) {
	for _, layout := range dateLayouts(preferDMY) {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDateTime(s string, preferDMY bool) (time.Time, bool) {
	for _, layout := range dateTimeLayoutList {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
