package schema

import (
	"strconv"
	"strings"
	"time"
)

// epochDayDigits is the longest integer treated as days since 1970-01-01.
// Longer integers are seconds.
const epochDayDigits = 6

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
}

// ParseTime reads the date and timestamp encodings the query API returns:
// integer epoch days for DATE columns, epoch seconds with an optional
// fraction for TIMESTAMP columns, and a handful of textual layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if isDigits(s) && len(s) <= epochDayDigits {
		days, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return time.Unix(0, 0).UTC().AddDate(0, 0, int(days)), true
		}
	}

	if t, ok := parseEpochSeconds(s); ok {
		return t, true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// parseEpochSeconds reads "seconds[.fraction]" without going through a
// float so nanosecond digits survive.
func parseEpochSeconds(s string) (time.Time, bool) {
	whole, frac, _ := strings.Cut(s, ".")
	if !isDigits(whole) {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	var nanos int64
	if frac != "" {
		if !isDigits(frac) || strings.HasPrefix(frac, "-") {
			return time.Time{}, false
		}
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		nanos, _ = strconv.ParseInt(frac, 10, 64)
		if strings.HasPrefix(whole, "-") {
			nanos = -nanos
		}
	}
	return time.Unix(secs, nanos).UTC(), true
}
