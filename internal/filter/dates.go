package filter

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"

	"github.com/starford/dbfolder/internal/models"
)

// isTimeType reports whether filters on input t compare as instants.
func isTimeType(t string) bool {
	switch models.InputType(t) {
	case models.InputCalendar, models.InputCalendarTime, models.InputMetadataTime:
		return true
	}
	return false
}

// ParseTime reads a cell or literal as a time. Strings accept any layout
// dateparse knows; zone-less values are UTC.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case nil, bool:
		return time.Time{}, false
	}
	s := strings.TrimSpace(cast.ToString(v))
	if s == "" {
		return time.Time{}, false
	}
	parsed, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// compareTime applies an ordering or equality operator to two instants.
// Calendar cells hold days, so both sides are truncated to the date.
// Values that do not parse fall back to the generic comparison.
func compareTime(input, op string, cell any, literal string) bool {
	switch op {
	case models.OperatorEqual, models.OperatorNotEqual,
		models.OperatorGreaterThan, models.OperatorLessThan,
		models.OperatorGreaterThanOrEqual, models.OperatorLessThanOrEqual:
	default:
		return compare(op, cell, literal)
	}
	a, okA := ParseTime(cell)
	b, okB := ParseTime(literal)
	if !okA || !okB {
		return compare(op, cell, literal)
	}
	if models.InputType(input) == models.InputCalendar {
		a = a.UTC().Truncate(24 * time.Hour)
		b = b.UTC().Truncate(24 * time.Hour)
	}
	c := a.Compare(b)
	switch op {
	case models.OperatorEqual:
		return c == 0
	case models.OperatorNotEqual:
		return c != 0
	case models.OperatorGreaterThan:
		return c > 0
	case models.OperatorLessThan:
		return c < 0
	case models.OperatorGreaterThanOrEqual:
		return c >= 0
	}
	return c <= 0
}
