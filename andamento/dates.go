package andamento

import (
	"errors"
	"net/url"
	"regexp"
	"time"
)

const DateLayout = "2006-01-02"

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	ErrInvalidDate = errors.New("andamento: invalid date, want YYYY-MM-DD")
)

// IsValidDate aceita só YYYY-MM-DD que exista no calendário (2024-02-30 não passa).
func IsValidDate(s string) bool {
	if !datePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// DefaultRange vai do primeiro dia do mês de now até now, no fuso de now.
func DefaultRange(now time.Time) (start, final string) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.Format(DateLayout), now.Format(DateLayout)
}

// ResolveRange lê startDate e finalDate da query, completando com DefaultRange.
func ResolveRange(q url.Values, now time.Time) (start, final string, err error) {
	start, final = DefaultRange(now)
	if v := q.Get("startDate"); v != "" {
		if !IsValidDate(v) {
			return "", "", ErrInvalidDate
		}
		start = v
	}
	if v := q.Get("finalDate"); v != "" {
		if !IsValidDate(v) {
			return "", "", ErrInvalidDate
		}
		final = v
	}
	return start, final, nil
}
