package utils

import (
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

const DateLayout = "2006-01-02"

var nameDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// SortByDate orders items by the acquisition date returned by date. Items
// with the same date keep their relative order.
func SortByDate[T any](items []T, date func(T) time.Time, asc bool) []T {
	sort.SliceStable(items, func(i, j int) bool {
		if asc {
			return date(items[i]).Before(date(items[j]))
		}
		return date(items[i]).After(date(items[j]))
	})
	return items
}

// DateFromName extracts the first YYYY-MM-DD date from the base name of a
// scene or preview file.
func DateFromName(path string) (time.Time, bool) {
	match := nameDate.FindString(filepath.Base(path))
	if match == "" {
		return time.Time{}, false
	}
	date, err := time.Parse(DateLayout, match)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
