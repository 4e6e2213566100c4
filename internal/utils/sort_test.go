package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortByDate(t *testing.T) {
	d := func(s string) time.Time {
		v, _ := time.Parse(DateLayout, s)
		return v
	}
	items := []time.Time{d("2024-03-01"), d("2023-12-31"), d("2024-01-15")}

	asc := SortByDate(append([]time.Time(nil), items...), func(t time.Time) time.Time { return t }, true)
	assert.Equal(t, []time.Time{d("2023-12-31"), d("2024-01-15"), d("2024-03-01")}, asc)

	desc := SortByDate(append([]time.Time(nil), items...), func(t time.Time) time.Time { return t }, false)
	assert.Equal(t, []time.Time{d("2024-03-01"), d("2024-01-15"), d("2023-12-31")}, desc)
}

func TestDateFromName(t *testing.T) {
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"previews/rotterdam_2024-05-02.png", "2024-05-02", true},
		{"/data/2023-01-09_2023-02-01.png", "2023-01-09", true},
		{"2024-05-02/preview.png", "", false},
		{"rotterdam_2024-13-40.png", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := DateFromName(tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.Format(DateLayout))
			}
		})
	}
}
