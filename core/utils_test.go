package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCleanOr(t *testing.T) {
	tests := []struct {
		name, s, fallback string
		lower             bool
		want              string
	}{
		{name: "kept", s: "  Hogwarts ", fallback: "x", want: "Hogwarts"},
		{name: "lowered", s: " Office@Hogwarts.TEST", fallback: "x", lower: true, want: "office@hogwarts.test"},
		{name: "blank", s: "   ", fallback: "orig", want: "orig"},
		{name: "empty", fallback: "orig", lower: true, want: "orig"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanOr(tt.s, tt.fallback, tt.lower))
		})
	}
}

func TestDates(t *testing.T) {
	day, err := ParseDate(" 2026-03-10 ")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), day)

	_, err = ParseDate("10/03/2026")
	assert.Error(t, err)

	eat := time.FixedZone("EAT", 3*60*60)
	assert.Equal(t, day, TruncateDay(time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC).In(eat)))
	assert.Equal(t, day.AddDate(0, 0, -1), TruncateDay(time.Date(2026, time.March, 10, 1, 0, 0, 0, eat)))
}

func TestUniqueStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, UniqueStrings([]string{"a", "", "b", "a"}))
	assert.Empty(t, UniqueStrings(nil))
}
