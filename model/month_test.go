package model

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base2023 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMonthWindows_Labels(t *testing.T) {
	// Tested code
	windows := MonthWindows(base2023, 24)

	// Asserts
	require.Len(t, windows, 24)
	assert.Equal(t, "2023_01", windows[0].Label())
	assert.Equal(t, "2024_02", windows[13].Label())
	assert.Equal(t, "2024_12", windows[23].Label())
	assert.Equal(t, "NDVI_2023_01", windows[0].Description("NDVI"))
	assert.Equal(t, "Jan 2023", windows[0].DisplayName())
	for m, w := range windows {
		assert.Equal(t, m, w.Index)
		assert.Equal(t, base2023.AddDate(0, m, 0).Format("2006_01"), w.Label())
	}
}

func TestMonthWindows_DisjointAndCovering(t *testing.T) {
	windows := MonthWindows(base2023, 24)

	assert.Equal(t, base2023, windows[0].Start)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), windows[23].End)

	for i, w := range windows {
		assert.True(t, w.Start.Before(w.End))
		if i > 0 {
			// contiguous: no gap, no overlap
			assert.Equal(t, windows[i-1].End, w.Start)
		}
	}

	// every instant belongs to exactly one window
	instants := []time.Time{
		base2023,
		time.Date(2023, 1, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 23, 59, 59, 999, time.UTC),
	}
	for _, p := range instants {
		count := 0
		for _, w := range windows {
			if w.Contains(p) {
				count++
			}
		}
		assert.Equal(t, 1, count, "instant %v", p)
	}
	assert.False(t, windows[23].Contains(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, windows[0].Contains(base2023.Add(-time.Nanosecond)))

	sorted := sort.SliceIsSorted(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })
	assert.True(t, sorted)
}

func TestMonthWindows_NormalizesBase(t *testing.T) {
	windows := MonthWindows(time.Date(2023, 1, 17, 8, 0, 0, 0, time.FixedZone("PKT", 5*3600)), 2)
	assert.Equal(t, base2023, windows[0].Start)
	assert.Equal(t, "2023_02", windows[1].Label())
}

func TestParseDate(t *testing.T) {
	parsed, err := ParseDate("2023-01-01")
	assert.NoError(t, err)
	assert.Equal(t, base2023, parsed)

	parsed, err = ParseDate("2024-12-31T00:00:00Z")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), parsed)

	_, err = ParseDate("yesterday")
	assert.Error(t, err)
}

func TestParseEngine(t *testing.T) {
	engine, err := ParseEngine("local")
	assert.NoError(t, err)
	assert.Equal(t, LocalEngine, engine)
	_, err = ParseEngine("gpu")
	assert.Error(t, err)
}
