package model

import (
	"fmt"
	"time"
)

// DateLayout is a plain calendar date
const DateLayout = "2006-01-02"

// MonthLabelLayout formats a month as it appears in export names
const MonthLabelLayout = "2006_01"

// TimestampLayout is used for every timestamp we emit
const TimestampLayout = time.RFC3339

var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01",
}

// ParseDate parses a date in any of the accepted layouts, as UTC
func ParseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if output, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return output.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("Date could not be parsed by any expected time format: `%s`", value)
}
