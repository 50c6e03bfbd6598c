package model

import "time"

// MonthWindow is the half-open interval [Start, End) of one calendar month
type MonthWindow struct {
	Index int
	Start time.Time
	End   time.Time
}

// MonthWindows returns n consecutive month windows, the first starting at
// base. base is normalized to the first of its month in UTC.
func MonthWindows(base time.Time, n int) []MonthWindow {
	base = time.Date(base.Year(), base.Month(), 1, 0, 0, 0, 0, time.UTC)
	windows := make([]MonthWindow, 0, n)
	for m := 0; m < n; m++ {
		windows = append(windows, MonthWindow{
			Index: m,
			Start: base.AddDate(0, m, 0),
			End:   base.AddDate(0, m+1, 0),
		})
	}
	return windows
}

// Label formats the window's first month as YYYY_MM
func (w MonthWindow) Label() string {
	return w.Start.Format(MonthLabelLayout)
}

// Description is the export name for this month, e.g. NDVI_2023_01
func (w MonthWindow) Description(prefix string) string {
	return prefix + "_" + w.Label()
}

// Contains reports whether t falls inside the window
func (w MonthWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DisplayName is a human label such as "Jan 2023"
func (w MonthWindow) DisplayName() string {
	return w.Start.Format("Jan 2006")
}
