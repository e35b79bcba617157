package ledger

import "time"

// WeekLabel composes the ISO year and week number into a single integer
// (year*100 + week). Labels are strictly increasing across year boundaries:
// the last ISO week of year Y compares below week 1 of year Y+1, and the
// days around New Year that ISO assigns to the neighbouring year carry that
// year's label, so a label never repeats or regresses.
func WeekLabel(t time.Time) int {
	year, week := t.UTC().ISOWeek()
	return year*100 + week
}
