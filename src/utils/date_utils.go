package utils

// DayFormat is the day-granularity format used by performance snapshots.
const DayFormat = "2006-01-02"

// DaysForRange maps the dashboard's time-range labels to a day count.
// Unknown labels fall back to the provided default.
func DaysForRange(rangeLabel string, fallback int) int {
	switch rangeLabel {
	case "1D":
		return 1
	case "1W":
		return 7
	case "1M":
		return 30
	case "3M":
		return 90
	default:
		return fallback
	}
}
