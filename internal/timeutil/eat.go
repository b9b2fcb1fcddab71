package timeutil

import "time"

// EAT is East Africa Time (UTC+3), the business timezone for billing and
// scheduling. Day-of-month decisions must be made in this zone, not UTC.
var EAT *time.Location

func init() {
	var err error
	EAT, err = time.LoadLocation("Africa/Kampala")
	if err != nil {
		// Fallback: create fixed zone if the tz database is unavailable
		EAT = time.FixedZone("EAT", 3*60*60)
	}
}

// Now returns the current time in EAT.
func Now() time.Time {
	return time.Now().In(EAT)
}

// ToEAT converts any time to EAT.
func ToEAT(t time.Time) time.Time {
	return t.In(EAT)
}

// StartOfDay returns 00:00:00 EAT of the given time's day.
func StartOfDay(t time.Time) time.Time {
	eat := t.In(EAT)
	return time.Date(eat.Year(), eat.Month(), eat.Day(), 0, 0, 0, 0, EAT)
}

// DateLayout is the short date format used in scheduler logs.
const DateLayout = "2006-01-02"
