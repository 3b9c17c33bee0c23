// Package billing turns parking time into a charge.
package billing

import "time"

// Rates is the pair of rates a charge is computed from.
type Rates struct {
	FirstHour      int64
	SubsequentHour int64
}

// Charge returns the amount owed for minutes of parking.
// Minutes within the grace period are free; the first hour is flat and every
// started hour after it costs the subsequent-hour rate.
func Charge(minutes int64, rates Rates, graceMinutes int64) int64 {
	if minutes <= graceMinutes {
		return 0
	}
	if minutes <= 60 {
		return rates.FirstHour
	}
	extraHours := (minutes - 60 + 59) / 60
	return rates.FirstHour + extraHours*rates.SubsequentHour
}

// ElapsedMinutes returns the whole minutes between entry and now, truncated.
// Clock skew that puts now before entry counts as zero.
func ElapsedMinutes(entry, now time.Time) int64 {
	d := now.Sub(entry)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Minute)
}
