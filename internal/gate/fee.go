package gate

import "time"

// Fee bills every started hour at unitRate. A whole number of hours is not
// rounded up and a non-positive stay costs nothing.
func Fee(checkin, checkout time.Time, unitRate int64) int64 {
	d := checkout.Sub(checkin)
	if d <= 0 {
		return 0
	}
	hours := int64(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}
	return hours * unitRate
}
