package utils

import "math"

// SuccessRate returns round(sent/total*100), or 0 when total is 0.
func SuccessRate(sent, total int) int {
	if total <= 0 {
		return 0
	}
	return roundHalfUp(float64(sent) / float64(total) * 100)
}

// PendingCount is the number of recipients without a terminal outcome.
func PendingCount(total, sent, failed int) int {
	return total - sent - failed
}

// GrowthPercent returns round((current-previous)/previous*100), or 0 when
// there is no previous activity to compare against.
func GrowthPercent(current, previous int) int {
	if previous <= 0 {
		return 0
	}
	return roundHalfUp(float64(current-previous) / float64(previous) * 100)
}

// AverageRate is SuccessRate over averaged counters.
func AverageRate(avgSent, avgTotal float64) int {
	if avgTotal <= 0 {
		return 0
	}
	return roundHalfUp(avgSent / avgTotal * 100)
}

// RoundAverage rounds an aggregate average to a whole count.
func RoundAverage(avg float64) int {
	return roundHalfUp(avg)
}

// roundHalfUp rounds .5 towards positive infinity, so -2.5 becomes -2.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
