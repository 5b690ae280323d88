package v2x

import "time"

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedTime(seconds float64) time.Time {
	return testEpoch.Add(time.Duration(seconds * float64(time.Second)))
}
