// Package derived computes the live per-room state that is never
// persisted: the comfort index and the online/offline classification.
package derived

import "time"

// FeelsLike returns the apparent ("feels like") temperature for a
// temperature in °C and a relative humidity in %RH, using Steadman's
// empirical apparent-temperature polynomial. Total over the plausible
// sensor range.
func FeelsLike(tempC, humidityPct float64) float64 {
	t := tempC
	r := humidityPct

	return -8.784695 +
		1.61139411*t +
		2.338549*r -
		0.14611605*t*r -
		0.01230809*t*t -
		0.01642482*r*r +
		0.00221173*t*t*r +
		0.00072546*t*r*r -
		0.00000358*t*t*r*r
}

// IsOnline reports whether a room that was last heard from at lastSeen
// still counts as online at now. The flip to offline happens exactly
// at lastSeen + threshold.
func IsOnline(lastSeen, now time.Time, threshold time.Duration) bool {
	return now.Sub(lastSeen) < threshold
}
