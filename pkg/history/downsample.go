package history

import "github.com/itohio/gasmon/pkg/monitor"

// Downsample reduces readings to at most maxPoints by decimation.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
// A non-positive maxPoints copies everything.
func Downsample(dst []monitor.Reading, readings []monitor.Reading, maxPoints int) []monitor.Reading {
	if maxPoints <= 0 || len(readings) <= maxPoints {
		if cap(dst) >= len(readings) {
			dst = dst[:len(readings)]
			copy(dst, readings)
			return dst
		}
		result := make([]monitor.Reading, len(readings))
		copy(result, readings)
		return result
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]monitor.Reading, 0, maxPoints)
	}

	step := float64(len(readings)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		idx := int(float64(i) * step)
		if idx < len(readings) {
			dst = append(dst, readings[idx])
		}
	}

	return dst
}
