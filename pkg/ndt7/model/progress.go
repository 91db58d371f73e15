package model

import (
	"time"

	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
)

// Progress is a locally computed throughput sample. Unlike Measurement, it is
// never sent over the wire: it reports what this client observed.
type Progress struct {
	// Elapsed is the time elapsed since the subtest started.
	Elapsed time.Duration

	// NumBytes is the number of application-level bytes transferred so far.
	NumBytes int64

	// Direction is the subtest this sample belongs to.
	Direction spec.TestKind

	// MeanMbps is the mean application-level throughput in Mbit/s since the
	// subtest started.
	MeanMbps float64
}

// ProgressFrom returns a Progress sample computed from the subtest start
// time and the number of bytes transferred so far.
func ProgressFrom(start time.Time, numBytes int64, direction spec.TestKind) Progress {
	elapsed := time.Since(start)
	return Progress{
		Elapsed:   elapsed,
		NumBytes:  numBytes,
		Direction: direction,
		MeanMbps:  meanMbps(numBytes, elapsed),
	}
}

func meanMbps(numBytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(numBytes) * 8 / elapsed.Seconds() / 1e6
}
