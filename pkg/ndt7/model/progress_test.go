package model

import (
	"testing"
	"time"

	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
)

func TestProgressFrom(t *testing.T) {
	start := time.Now().Add(-time.Second)
	p := ProgressFrom(start, 1_250_000, spec.TestDownload)

	if p.NumBytes != 1_250_000 {
		t.Errorf("NumBytes = %d, want 1250000", p.NumBytes)
	}
	if p.Direction != spec.TestDownload {
		t.Errorf("Direction = %s, want %s", p.Direction, spec.TestDownload)
	}
	if p.Elapsed < time.Second {
		t.Errorf("Elapsed = %v, want >= 1s", p.Elapsed)
	}
	// 1.25 MB in ~1s is ~10 Mbit/s.
	if p.MeanMbps < 9 || p.MeanMbps > 10.1 {
		t.Errorf("MeanMbps = %f, want ~10", p.MeanMbps)
	}
}

func Test_meanMbps(t *testing.T) {
	if got := meanMbps(1000, 0); got != 0 {
		t.Errorf("meanMbps with zero elapsed = %f, want 0", got)
	}
	if got := meanMbps(12_500_000, time.Second); got != 100 {
		t.Errorf("meanMbps(12.5MB, 1s) = %f, want 100", got)
	}
}
