package client

import (
	"fmt"

	v2 "github.com/m-lab/locate/api/v2"

	"github.com/netmeasure/ndt7-client/pkg/ndt7/model"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
)

// Emitter is an interface for emitting events and results. Callbacks for one
// subtest are delivered in order; OnFinish-equivalent events
// (OnPhaseComplete, OnError) follow every progress or measurement event of
// that subtest.
type Emitter interface {
	// OnServerSelected is called once per session with the first server
	// returned by discovery. The driver may still fail over to a later one;
	// the server actually used is carried by each Result.
	OnServerSelected(server v2.Target)
	// OnStart is called before each attempt.
	OnStart(kind spec.TestKind, server string)
	// OnProgress is called on locally computed progress samples.
	OnProgress(p model.Progress)
	// OnMeasurement is called on server and client measurements.
	OnMeasurement(kind spec.TestKind, m model.Measurement)
	// OnPhaseComplete is called when a subtest succeeds.
	OnPhaseComplete(kind spec.TestKind, result Result)
	// OnError is called on per-attempt errors.
	OnError(kind spec.TestKind, err error)
	// OnSummary is called at the end of a session with every collected
	// result.
	OnSummary(results map[spec.TestKind]Result)
}

// HumanReadable prints human-readable output to stdout. Its Debug field does
// not change what is printed.
type HumanReadable struct {
	Debug bool
}

// OnServerSelected prints the server locked at discovery time.
func (HumanReadable) OnServerSelected(server v2.Target) {
	loc := ""
	if server.Location != nil {
		loc = fmt.Sprintf(" (%s, %s)", server.Location.City, server.Location.Country)
	}
	fmt.Printf("Selected server %s%s\n", server.Machine, loc)
}

// OnStart prints the subtest kind and the server being attempted.
func (HumanReadable) OnStart(kind spec.TestKind, server string) {
	fmt.Printf("Starting %s (server: %s)\n", kind, server)
}

// OnProgress prints the current mean rate.
func (HumanReadable) OnProgress(p model.Progress) {
	fmt.Printf("%s: %7.2f Mbit/s (%d bytes in %.2fs)\n",
		p.Direction, p.MeanMbps, p.NumBytes, p.Elapsed.Seconds())
}

// OnMeasurement is called on received Measurement objects.
func (HumanReadable) OnMeasurement(kind spec.TestKind, m model.Measurement) {
	// NOTHING - don't print individual measurement objects in this Emitter.
}

// OnPhaseComplete prints the subtest result.
func (HumanReadable) OnPhaseComplete(kind spec.TestKind, r Result) {
	fmt.Printf("%s complete: %.2f Mbit/s (server %s)\n", kind, r.Throughput, r.Server)
}

// OnError prints per-attempt errors.
func (HumanReadable) OnError(kind spec.TestKind, err error) {
	fmt.Printf("%s error: %v\n", kind, err)
}

// OnSummary prints a summary of every collected result.
func (e HumanReadable) OnSummary(results map[spec.TestKind]Result) {
	fmt.Println()
	fmt.Printf("Test results:\n")
	for kind, r := range results {
		fmt.Printf("  %8s rate: %8.2f Mbit/s, minrtt: %.2fms\n",
			kind, r.Throughput, float64(r.MinRTT)/1000)
		fmt.Printf("           server: %s, bytes: %d, duration: %.2fs\n",
			r.Server, r.BytesTransferred, r.Elapsed.Seconds())
	}
}

// Checks that HumanReadable implements Emitter.
var _ Emitter = &HumanReadable{}

// quiet discards every event. It is the default Emitter.
type quiet struct{}

func (quiet) OnServerSelected(v2.Target)                     {}
func (quiet) OnStart(spec.TestKind, string)                  {}
func (quiet) OnProgress(model.Progress)                      {}
func (quiet) OnMeasurement(spec.TestKind, model.Measurement) {}
func (quiet) OnPhaseComplete(spec.TestKind, Result)          {}
func (quiet) OnError(spec.TestKind, error)                   {}
func (quiet) OnSummary(map[spec.TestKind]Result)             {}
