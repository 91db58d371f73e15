// Command ndt7-client runs an ndt7 measurement session from the command
// line and optionally archives the collected measurements to disk.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/netmeasure/ndt7-client/internal/persistence"
	"github.com/netmeasure/ndt7-client/pkg/client"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/model"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
	"github.com/netmeasure/ndt7-client/pkg/results"
	"github.com/netmeasure/ndt7-client/pkg/version"
)

const clientName = "ndt7-client"

var (
	flagServer   = flag.String("server", "", "Measurement server address (host:port); bypasses the locator")
	flagScheme   = flag.String("scheme", "wss", "WebSocket scheme (wss or ws)")
	flagDuration = flag.Duration("duration", 10*time.Second, "Length of each subtest")
	flagDevice   = flag.String("device", "", "Device name sent on the handshake")
	flagTest     = flag.String("test", "download+upload", "Test to run: download, upload or download+upload")
	flagNoVerify = flag.Bool("no-verify", false, "Skip TLS certificate verification")
	flagOutput   = flag.String("output", "", "Directory to write the archival result to")
	flagDebug    = flag.Bool("debug", false, "Enable debug output")
)

func main() {
	flag.Parse()
	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}

	var testType client.TestType
	switch *flagTest {
	case "download":
		testType = client.TestTypeDownload
	case "upload":
		testType = client.TestTypeUpload
	case "download+upload":
		testType = client.TestTypeDownloadThenUpload
	default:
		log.Fatal("invalid -test value", "test", *flagTest)
	}

	archive := newArchivingEmitter(client.HumanReadable{Debug: *flagDebug})
	cl := client.New(clientName, version.Version, client.Config{
		Server:     *flagServer,
		Scheme:     *flagScheme,
		Duration:   *flagDuration,
		DeviceName: *flagDevice,
		Emitter:    archive,
		NoVerify:   *flagNoVerify,
	})

	// First interrupt cancels the session cooperatively, a second one kills
	// the process through the default handler.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		log.Info("interrupted, cancelling")
		cl.Cancel()
		signal.Stop(sig)
	}()

	mid := uuid.NewString()
	start := time.Now()
	err := cl.Start(context.Background(), testType)
	if err != nil {
		log.Error("measurement failed", "error", err)
	}

	if *flagOutput != "" {
		record := archive.record(mid, start, cl)
		p, werr := persistence.WriteDataFile(*flagOutput, "ndt7", string(testType), mid, record)
		if werr != nil {
			log.Error("failed to write result", "error", werr)
		} else {
			log.Info("result written", "path", p)
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

// archivingEmitter forwards every event to the wrapped Emitter while
// collecting measurements into per-subtest archival records.
type archivingEmitter struct {
	client.Emitter

	mu       sync.Mutex
	subtests map[spec.TestKind]*results.SubtestRecord
}

func newArchivingEmitter(inner client.Emitter) *archivingEmitter {
	return &archivingEmitter{
		Emitter:  inner,
		subtests: map[spec.TestKind]*results.SubtestRecord{},
	}
}

func (a *archivingEmitter) OnStart(kind spec.TestKind, server string) {
	a.mu.Lock()
	// A new attempt resets the record: only the final attempt is archived.
	a.subtests[kind] = &results.SubtestRecord{
		Server:    server,
		StartTime: time.Now(),
	}
	a.mu.Unlock()
	a.Emitter.OnStart(kind, server)
}

func (a *archivingEmitter) OnMeasurement(kind spec.TestKind, m model.Measurement) {
	a.mu.Lock()
	if rec := a.subtests[kind]; rec != nil {
		if m.Origin == "client" {
			rec.ClientMeasurements = append(rec.ClientMeasurements, m)
		} else {
			rec.ServerMeasurements = append(rec.ServerMeasurements, m)
		}
	}
	a.mu.Unlock()
	a.Emitter.OnMeasurement(kind, m)
}

func (a *archivingEmitter) OnPhaseComplete(kind spec.TestKind, r client.Result) {
	a.mu.Lock()
	if rec := a.subtests[kind]; rec != nil {
		rec.EndTime = time.Now()
		rec.Server = r.Server
		rec.BytesTransferred = r.BytesTransferred
		rec.Throughput = r.Throughput
	}
	a.mu.Unlock()
	a.Emitter.OnPhaseComplete(kind, r)
}

// record assembles the session's archival record.
func (a *archivingEmitter) record(mid string, start time.Time, cl *client.NDT7Client) *results.NDT7Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec := &results.NDT7Result{
		Version:       version.Version,
		MeasurementID: mid,
		StartTime:     start,
		EndTime:       time.Now(),
		Download:      a.subtests[spec.TestDownload],
		Upload:        a.subtests[spec.TestUpload],
	}
	if selected, ok := cl.Selected(); ok {
		rec.SelectedServer = selected.Machine
	}
	return rec
}
