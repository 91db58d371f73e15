// Package results contains the archival record of an ndt7 measurement
// session.
package results

import (
	"time"

	"github.com/netmeasure/ndt7-client/pkg/ndt7/model"
)

// NDT7Result is the struct that is serialized as JSON to disk as the
// archival record of an ndt7 measurement session.
type NDT7Result struct {
	// Version is the symbolic version (if any) of the client code that
	// produced this record.
	Version string

	// MeasurementID identifies the subtests belonging to the same session.
	MeasurementID string

	// StartTime is the time when the session started.
	StartTime time.Time
	// EndTime is the time when the session ended.
	EndTime time.Time

	// SelectedServer is the machine locked at discovery time.
	SelectedServer string

	// Download is the archival record of the download subtest, if it ran.
	Download *SubtestRecord `json:",omitempty"`
	// Upload is the archival record of the upload subtest, if it ran.
	Upload *SubtestRecord `json:",omitempty"`
}

// SubtestRecord is the archival record of one subtest.
type SubtestRecord struct {
	// Server is the machine this subtest actually ran against.
	Server string
	// StartTime is the time when the subtest started.
	StartTime time.Time
	// EndTime is the time when the subtest ended.
	EndTime time.Time
	// BytesTransferred is the number of application-level bytes transferred.
	BytesTransferred int64
	// Throughput is the mean application-level throughput in Mbit/s.
	Throughput float64
	// ServerMeasurements is the list of measurements sent by the server.
	ServerMeasurements []model.Measurement
	// ClientMeasurements is the list of measurements taken by this client.
	ClientMeasurements []model.Measurement
}
