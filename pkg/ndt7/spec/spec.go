// Package spec contains constants for the ndt7 protocol.
package spec

import "time"

const (
	// DownloadPath selects the download subtest.
	DownloadPath = "/ndt/v7/download"

	// UploadPath selects the upload subtest.
	UploadPath = "/ndt/v7/upload"

	// SecWebSocketProtocol is the value of the Sec-WebSocket-Protocol header.
	SecWebSocketProtocol = "net.measurementlab.ndt.v7"

	// DeviceNameHeader carries the optional device name on the opening
	// handshake.
	DeviceNameHeader = "X-Device-Name"

	// MaxMessageSize is the maximum size of an incoming WebSocket frame the
	// client will accept.
	MaxMessageSize = 1 << 24

	// MinNonFinalFragmentSize is the minimum size of a non-final fragment.
	MinNonFinalFragmentSize = 1 << 10

	// MinMessageSize is the initial size of an upload binary message.
	MinMessageSize = 1 << 13

	// MaxScaledMessageSize is the maximum value of a scaled upload message
	// size. Upload messages never grow past this value.
	MaxScaledMessageSize = 1 << 24

	// ScalingFraction sets the threshold for scaling upload messages. When
	// the current message size is <= 1/ScalingFraction of the total bytes
	// sent so far, the message size is doubled.
	ScalingFraction = 16

	// MeasureInterval is the minimum interval between subsequent locally
	// computed progress samples.
	MeasureInterval = 250 * time.Millisecond

	// MinSampleInterval is the minimum interval between connection samples.
	MinSampleInterval = 100 * time.Millisecond

	// AvgSampleInterval is the average interval between connection samples.
	AvgSampleInterval = 250 * time.Millisecond

	// MaxSampleInterval is the maximum interval between connection samples.
	MaxSampleInterval = 400 * time.Millisecond

	// DefaultTestDuration is the default length of a subtest.
	DefaultTestDuration = 10 * time.Second

	// MaxAttempts is the number of times a subtest is attempted against a
	// single server before moving on to the next one.
	MaxAttempts = 3

	// InterAttemptDelay is the pause between subsequent attempts against the
	// same server.
	InterAttemptDelay = 2 * time.Second

	// EarlyFailureWindow is how long the download client waits before
	// declaring a connection that closed without delivering any data dead.
	EarlyFailureWindow = 2 * time.Second
)

// TestKind indicates the subtest kind.
type TestKind string

const (
	// TestDownload is a download subtest.
	TestDownload = TestKind("download")

	// TestUpload is an upload subtest.
	TestUpload = TestKind("upload")
)

// Path returns the URL path selecting this subtest.
func (k TestKind) Path() string {
	if k == TestUpload {
		return UploadPath
	}
	return DownloadPath
}
