package client

import (
	"time"
)

// Config is the configuration for an NDT7Client.
type Config struct {
	// Server is the server to connect to, as host:port. If empty, servers
	// are obtained by querying the configured Locator.
	Server string

	// Scheme is the WebSocket scheme used to connect to the server (ws or
	// wss).
	Scheme string

	// Duration is the length of each subtest.
	Duration time.Duration

	// DeviceName, if non-empty, is attached to each subtest's opening
	// handshake.
	DeviceName string

	// Emitter is the interface used to emit events and results. It can be
	// overridden to provide custom output. If nil, events are discarded.
	Emitter Emitter

	// NoVerify disables TLS certificate verification.
	NoVerify bool

	// LocateCacheTTL is how long discovery results are reused before the
	// locate service is queried again. Zero selects the default.
	LocateCacheTTL time.Duration
}
