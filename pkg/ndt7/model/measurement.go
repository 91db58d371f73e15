package model

import (
	"github.com/m-lab/tcp-info/inetdiag"
	"github.com/m-lab/tcp-info/tcp"

	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
)

// The Measurement struct contains measurement results. This structure is
// serialized as JSON and sent as a textual message. It is specified in the
// ndt7 specification. Unknown fields are ignored when decoding.
type Measurement struct {
	AppInfo        *AppInfo        `json:",omitempty"`
	ConnectionInfo *ConnectionInfo `json:",omitempty" bigquery:"-"`
	BBRInfo        *BBRInfo        `json:",omitempty"`
	TCPInfo        *TCPInfo        `json:",omitempty"`

	// Origin indicates who performed this measurement ("client" or "server").
	Origin string `json:",omitempty"`

	// Test is the subtest this measurement belongs to.
	Test spec.TestKind `json:",omitempty"`
}

// AppInfo contains an application-level measurement. ElapsedTime is expressed
// in microseconds.
type AppInfo struct {
	NumBytes    int64
	ElapsedTime int64
}

// ConnectionInfo contains connection info.
type ConnectionInfo struct {
	Client string
	Server string
	UUID   string `json:",omitempty"`
}

// The BBRInfo struct contains information measured using BBR. Variables have
// the same measurement unit used by the Linux kernel.
type BBRInfo struct {
	inetdiag.BBRInfo
	ElapsedTime int64
}

// The TCPInfo struct contains information measured using TCP_INFO.
type TCPInfo struct {
	tcp.LinuxTCPInfo
	ElapsedTime int64
}
