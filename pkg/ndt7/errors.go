package ndt7

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
)

// Protocol error kinds indicating a structural incompatibility between this
// client and the server.
const (
	KindUnknownControlOpcode = "unknown_control_opcode"
	KindInvalidReservedBits  = "invalid_reserved_bits"
	KindFragmentedControl    = "fragmented_control_frame"
	KindHandshakeRejected    = "handshake_rejected"
)

var (
	// ErrCancelled is reported when a running subtest is cancelled by the
	// user.
	ErrCancelled = errors.New("test cancelled")

	// ErrNoData is reported when a subtest ended without transferring any
	// application data.
	ErrNoData = errors.New("no data received")
)

// ProtocolError is a structural WebSocket-level failure. Depending on its
// Kind, retrying the same server may be pointless.
type ProtocolError struct {
	Kind string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error (%s): %v", e.Kind, e.Err)
	}
	return "protocol error (" + e.Kind + ")"
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// TransportError is a TCP or TLS-level failure. Transport errors are
// considered transient and the same server may be retried.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// classifyError maps an error surfaced by the WebSocket layer to the
// client's error taxonomy. Errors that are already classified pass through
// unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, websocket.ErrBadHandshake) {
		return &ProtocolError{Kind: KindHandshakeRejected, Err: err}
	}
	if kind, ok := protocolKind(err); ok {
		return &ProtocolError{Kind: kind, Err: err}
	}
	return &TransportError{Err: err}
}

// protocolKind reports the structural protocol error kind for err, if any.
// Matching on the error message interoperates with WebSocket stacks that do
// not expose structured error codes; the canonical snake_case kinds are
// accepted alongside gorilla's own wording.
func protocolKind(err error) (string, bool) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, KindUnknownControlOpcode),
		strings.Contains(msg, "unknown opcode"),
		strings.Contains(msg, "bad opcode"):
		return KindUnknownControlOpcode, true
	case strings.Contains(msg, KindInvalidReservedBits),
		strings.Contains(msg, "reserved bits"),
		strings.Contains(msg, "RSV"):
		return KindInvalidReservedBits, true
	case strings.Contains(msg, KindFragmentedControl),
		strings.Contains(msg, "fragmented control"),
		strings.Contains(msg, "control frame not final"):
		return KindFragmentedControl, true
	}
	return "", false
}

// IsServerSkipError reports whether err means the server is structurally
// incompatible with this client, so that further attempts against it are
// pointless and the caller should move on to the next server.
func IsServerSkipError(err error) bool {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Kind {
	case KindUnknownControlOpcode, KindInvalidReservedBits, KindFragmentedControl:
		return true
	}
	return false
}

// isNormalClose reports whether err is the peer's normal-closure CLOSE frame.
func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure)
}
