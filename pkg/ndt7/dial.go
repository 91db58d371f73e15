package ndt7

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/netmeasure/ndt7-client/internal/netx"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
)

const (
	// defaultHandshakeTimeout is the timeout for the WebSocket handshake.
	defaultHandshakeTimeout = 5 * time.Second

	// deadlineGrace is added to the measurement window when setting transport
	// deadlines, so that the subtest timer ends a healthy subtest before the
	// transport does.
	deadlineGrace = 5 * time.Second
)

// dial opens the WebSocket connection for a subtest. The underlying TCP
// connection is wrapped with netx so that fd-level information remains
// available to the measurer. Dial errors are returned already classified.
func dial(ctx context.Context, rawURL, userAgent, deviceName string, insecureTLS bool) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: defaultHandshakeTimeout,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return netx.FromTCPConn(conn.(*net.TCPConn))
		},
		TLSClientConfig: &tls.Config{InsecureSkipVerify: insecureTLS},
	}
	headers := http.Header{}
	headers.Add("Sec-WebSocket-Protocol", spec.SecWebSocketProtocol)
	headers.Add("User-Agent", userAgent)
	if deviceName != "" {
		headers.Add(spec.DeviceNameHeader, deviceName)
	}
	conn, _, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) {
			return nil, &ProtocolError{Kind: KindHandshakeRejected, Err: err}
		}
		return nil, &TransportError{Err: err}
	}
	conn.SetReadLimit(spec.MaxMessageSize)
	return conn, nil
}

// sendClose sends a normal-closure CLOSE frame. Errors are ignored: the peer
// may already be gone.
func sendClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "measurement complete")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
