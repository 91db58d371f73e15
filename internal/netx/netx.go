// Package netx wraps dialed TCP connections so that file-descriptor level
// information (TCP_INFO, BBR variables, socket cookie) stays available to the
// measurement code even after the connection has been handed to the WebSocket
// layer, possibly below a TLS session.
package netx

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
)

// GetFile returns a duplicate file descriptor for the given connection.
func GetFile(conn net.Conn) (*os.File, error) {
	switch t := conn.(type) {
	case *net.TCPConn:
		return t.File()
	case *tls.Conn:
		return t.NetConn().(*net.TCPConn).File()
	default:
		return nil, fmt.Errorf("unsupported connection type: %T", t)
	}
}
