// Package congestion contains code required to read the congestion control
// algorithm and BBR variables of a net.Conn. This code currently only works
// on Linux systems, as BBR is only available there.
package congestion

import (
	"errors"
	"os"

	"github.com/m-lab/tcp-info/inetdiag"
)

// ErrNoSupport indicates that this system does not support TCP_CC_INFO.
var ErrNoSupport = errors.New("TCP_CC_INFO not supported")

// Set sets the congestion control algorithm for |fp|.
func Set(fp *os.File, cc string) error {
	return set(fp, cc)
}

// Get returns the congestion control algorithm used by |fp|.
func Get(fp *os.File) (string, error) {
	return get(fp)
}

// GetBBRInfo obtains BBR info from |fp|.
func GetBBRInfo(fp *os.File) (inetdiag.BBRInfo, error) {
	return getMaxBandwidthAndMinRTT(fp)
}
