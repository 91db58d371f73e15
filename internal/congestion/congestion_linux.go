package congestion

import (
	"os"
	"unsafe"

	"github.com/m-lab/tcp-info/inetdiag"
	"golang.org/x/sys/unix"
)

func set(fp *os.File, cc string) error {
	return unix.SetsockoptString(int(fp.Fd()), unix.IPPROTO_TCP,
		unix.TCP_CONGESTION, cc)
}

func get(fp *os.File) (string, error) {
	return unix.GetsockoptString(int(fp.Fd()), unix.IPPROTO_TCP,
		unix.TCP_CONGESTION)
}

func getMaxBandwidthAndMinRTT(fp *os.File) (inetdiag.BBRInfo, error) {
	cci := inetdiag.BBRInfo{}
	size := uint32(unsafe.Sizeof(cci))
	_, _, errno := unix.Syscall6(
		unix.SYS_GETSOCKOPT,
		fp.Fd(),
		uintptr(unix.IPPROTO_TCP),
		uintptr(unix.TCP_CC_INFO),
		uintptr(unsafe.Pointer(&cci)),
		uintptr(unsafe.Pointer(&size)),
		0)
	if errno != 0 {
		return inetdiag.BBRInfo{}, ErrNoSupport
	}
	return cci, nil
}
