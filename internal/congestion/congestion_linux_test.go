package congestion

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"
)

func testSocket(t *testing.T) *os.File {
	t.Helper()
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("cannot create socket: %v", err)
	}
	fp := os.NewFile(uintptr(fd), fmt.Sprintf("fd %d", fd))
	t.Cleanup(func() { fp.Close() })
	return fp
}

func TestGet(t *testing.T) {
	fp := testSocket(t)
	cc, err := Get(fp)
	if err != nil {
		t.Errorf("cannot get the socket's cc: %v", err)
	}
	if cc == "" {
		t.Errorf("empty congestion control algorithm")
	}
}

func TestSet(t *testing.T) {
	// Get a list of the available cc algorithms in the environment.
	content, err := os.ReadFile("/proc/sys/net/ipv4/tcp_available_congestion_control")
	if err != nil {
		t.Skip("cannot read list of available cc algorithms, skipping test")
	}
	available := strings.Fields(string(content))
	if len(available) == 0 {
		t.Skip("no cc algorithms available")
	}

	fp := testSocket(t)
	if err := Set(fp, available[0]); err != nil {
		t.Errorf("cannot set cc %q: %v", available[0], err)
	}
	got, err := Get(fp)
	if err != nil {
		t.Fatalf("cannot read back cc: %v", err)
	}
	if got != available[0] {
		t.Errorf("cc = %q, want %q", got, available[0])
	}
}
