package client

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
)

func TestNew(t *testing.T) {
	t.Run("new clients have the expected name and version", func(t *testing.T) {
		c := New("test", "v1.0.0", Config{})
		if c.ClientName != "test" || c.ClientVersion != "v1.0.0" {
			t.Errorf("client.New() returned client with wrong name/version")
		}
	})

	t.Run("defaults are applied", func(t *testing.T) {
		c := New("test", "v1.0.0", Config{})
		if c.config.Scheme != DefaultScheme {
			t.Errorf("Scheme = %q, want %q", c.config.Scheme, DefaultScheme)
		}
		if c.config.Duration != spec.DefaultTestDuration {
			t.Errorf("Duration = %v, want %v", c.config.Duration, spec.DefaultTestDuration)
		}
		if c.config.Emitter == nil {
			t.Errorf("Emitter not defaulted")
		}
	})

	t.Run("empty name panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Errorf("New() with empty name did not panic")
			}
		}()
		New("", "v1.0.0", Config{})
	})
}

func Test_makeUserAgent(t *testing.T) {
	t.Run("generate requested user agent", func(t *testing.T) {
		got := makeUserAgent("clientname", "clientversion")
		expected := fmt.Sprintf("%s/%s %s/%s", "clientname", "clientversion",
			libraryName, libraryVersion)
		if got != expected {
			t.Errorf("makeUserAgent() = %s, want %s", got, expected)
		}
	})
}

func TestNDT7Client_directTarget(t *testing.T) {
	c := New("test", "v1.0.0", Config{
		Server: "ndt.example.net:443",
		Scheme: "wss",
	})
	target := c.directTarget()
	if target.Machine != "ndt.example.net:443" {
		t.Errorf("Machine = %q, want the configured server", target.Machine)
	}
	download := target.URLs["wss://"+spec.DownloadPath]
	if download != "wss://ndt.example.net:443/ndt/v7/download" {
		t.Errorf("download URL = %q", download)
	}
	upload := target.URLs["wss://"+spec.UploadPath]
	if !strings.HasSuffix(upload, spec.UploadPath) {
		t.Errorf("upload URL = %q", upload)
	}
}

func TestNDT7Client_Selected(t *testing.T) {
	c := New("test", "v1.0.0", Config{})
	if _, ok := c.Selected(); ok {
		t.Errorf("Selected() reported a server before discovery")
	}
}

func TestNDT7Client_CancelWithoutActivePhase(t *testing.T) {
	c := New("test", "v1.0.0", Config{})
	// Must not panic or block.
	done := make(chan struct{})
	go func() {
		c.Cancel()
		c.Cancel()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Cancel() blocked")
	}
	if !c.isCancelled() {
		t.Errorf("cancelled flag not set")
	}
}
