package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	v2 "github.com/m-lab/locate/api/v2"

	"github.com/netmeasure/ndt7-client/pkg/ndt7"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
)

var driverUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type fakeLocator struct {
	targets []v2.Target
	err     error
}

func (f *fakeLocator) Nearest(ctx context.Context, service string) ([]v2.Target, error) {
	return f.targets, f.err
}

// countingEmitter counts attempts per machine and discards everything else.
type countingEmitter struct {
	quiet
	mu       sync.Mutex
	attempts map[string]int
}

func newCountingEmitter() *countingEmitter {
	return &countingEmitter{attempts: map[string]int{}}
}

func (e *countingEmitter) OnStart(kind spec.TestKind, server string) {
	e.mu.Lock()
	e.attempts[server]++
	e.mu.Unlock()
}

func (e *countingEmitter) count(server string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[server]
}

func wsTarget(machine string, s *httptest.Server) v2.Target {
	u := "ws" + strings.TrimPrefix(s.URL, "http")
	return v2.Target{
		Machine: machine,
		URLs: map[string]string{
			"ws://" + spec.DownloadPath: u,
			"ws://" + spec.UploadPath:   u,
		},
	}
}

// invalidFrameHandler completes the WebSocket handshake and then writes a raw
// frame with the reserved bits set.
func invalidFrameHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := driverUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	// FIN + RSV1|RSV2|RSV3 + binary opcode, zero-length payload.
	conn.UnderlyingConn().Write([]byte{0xf2, 0x00})
	time.Sleep(100 * time.Millisecond)
}

// healthyDownloadHandler streams a few binary frames and closes cleanly.
func healthyDownloadHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := driverUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	payload := make([]byte, 1<<12)
	for i := 0; i < 10; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(time.Second))
}

func TestNDT7Client_protocolErrorFailover(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(invalidFrameHandler))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(healthyDownloadHandler))
	defer good.Close()

	emitter := newCountingEmitter()
	c := New("test", "v1.0.0", Config{
		Scheme:   "ws",
		Duration: 2 * time.Second,
		Emitter:  emitter,
	})
	c.locator = &fakeLocator{targets: []v2.Target{
		wsTarget("bad-machine", bad),
		wsTarget("good-machine", good),
	}}

	err := c.Start(context.Background(), TestTypeDownload)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// A structurally incompatible server gets exactly one attempt.
	if got := emitter.count("bad-machine"); got != 1 {
		t.Errorf("attempts against bad server = %d, want 1", got)
	}
	if got := emitter.count("good-machine"); got != 1 {
		t.Errorf("attempts against good server = %d, want 1", got)
	}

	// Selection stays locked at discovery even after failover...
	selected, ok := c.Selected()
	if !ok || selected.Machine != "bad-machine" {
		t.Errorf("Selected() = %v, want the first ranked server", selected.Machine)
	}
	// ...while the result names the server actually used.
	result, ok := c.Results()[spec.TestDownload]
	if !ok {
		t.Fatal("no download result")
	}
	if result.Server != "good-machine" {
		t.Errorf("result server = %q, want good-machine", result.Server)
	}
	if result.BytesTransferred == 0 {
		t.Errorf("no bytes recorded")
	}
}

func TestNDT7Client_noDataIsRetried(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping: this test sleeps through inter-attempt delays")
	}
	// The server closes cleanly without sending any data.
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := driverUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}))
	defer s.Close()

	emitter := newCountingEmitter()
	c := New("test", "v1.0.0", Config{
		Scheme:   "ws",
		Duration: 2 * time.Second,
		Emitter:  emitter,
	})
	c.locator = &fakeLocator{targets: []v2.Target{wsTarget("empty-machine", s)}}

	err := c.Start(context.Background(), TestTypeDownload)
	if !errors.Is(err, ndt7.ErrNoData) {
		t.Errorf("Start() = %v, want ErrNoData", err)
	}
	if got := emitter.count("empty-machine"); got != spec.MaxAttempts {
		t.Errorf("attempts = %d, want %d", got, spec.MaxAttempts)
	}
}

func TestNDT7Client_runPhaseWithoutTargets(t *testing.T) {
	c := New("test", "v1.0.0", Config{Scheme: "ws"})
	err := c.runPhase(context.Background(), spec.TestDownload, nil)
	if !errors.Is(err, ErrNoTargets) {
		t.Errorf("runPhase() = %v, want ErrNoTargets", err)
	}
}

func TestNDT7Client_invalidURLIsSkipped(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(healthyDownloadHandler))
	defer good.Close()

	c := New("test", "v1.0.0", Config{Scheme: "ws", Duration: 2 * time.Second})
	c.locator = &fakeLocator{targets: []v2.Target{
		{Machine: "broken-machine", URLs: map[string]string{}},
		wsTarget("good-machine", good),
	}}

	if err := c.Start(context.Background(), TestTypeDownload); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	result := c.Results()[spec.TestDownload]
	if result.Server != "good-machine" {
		t.Errorf("result server = %q, want good-machine", result.Server)
	}
}

func TestNDT7Client_downloadThenUpload(t *testing.T) {
	measurement := []byte(`{"AppInfo":{"NumBytes":1,"ElapsedTime":1},"Origin":"server"}`)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case spec.DownloadPath:
			healthyDownloadHandler(w, r)
		case spec.UploadPath:
			conn, err := driverUpgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			go func() {
				for {
					if _, _, err := conn.NextReader(); err != nil {
						return
					}
				}
			}()
			time.Sleep(200 * time.Millisecond)
			conn.WriteMessage(websocket.TextMessage, measurement)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			time.Sleep(100 * time.Millisecond)
		}
	}))
	defer s.Close()

	wsBase := "ws" + strings.TrimPrefix(s.URL, "http")
	c := New("test", "v1.0.0", Config{Scheme: "ws", Duration: 2 * time.Second})
	c.locator = &fakeLocator{targets: []v2.Target{{
		Machine: "dual-machine",
		URLs: map[string]string{
			"ws://" + spec.DownloadPath: wsBase + spec.DownloadPath,
			"ws://" + spec.UploadPath:   wsBase + spec.UploadPath,
		},
	}}}

	if err := c.Start(context.Background(), TestTypeDownloadThenUpload); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	results := c.Results()
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, kind := range []spec.TestKind{spec.TestDownload, spec.TestUpload} {
		r, ok := results[kind]
		if !ok {
			t.Fatalf("missing %s result", kind)
		}
		if r.BytesTransferred == 0 {
			t.Errorf("%s transferred no bytes", kind)
		}
	}
}

func TestNDT7Client_discoveryErrorsPropagate(t *testing.T) {
	c := New("test", "v1.0.0", Config{})
	c.locator = &fakeLocator{err: ErrServersOutOfCapacity}
	err := c.Start(context.Background(), TestTypeDownload)
	if !errors.Is(err, ErrServersOutOfCapacity) {
		t.Errorf("Start() = %v, want ErrServersOutOfCapacity", err)
	}
}
