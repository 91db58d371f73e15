// Package ndt7 implements the client side of the ndt7 download and upload
// subtests. Each client performs exactly one attempt against one server URL;
// retries and failover belong to the caller.
package ndt7

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/netmeasure/ndt7-client/internal/measurer"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/model"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
)

// DownloadClient is a receive-only WebSocket consumer implementing the ndt7
// download subtest. A DownloadClient is good for a single Start call.
type DownloadClient struct {
	// URL is the WebSocket URL to connect to.
	URL string

	// UserAgent is sent on the opening handshake.
	UserAgent string

	// DeviceName, if non-empty, is attached to the opening handshake.
	DeviceName string

	// Duration is the measurement window.
	Duration time.Duration

	// InsecureTLS disables TLS certificate verification.
	InsecureTLS bool

	// OnProgress is called on locally computed progress samples.
	OnProgress func(model.Progress)

	// OnMeasurement is called on decoded server measurements and on
	// client-origin connection samples.
	OnMeasurement func(model.Measurement)

	// OnFinish is called exactly once with the final progress sample and the
	// terminal error, if any. No other callback follows it.
	OnFinish func(model.Progress, error)

	totalBytes atomic.Int64
	readerDone atomic.Bool
	latch      completion
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewDownloadClient returns a DownloadClient for the given URL. A duration
// of zero selects the default measurement window.
func NewDownloadClient(url string, duration time.Duration) *DownloadClient {
	if duration <= 0 {
		duration = spec.DefaultTestDuration
	}
	return &DownloadClient{
		URL:      url,
		Duration: duration,
		stop:     make(chan struct{}),
	}
}

// Start runs the download subtest. It resolves once the subtest is fully
// torn down; the returned error matches the one delivered to OnFinish.
func (d *DownloadClient) Start(ctx context.Context) error {
	queue := newCallbackQueue()
	start := time.Now()

	conn, err := dial(ctx, d.URL, d.UserAgent, d.DeviceName, d.InsecureTLS)
	if err != nil {
		return d.finish(queue, start, err)
	}

	// The transport deadline outlives the measurement window so that the
	// subtest timer, not the transport, ends a healthy subtest.
	conn.SetReadDeadline(start.Add(d.Duration + deadlineGrace))

	mctx, mcancel := context.WithCancel(ctx)
	defer mcancel()
	samples := measurer.Start(mctx, conn.UnderlyingConn(), spec.TestDownload, d.totalBytes.Load)

	errCh := make(chan error, 1)
	go d.readLoop(conn, start, queue, errCh)

	timeout := time.NewTimer(d.Duration)
	defer timeout.Stop()
	early := time.NewTimer(spec.EarlyFailureWindow)
	defer early.Stop()

	var terminal error
loop:
	for {
		select {
		case <-timeout.C:
			// Client-side timeout: close and declare success. A transport
			// error racing with this close is not a failure: the server may
			// still be mid-write when the window ends.
			sendClose(conn)
			break loop
		case <-early.C:
			// Connection already dead with nothing received: fail now
			// instead of sitting out the rest of the window.
			if d.readerDone.Load() && d.totalBytes.Load() == 0 {
				terminal = ErrNoData
				break loop
			}
		case err := <-errCh:
			if !isNormalClose(err) {
				terminal = classifyError(err)
			}
			break loop
		case m, ok := <-samples:
			if !ok {
				samples = nil
				continue
			}
			if d.OnMeasurement != nil {
				m := m
				queue.enqueue(func() { d.OnMeasurement(m) })
			}
		case <-d.stop:
			sendClose(conn)
			terminal = ErrCancelled
			break loop
		case <-ctx.Done():
			sendClose(conn)
			terminal = ErrCancelled
			break loop
		}
	}

	mcancel()
	conn.Close()
	return d.finish(queue, start, terminal)
}

// Stop cooperatively aborts the subtest. It is idempotent and safe to call
// at any point of the client's lifecycle; OnFinish still fires exactly once.
func (d *DownloadClient) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// finish resolves the completion latch, delivers the terminal callback and
// tears down the callback queue.
func (d *DownloadClient) finish(queue *callbackQueue, start time.Time, terminal error) error {
	if d.latch.resolve() {
		final := model.ProgressFrom(start, d.totalBytes.Load(), spec.TestDownload)
		if d.OnFinish != nil {
			queue.enqueue(func() { d.OnFinish(final, terminal) })
		}
	}
	queue.close()
	return terminal
}

// readLoop consumes frames until the connection errors out or closes.
// BINARY frames count toward the byte total; TEXT frames carry server
// measurements and their size counts as well.
func (d *DownloadClient) readLoop(conn *websocket.Conn, start time.Time,
	queue *callbackQueue, errCh chan<- error) {
	defer d.readerDone.Store(true)
	lastEmit := start
	for {
		kind, reader, err := conn.NextReader()
		if err != nil {
			errCh <- err
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			n, err := io.Copy(io.Discard, reader)
			if err != nil {
				errCh <- err
				return
			}
			d.totalBytes.Add(n)
		case websocket.TextMessage:
			data, err := io.ReadAll(reader)
			if err != nil {
				errCh <- err
				return
			}
			d.totalBytes.Add(int64(len(data)))
			var m model.Measurement
			if err := json.Unmarshal(data, &m); err != nil {
				// Malformed measurements never abort the subtest.
				log.Debug("cannot decode server measurement", "error", err)
			} else if d.OnMeasurement != nil {
				queue.enqueue(func() { d.OnMeasurement(m) })
			}
		}
		if time.Since(lastEmit) >= spec.MeasureInterval {
			lastEmit = time.Now()
			if d.OnProgress != nil {
				p := model.ProgressFrom(start, d.totalBytes.Load(), spec.TestDownload)
				queue.enqueue(func() { d.OnProgress(p) })
			}
		}
	}
}
