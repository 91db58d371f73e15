package ndt7

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/netmeasure/ndt7-client/internal/measurer"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/model"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
)

// UploadClient is a send-dominant WebSocket producer implementing the ndt7
// upload subtest. An UploadClient is good for a single Start call.
type UploadClient struct {
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

	// OnProgress is called on locally computed progress samples based on the
	// bytes sent so far.
	OnProgress func(model.Progress)

	// OnMeasurement is called on decoded server measurements and on
	// client-origin connection samples.
	OnMeasurement func(model.Measurement)

	// OnFinish is called exactly once with the final progress sample and the
	// terminal error, if any. No other callback follows it.
	OnFinish func(model.Progress, error)

	totalSent atomic.Int64
	latch     completion
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewUploadClient returns an UploadClient for the given URL. A duration of
// zero selects the default measurement window.
func NewUploadClient(url string, duration time.Duration) *UploadClient {
	if duration <= 0 {
		duration = spec.DefaultTestDuration
	}
	return &UploadClient{
		URL:      url,
		Duration: duration,
		stop:     make(chan struct{}),
	}
}

// Start runs the upload subtest. It resolves once the subtest is fully torn
// down; the returned error matches the one delivered to OnFinish.
func (u *UploadClient) Start(ctx context.Context) error {
	queue := newCallbackQueue()
	start := time.Now()

	conn, err := dial(ctx, u.URL, u.UserAgent, u.DeviceName, u.InsecureTLS)
	if err != nil {
		return u.finish(queue, start, err)
	}

	deadline := start.Add(u.Duration + deadlineGrace)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	mctx, mcancel := context.WithCancel(ctx)
	defer mcancel()
	samples := measurer.Start(mctx, conn.UnderlyingConn(), spec.TestUpload, u.totalSent.Load)

	// Buffered for both the reader and the sender, so neither goroutine
	// blocks once the terminal loop has returned.
	errCh := make(chan error, 2)
	go u.readLoop(conn, queue, errCh)
	go u.sendLoop(conn, start, queue, errCh)

	timeout := time.NewTimer(u.Duration)
	defer timeout.Stop()

	var terminal error
loop:
	for {
		select {
		case <-timeout.C:
			// Client-side timeout: close and declare success, even if the
			// in-flight write surfaces a transport error right after.
			sendClose(conn)
			break loop
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
			if u.OnMeasurement != nil {
				m := m
				queue.enqueue(func() { u.OnMeasurement(m) })
			}
		case <-u.stop:
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
	return u.finish(queue, start, terminal)
}

// Stop cooperatively aborts the subtest. It is idempotent and safe to call
// at any point of the client's lifecycle; OnFinish still fires exactly once.
func (u *UploadClient) Stop() {
	u.stopOnce.Do(func() { close(u.stop) })
}

func (u *UploadClient) finish(queue *callbackQueue, start time.Time, terminal error) error {
	if u.latch.resolve() {
		final := model.ProgressFrom(start, u.totalSent.Load(), spec.TestUpload)
		if u.OnFinish != nil {
			queue.enqueue(func() { u.OnFinish(final, terminal) })
		}
	}
	queue.close()
	return terminal
}

// makePreparedMessage returns a WebSocket binary message of the requested
// size filled with random bytes.
func makePreparedMessage(rnd *rand.Rand, size int) (*websocket.PreparedMessage, error) {
	data := make([]byte, size)
	rnd.Read(data)
	return websocket.NewPreparedMessage(websocket.BinaryMessage, data)
}

// sendLoop writes binary messages back to back until the connection is
// closed. Writes are synchronous: the loop naturally suspends on the TCP
// send buffer, so no outbound frame queue exists.
func (u *UploadClient) sendLoop(conn *websocket.Conn, start time.Time,
	queue *callbackQueue, errCh chan<- error) {
	// Each sender has its own randomness source, so concurrent Read calls
	// cannot happen.
	rnd := rand.New(rand.NewSource(time.Now().UnixMilli()))
	size := spec.MinMessageSize
	msg, err := makePreparedMessage(rnd, size)
	if err != nil {
		errCh <- err
		return
	}
	lastEmit := start
	for {
		if err := conn.WritePreparedMessage(msg); err != nil {
			errCh <- err
			return
		}
		total := u.totalSent.Add(int64(size))

		// Grow the message once enough bytes are on the wire. A slow link
		// stays at small frames; a fast one amortizes framing overhead.
		if next := nextMessageSize(size, total); next != size {
			size = next
			if msg, err = makePreparedMessage(rnd, size); err != nil {
				errCh <- err
				return
			}
		}

		if time.Since(lastEmit) >= spec.MeasureInterval {
			lastEmit = time.Now()
			if u.OnProgress != nil {
				p := model.ProgressFrom(start, u.totalSent.Load(), spec.TestUpload)
				queue.enqueue(func() { u.OnProgress(p) })
			}
		}
	}
}

// nextMessageSize doubles the message size when the total bytes sent reach
// ScalingFraction times the current size, capped at MaxScaledMessageSize.
func nextMessageSize(size int, totalSent int64) int {
	if size >= spec.MaxScaledMessageSize {
		return size
	}
	if totalSent < int64(spec.ScalingFraction)*int64(size) {
		return size
	}
	return size * 2
}

// readLoop consumes server TEXT frames carrying measurements. Received
// bytes never count into the upload totals.
func (u *UploadClient) readLoop(conn *websocket.Conn, queue *callbackQueue,
	errCh chan<- error) {
	for {
		kind, reader, err := conn.NextReader()
		if err != nil {
			errCh <- err
			return
		}
		if kind != websocket.TextMessage {
			// Servers do not send binary frames during an upload; drain and
			// ignore stray ones.
			io.Copy(io.Discard, reader)
			continue
		}
		data, err := io.ReadAll(reader)
		if err != nil {
			errCh <- err
			return
		}
		var m model.Measurement
		if err := json.Unmarshal(data, &m); err != nil {
			log.Debug("cannot decode server measurement", "error", err)
			continue
		}
		if u.OnMeasurement != nil {
			queue.enqueue(func() { u.OnMeasurement(m) })
		}
	}
}
