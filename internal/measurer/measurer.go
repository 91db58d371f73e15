// Package measurer periodically samples the state of a measurement
// connection from the client's side.
package measurer

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/go/rtx"

	"github.com/netmeasure/ndt7-client/internal/netx"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/model"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
)

type measurer struct {
	connInfo  netx.ConnInfo
	conn      net.Conn
	kind      spec.TestKind
	appBytes  func() int64
	startTime time.Time
	ticker    *memoryless.Ticker
	first     bool

	dstChan chan model.Measurement
}

// Start starts a measurer goroutine that periodically reads the TCP_INFO and
// BBR variables of the connection, if available on this platform, combines
// them with the application-level byte counter returned by appBytes, and
// sends them wrapped in a client-origin Measurement over the returned
// channel.
//
// The context determines the measurer goroutine's lifetime.
func Start(ctx context.Context, conn net.Conn, kind spec.TestKind,
	appBytes func() int64) <-chan model.Measurement {
	// Implementation note: this channel must be buffered to account for slow
	// readers. The typical reader is a phase client's terminal loop, which
	// might be busy handling other events. The buffer size corresponds to at least
	// 10 seconds:
	//
	// 10000ms / 100 ms/sample = 100 samples
	dst := make(chan model.Measurement, 100)

	t, err := memoryless.NewTicker(ctx, memoryless.Config{
		Min:      spec.MinSampleInterval,
		Expected: spec.AvgSampleInterval,
		Max:      spec.MaxSampleInterval,
	})
	// This can only error if min/expected/max above are set to invalid
	// values. Since they are constants, we panic here.
	rtx.PanicOnError(err, "ticker creation failed (this should never happen)")

	connInfo, err := netx.ToConnInfo(conn)
	if err != nil {
		// Not a netx-wrapped connection: kernel-level samples aren't
		// available, application-level ones still are.
		log.Debug("connection does not expose fd-level info", "error", err)
	}
	m := &measurer{
		connInfo: connInfo,
		conn:     conn,
		kind:     kind,
		appBytes: appBytes,
		ticker:   t,
		first:    true,
		dstChan:  dst,
	}

	go func() {
		m.startTime = time.Now()
		m.loop(ctx)
	}()
	return dst
}

func (m *measurer) stop() {
	m.ticker.Stop()
	close(m.dstChan)
}

func (m *measurer) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.stop()
			return
		case <-m.ticker.C:
			m.measure(ctx)
		}
	}
}

func (m *measurer) measure(ctx context.Context) {
	elapsed := time.Since(m.startTime).Microseconds()
	sample := model.Measurement{
		AppInfo: &model.AppInfo{
			NumBytes:    m.appBytes(),
			ElapsedTime: elapsed,
		},
		Origin: "client",
		Test:   m.kind,
	}
	if m.connInfo != nil {
		// Note: reading BBR variables is expected to fail when the flow does
		// not use BBR; TCP_INFO is expected to fail on non-Linux platforms.
		bbrInfo, tcpInfo, err := m.connInfo.Info()
		if err == nil {
			sample.BBRInfo = &model.BBRInfo{BBRInfo: bbrInfo, ElapsedTime: elapsed}
			sample.TCPInfo = &model.TCPInfo{LinuxTCPInfo: tcpInfo, ElapsedTime: elapsed}
		}
	}
	if m.first {
		m.first = false
		ci := &model.ConnectionInfo{
			Client: m.conn.LocalAddr().String(),
			Server: m.conn.RemoteAddr().String(),
		}
		if m.connInfo != nil {
			ci.UUID, _ = m.connInfo.UUID()
		}
		sample.ConnectionInfo = ci
	}

	select {
	case <-ctx.Done():
		// NOTHING
	case m.dstChan <- sample:
	}
}
