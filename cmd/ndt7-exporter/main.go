// Command ndt7-exporter runs periodic ndt7 measurement sessions and exports
// the latest results as Prometheus metrics.
package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netmeasure/ndt7-client/pkg/client"
	"github.com/netmeasure/ndt7-client/pkg/version"
)

const exporterName = "ndt7-exporter"

var (
	flagListen   = flag.String("listen", ":9190", "Address to serve /metrics on")
	flagInterval = flag.Duration("interval", 30*time.Minute, "Interval between measurement sessions")
	flagServer   = flag.String("server", "", "Measurement server address (host:port); bypasses the locator")
	flagDuration = flag.Duration("duration", 10*time.Second, "Length of each subtest")
	flagNoVerify = flag.Bool("no-verify", false, "Skip TLS certificate verification")
)

var (
	throughputGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ndt7_throughput_mbps",
		Help: "Mean application-level throughput of the last measurement.",
	}, []string{"test"})
	bytesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ndt7_bytes_transferred",
		Help: "Bytes transferred during the last measurement.",
	}, []string{"test"})
	minRTTGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ndt7_min_rtt_seconds",
		Help: "Minimum RTT reported by the server during the last measurement.",
	}, []string{"test"})
	lastRunGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ndt7_last_run_timestamp_seconds",
		Help: "Unix time of the last completed measurement session.",
	})
	sessionsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndt7_sessions_total",
		Help: "Measurement sessions, by outcome.",
	}, []string{"status"})
)

func measure(ctx context.Context) {
	cl := client.New(exporterName, version.Version, client.Config{
		Server:   *flagServer,
		Duration: *flagDuration,
		NoVerify: *flagNoVerify,
	})
	err := cl.Start(ctx, client.TestTypeDownloadThenUpload)
	if err != nil {
		log.Error("measurement session failed", "error", err)
		sessionsCounter.WithLabelValues("error").Inc()
		return
	}
	for kind, r := range cl.Results() {
		labels := prometheus.Labels{"test": string(kind)}
		throughputGauge.With(labels).Set(r.Throughput)
		bytesGauge.With(labels).Set(float64(r.BytesTransferred))
		minRTTGauge.With(labels).Set(float64(r.MinRTT) / 1e6)
	}
	lastRunGauge.SetToCurrentTime()
	sessionsCounter.WithLabelValues("success").Inc()
}

func main() {
	flag.Parse()

	go func() {
		ctx := context.Background()
		measure(ctx)
		ticker := time.NewTicker(*flagInterval)
		defer ticker.Stop()
		for range ticker.C {
			measure(ctx)
		}
	}()

	http.Handle("/metrics", promhttp.Handler())
	log.Info("serving metrics", "listen", *flagListen, "interval", *flagInterval)
	if err := http.ListenAndServe(*flagListen, nil); err != nil {
		log.Fatal("server failed", "error", err)
	}
}
