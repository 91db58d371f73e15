package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	v2 "github.com/m-lab/locate/api/v2"

	"github.com/netmeasure/ndt7-client/pkg/ndt7"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/model"
	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
)

// runPhase drives one subtest across the ranked server list. Each server is
// attempted up to spec.MaxAttempts times with spec.InterAttemptDelay between
// attempts; structurally incompatible servers are skipped immediately. On
// exhaustion the last observed error is returned.
func (c *NDT7Client) runPhase(ctx context.Context, kind spec.TestKind, targets []v2.Target) error {
	urlKey := c.config.Scheme + "://" + kind.Path()
	var lastErr error
	for i := range targets {
		target := targets[i]
		raw := target.URLs[urlKey]
		if u, err := url.Parse(raw); raw == "" || err != nil || u.Host == "" {
			lastErr = fmt.Errorf("%w: %q (machine %q)", ErrInvalidURL, raw, target.Machine)
			log.Debug("skipping server without usable URL", "machine", target.Machine, "key", urlKey)
			continue
		}
		for attempt := 1; attempt <= spec.MaxAttempts; attempt++ {
			if c.isCancelled() {
				return ndt7.ErrCancelled
			}
			if attempt > 1 {
				if err := sleepContext(ctx, spec.InterAttemptDelay); err != nil {
					return ndt7.ErrCancelled
				}
			}
			c.config.Emitter.OnStart(kind, target.Machine)
			result, err := c.runAttempt(ctx, kind, raw, target.Machine)
			if err == nil {
				if result.BytesTransferred > 0 {
					c.storeResult(result)
					c.config.Emitter.OnPhaseComplete(kind, result)
					return nil
				}
				// A clean end with zero bytes is retryable.
				err = ndt7.ErrNoData
			}
			if errors.Is(err, ndt7.ErrCancelled) {
				return err
			}
			lastErr = err
			c.config.Emitter.OnError(kind, err)
			log.Debug("attempt failed", "kind", kind, "machine", target.Machine,
				"attempt", attempt, "error", err)
			if ndt7.IsServerSkipError(err) {
				// Retrying a structurally incompatible server is pointless.
				log.Debug("skipping incompatible server", "machine", target.Machine)
				break
			}
		}
	}
	if lastErr == nil {
		lastErr = ErrNoTargets
	}
	return lastErr
}

// runAttempt runs a single fresh subtest client to completion and collects
// its terminal metrics. The attempt is registered as the session's active
// phase for the duration of the run so that Cancel can reach it.
func (c *NDT7Client) runAttempt(ctx context.Context, kind spec.TestKind,
	rawURL, machine string) (Result, error) {
	result := Result{Kind: kind, Server: machine}
	userAgent := makeUserAgent(c.ClientName, c.ClientVersion)

	onMeasurement := func(m model.Measurement) {
		if m.Origin == "server" && m.TCPInfo != nil {
			result.MinRTT = m.TCPInfo.MinRTT
		}
		c.config.Emitter.OnMeasurement(kind, m)
	}
	onFinish := func(p model.Progress, err error) {
		result.Elapsed = p.Elapsed
		result.BytesTransferred = p.NumBytes
		result.Throughput = p.MeanMbps
	}

	var runner phaseRunner
	switch kind {
	case spec.TestUpload:
		uc := ndt7.NewUploadClient(rawURL, c.config.Duration)
		uc.UserAgent = userAgent
		uc.DeviceName = c.config.DeviceName
		uc.InsecureTLS = c.config.NoVerify
		uc.OnProgress = c.config.Emitter.OnProgress
		uc.OnMeasurement = onMeasurement
		uc.OnFinish = onFinish
		runner = uc
	default:
		dc := ndt7.NewDownloadClient(rawURL, c.config.Duration)
		dc.UserAgent = userAgent
		dc.DeviceName = c.config.DeviceName
		dc.InsecureTLS = c.config.NoVerify
		dc.OnProgress = c.config.Emitter.OnProgress
		dc.OnMeasurement = onMeasurement
		dc.OnFinish = onFinish
		runner = dc
	}

	c.setActive(runner)
	err := runner.Start(ctx)
	c.setActive(nil)
	return result, err
}

// sleepContext pauses for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
