// Package client implements an ndt7 measurement session: server discovery
// through the M-Lab Locate API, then a download and/or an upload subtest
// with per-server retries and failover.
package client

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	v2 "github.com/m-lab/locate/api/v2"

	"github.com/netmeasure/ndt7-client/pkg/ndt7/spec"
	"github.com/netmeasure/ndt7-client/pkg/version"
)

const (
	// locateService is the Locate API service name for ndt7.
	locateService = "ndt/ndt7"

	// DefaultScheme is the default WebSocket scheme for a new client.
	DefaultScheme = "wss"

	// defaultLocateCacheTTL is how long discovery results are reused when
	// the configuration does not say otherwise.
	defaultLocateCacheTTL = 5 * time.Minute

	libraryName = "ndt7-client-go"
)

var libraryVersion = version.Version

// TestType selects which subtests a Start call runs.
type TestType string

const (
	// TestTypeDownload runs only the download subtest.
	TestTypeDownload = TestType("download")

	// TestTypeUpload runs only the upload subtest.
	TestTypeUpload = TestType("upload")

	// TestTypeDownloadThenUpload runs the download subtest and, if it
	// succeeds, the upload subtest.
	TestTypeDownloadThenUpload = TestType("download+upload")
)

// Result contains the metrics collected during one subtest.
type Result struct {
	// Kind is the subtest this result belongs to.
	Kind spec.TestKind
	// Server is the machine the subtest actually ran against. When the
	// driver fails over, this differs from the server announced via
	// OnServerSelected.
	Server string
	// Elapsed is the subtest duration.
	Elapsed time.Duration
	// BytesTransferred is the number of application-level bytes transferred.
	BytesTransferred int64
	// Throughput is the mean application-level throughput in Mbit/s.
	Throughput float64
	// MinRTT is the minimum round-trip time reported by the server, in
	// microseconds.
	MinRTT uint32
}

// NDT7Client is an ndt7 measurement session client.
type NDT7Client struct {
	// ClientName is the name of the client sent to the server as part of the
	// user-agent.
	ClientName string
	// ClientVersion is the version of the client sent to the server as part
	// of the user-agent.
	ClientVersion string

	config  Config
	locator Locator

	// targets caches ranked discovery results per service.
	targets *ttlcache.Cache[string, []v2.Target]

	mu        sync.Mutex
	selected  *v2.Target
	active    phaseRunner
	cancelled bool
	results   map[spec.TestKind]Result
}

// phaseRunner is one subtest attempt in flight.
type phaseRunner interface {
	Start(ctx context.Context) error
	Stop()
}

// makeUserAgent creates the user agent string.
func makeUserAgent(clientName, clientVersion string) string {
	return clientName + "/" + clientVersion + " " + libraryName + "/" + libraryVersion
}

// New returns a new NDT7Client with the provided client name, version and
// config. It panics if clientName or clientVersion are empty.
func New(clientName, clientVersion string, config Config) *NDT7Client {
	if clientName == "" || clientVersion == "" {
		panic("client name and version must be non-empty")
	}
	if config.Scheme == "" {
		config.Scheme = DefaultScheme
	}
	if config.Duration <= 0 {
		config.Duration = spec.DefaultTestDuration
	}
	if config.Emitter == nil {
		config.Emitter = quiet{}
	}
	ttl := config.LocateCacheTTL
	if ttl <= 0 {
		ttl = defaultLocateCacheTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []v2.Target](ttl),
		ttlcache.WithDisableTouchOnHit[string, []v2.Target](),
	)
	go cache.Start()
	return &NDT7Client{
		ClientName:    clientName,
		ClientVersion: clientVersion,
		config:        config,
		locator:       NewLocator(makeUserAgent(clientName, clientVersion)),
		targets:       cache,
		results:       map[spec.TestKind]Result{},
	}
}

// Start performs discovery and runs the subtests selected by testType. For
// TestTypeDownloadThenUpload the two subtests run sequentially and a failure
// in the download aborts the upload. The first fatal error from any subtest
// is returned.
func (c *NDT7Client) Start(ctx context.Context, testType TestType) error {
	c.mu.Lock()
	c.cancelled = false
	c.results = map[spec.TestKind]Result{}
	c.mu.Unlock()

	targets, err := c.discover(ctx)
	if err != nil {
		return err
	}

	// Selection is locked at discovery: the first ranked server is the
	// selected one even if the driver later fails over.
	c.mu.Lock()
	c.selected = &targets[0]
	c.mu.Unlock()
	c.config.Emitter.OnServerSelected(targets[0])

	if testType == TestTypeDownload || testType == TestTypeDownloadThenUpload {
		if err := c.runPhase(ctx, spec.TestDownload, targets); err != nil {
			return err
		}
	}
	if testType == TestTypeUpload || testType == TestTypeDownloadThenUpload {
		if err := c.runPhase(ctx, spec.TestUpload, targets); err != nil {
			return err
		}
	}
	c.config.Emitter.OnSummary(c.Results())
	return nil
}

// Cancel signals the currently active subtest to stop. It is safe to call at
// any time, including when no subtest is active, and does not block on
// teardown.
func (c *NDT7Client) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	active := c.active
	c.mu.Unlock()
	if active != nil {
		active.Stop()
	}
}

// Selected returns the server locked at discovery time, if any.
func (c *NDT7Client) Selected() (v2.Target, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return v2.Target{}, false
	}
	return *c.selected, true
}

// Results returns a copy of the per-subtest results collected so far.
func (c *NDT7Client) Results() map[spec.TestKind]Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[spec.TestKind]Result, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// discover returns the ranked server list, either synthesized from the
// directly configured server or from the (cached) Locate API response.
func (c *NDT7Client) discover(ctx context.Context) ([]v2.Target, error) {
	if c.config.Server != "" {
		return []v2.Target{c.directTarget()}, nil
	}
	if item := c.targets.Get(locateService); item != nil {
		return item.Value(), nil
	}
	targets, err := c.locator.Nearest(ctx, locateService)
	if err != nil {
		return nil, err
	}
	c.targets.Set(locateService, targets, ttlcache.DefaultTTL)
	return targets, nil
}

// directTarget builds a single-server target list entry from the configured
// host:port, using the well-known subtest paths.
func (c *NDT7Client) directTarget() v2.Target {
	urls := map[string]string{}
	for _, p := range []string{spec.DownloadPath, spec.UploadPath} {
		u := url.URL{Scheme: c.config.Scheme, Host: c.config.Server, Path: p}
		urls[c.config.Scheme+"://"+p] = u.String()
	}
	return v2.Target{
		Machine: c.config.Server,
		URLs:    urls,
	}
}

// isCancelled reports whether Cancel has been called since the last Start.
func (c *NDT7Client) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *NDT7Client) storeResult(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[r.Kind] = r
}

func (c *NDT7Client) setActive(p phaseRunner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = p
}
