package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	v2 "github.com/m-lab/locate/api/v2"
)

// defaultLocateURL is the base URL of the M-Lab Locate API.
const defaultLocateURL = "https://locate.measurementlab.net/v2/nearest/"

var (
	// ErrServersOutOfCapacity is returned when the locate service has no
	// servers available for this client.
	ErrServersOutOfCapacity = errors.New("measurement servers out of capacity")

	// ErrRateLimited is returned when the locate service signals that this
	// client exceeded its quota.
	ErrRateLimited = errors.New("rate limited by the locate service")

	// ErrNoTargets is returned when a subtest is run against an empty server
	// list. When servers were tried and all failed, the last observed error
	// is returned instead.
	ErrNoTargets = errors.New("no targets available")

	// ErrInvalidURL is returned when a located server has no usable URL for
	// the requested scheme and subtest.
	ErrInvalidURL = errors.New("invalid test URL")
)

// Locator is an interface used to get a ranked list of available servers to
// test against.
type Locator interface {
	Nearest(ctx context.Context, service string) ([]v2.Target, error)
}

// locateClient is the default Locator. It queries the M-Lab Locate API over
// plain HTTP and classifies the response.
type locateClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewLocator returns a Locator backed by the M-Lab Locate API. The user
// agent is required by the service.
func NewLocator(userAgent string) Locator {
	return &locateClient{
		baseURL:   defaultLocateURL,
		userAgent: userAgent,
		client:    http.DefaultClient,
	}
}

func (l *locateClient) Nearest(ctx context.Context, service string) ([]v2.Target, error) {
	u, err := url.Parse(l.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", l.userAgent)
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("locate request failed: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	reply := v2.NearestResult{}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, err
	}
	if len(reply.Results) == 0 {
		return nil, ErrServersOutOfCapacity
	}
	return reply.Results, nil
}
