// Package dispatch forwards a single admitted request to its occupied node
// and buffers the full response, issuing exactly one registry post-update
// on every exit path — the Dispatcher component of spec.md §4.4.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/stacklok/balancer/internal/registry"
	"github.com/stacklok/balancer/pkg/logger"
)

// Outcome kinds surfaced by Dispatch, per spec.md §7. BackendErrorStatus is
// not a Go error: a non-2xx backend response is passed through verbatim and
// reported via Result.StatusCode, not via err.
var (
	// ErrBackendUnreachable is returned when the outbound request fails at
	// the transport level (timeout, connect refused, TLS error).
	ErrBackendUnreachable = errors.New("backend unreachable")
	// ErrBackendReadError is returned when headers were received but the
	// body could not be read to completion.
	ErrBackendReadError = errors.New("backend read error")
)

//go:generate mockgen -destination=mocks/mock_http_client.go -package=mocks -source=dispatch.go HTTPClient

// HTTPClient is the minimal outbound interface Dispatch depends on,
// satisfied directly by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is what Dispatch returns to the caller on every non-error path,
// including a pass-through of a non-2xx backend response.
type Result struct {
	StatusCode int
	Body       []byte
}

const (
	// DefaultTotalTimeout bounds an entire outbound call.
	DefaultTotalTimeout = 300 * time.Second
	// DefaultConnectTimeout bounds establishing the TCP connection.
	DefaultConnectTimeout = 10 * time.Second
)

// NewHTTPClient builds the production HTTPClient with the spec's default
// timeouts: a total request timeout and a separate connect timeout applied
// via the transport's dialer.
func NewHTTPClient(totalTimeout, connectTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Timeout:   totalTimeout,
		Transport: transport,
	}
}

// Dispatcher performs the outbound call for an occupied node and the
// post-condition registry update.
type Dispatcher struct {
	Client HTTPClient
}

// New builds a Dispatcher around the given HTTP client.
func New(client HTTPClient) *Dispatcher {
	return &Dispatcher{Client: client}
}

// Dispatch POSTs body to endpointURL with Content-Type: application/json,
// buffers the response, and sets the node's health on every exit path:
// Available on a 2xx response, Failed otherwise (read error, non-2xx
// status, or transport failure). It is guaranteed to call SetHealth exactly
// once, including if the outbound call panics.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	reg *registry.Registry,
	id, endpointURL string,
	body []byte,
) (result Result, err error) {
	settled := false
	release := func(health registry.Health) {
		if settled {
			return
		}
		settled = true
		reg.SetHealth(id, health)
	}
	defer func() {
		if p := recover(); p != nil {
			release(registry.Health{State: registry.Failed, FailedSince: time.Now()})
			panic(p)
		}
	}()

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if reqErr != nil {
		release(registry.Health{State: registry.Failed, FailedSince: time.Now()})
		return Result{}, fmt.Errorf("%w: %s", ErrBackendUnreachable, reqErr)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, doErr := d.Client.Do(req)
	if doErr != nil {
		logger.Warnw("backend unreachable", "node_id", id, "endpoint", endpointURL, "error", doErr)
		release(registry.Health{State: registry.Failed, FailedSince: time.Now()})
		return Result{}, fmt.Errorf("%w: %s", ErrBackendUnreachable, doErr)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		logger.Warnw("backend read error", "node_id", id, "endpoint", endpointURL, "error", readErr)
		release(registry.Health{State: registry.Failed, FailedSince: time.Now()})
		return Result{}, fmt.Errorf("%w: %s", ErrBackendReadError, readErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		release(registry.Health{State: registry.Available})
	} else {
		logger.Infow("backend returned non-2xx status", "node_id", id, "endpoint", endpointURL, "status", resp.StatusCode)
		release(registry.Health{State: registry.Failed, FailedSince: time.Now()})
	}

	return Result{StatusCode: resp.StatusCode, Body: respBody}, nil
}
