// Package remote provides the call surface to the fleet's peers: one endpoint
// handle per telescope unit plus one for the shared spectrograph. Every call
// result is normalized into a canonical response; transport failures become
// error responses, never Go errors, so batch collection can treat all
// outcomes uniformly.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/specfleet/specfleet/pkg/canonical"
)

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 20 * time.Second

// Config describes how to reach one peer.
type Config struct {
	// Hostname is the short or fully qualified host name. Required unless
	// IPAddr is given.
	Hostname string

	// IPAddr skips resolution when set.
	IPAddr string

	// Domain is appended to short hostnames that do not resolve on their own.
	Domain string

	// Port of the peer's API listener.
	Port int

	// BasePath is the API prefix, e.g. "/api/v1/unit" or "/api/v1/spec".
	BasePath string

	// Timeout per call; DefaultTimeout when zero.
	Timeout time.Duration
}

// Endpoint is the handle to one remote peer. It tracks two health facts as a
// side effect of every call: Detected (a call has round-tripped at the
// transport level) and Operational (the peer's latest self-reported health).
type Endpoint struct {
	hostname string
	fqdn     string
	ipaddr   string
	baseURL  string

	client *http.Client
	logger zerolog.Logger

	mu          sync.Mutex
	detected    bool
	operational bool
}

// NewEndpoint resolves the peer's address and returns its handle. Resolution
// failure is not fatal: the handle falls back to the hostname and the peer
// will simply never become detected if it stays unreachable.
func NewEndpoint(cfg Config, logger zerolog.Logger) (*Endpoint, error) {
	if cfg.Hostname == "" && cfg.IPAddr == "" {
		return nil, fmt.Errorf("endpoint needs a hostname or an address")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	e := &Endpoint{
		hostname: cfg.Hostname,
		ipaddr:   cfg.IPAddr,
		client:   &http.Client{Timeout: timeout},
	}

	if e.ipaddr == "" {
		e.fqdn, e.ipaddr = resolve(cfg.Hostname, cfg.Domain)
	}

	host := e.ipaddr
	if host == "" {
		host = e.hostname
	}
	e.baseURL = fmt.Sprintf("http://%s%s", net.JoinHostPort(host, fmt.Sprint(cfg.Port)), cfg.BasePath)
	e.logger = logger.With().Str("peer", e.Name()).Logger()

	return e, nil
}

// resolve tries the hostname as given, then qualified with the domain.
func resolve(hostname, domain string) (fqdn, ipaddr string) {
	candidates := []string{hostname}
	if domain != "" && !strings.HasSuffix(hostname, "."+domain) {
		candidates = append(candidates, hostname+"."+domain)
	}
	for _, name := range candidates {
		addrs, err := net.LookupHost(name)
		if err == nil && len(addrs) > 0 {
			return name, addrs[0]
		}
	}
	return "", ""
}

// Name returns the most descriptive identity known for the peer.
func (e *Endpoint) Name() string {
	if e.hostname != "" {
		return e.hostname
	}
	return e.ipaddr
}

// Addr returns the resolved address, or the empty string.
func (e *Endpoint) Addr() string {
	return e.ipaddr
}

// BaseURL returns the peer's API prefix.
func (e *Endpoint) BaseURL() string {
	return e.baseURL
}

// Detected reports whether any call has ever round-tripped.
func (e *Endpoint) Detected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detected
}

// Operational reports the latest business-level health seen on this handle.
func (e *Endpoint) Operational() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.operational
}

func (e *Endpoint) setDetected(v bool) {
	e.mu.Lock()
	e.detected = v
	e.mu.Unlock()
}

func (e *Endpoint) setOperational(v bool) {
	e.mu.Lock()
	e.operational = v
	e.mu.Unlock()
}

// Get issues GET <base>/<method> and normalizes the result.
func (e *Endpoint) Get(ctx context.Context, method string, params url.Values) canonical.Response {
	u := e.baseURL + "/" + method
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return canonical.FromErrors(fmt.Sprintf("GET %s: %v", u, err))
	}
	return e.do(req)
}

// Put issues PUT <base>/<method> with a JSON body and normalizes the result.
func (e *Endpoint) Put(ctx context.Context, method string, body any) canonical.Response {
	u := e.baseURL + "/" + method

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return canonical.FromErrors(fmt.Sprintf("PUT %s: encode body: %v", u, err))
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, payload)
	if err != nil {
		return canonical.FromErrors(fmt.Sprintf("PUT %s: %v", u, err))
	}
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

// do executes the request and folds every failure mode into the envelope.
// A transport failure marks the peer undetected; a parsed body of any kind
// marks it detected.
func (e *Endpoint) do(req *http.Request) canonical.Response {
	resp, err := e.client.Do(req)
	if err != nil {
		e.setDetected(false)
		return canonical.FromErrors(fmt.Sprintf("%s %s: %v", req.Method, req.URL, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e.setDetected(false)
		return canonical.FromErrors(fmt.Sprintf("%s %s: read body: %v", req.Method, req.URL, err))
	}

	e.setDetected(true)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return canonical.FromErrors(fmt.Sprintf(
			"%s %s: HTTP %d: %s", req.Method, req.URL, resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var probe struct {
		APIVersion string `json:"api_version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return canonical.FromErrors(fmt.Sprintf("%s %s: decode: %v", req.Method, req.URL, err))
	}

	if probe.APIVersion != canonical.APIVersion {
		// Non-canonical peer; wrap the document as the value.
		e.logger.Warn().Str("url", req.URL.String()).Msg("non-canonical response, wrapping as value")
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return canonical.FromErrors(fmt.Sprintf("%s %s: decode: %v", req.Method, req.URL, err))
		}
		return canonical.Ok(value)
	}

	var cr canonical.Response
	if err := json.Unmarshal(raw, &cr); err != nil {
		return canonical.FromErrors(fmt.Sprintf("%s %s: decode envelope: %v", req.Method, req.URL, err))
	}
	return cr
}

// FetchStatus retrieves and decodes the peer's status, updating Operational
// as a side effect. The raw response is returned alongside so callers can
// report remote errors verbatim.
func (e *Endpoint) FetchStatus(ctx context.Context) (*Status, canonical.Response) {
	cr := e.Get(ctx, "status", nil)
	if cr.Failed() {
		e.setOperational(false)
		return nil, cr
	}

	status, err := DecodeStatus(cr.Value)
	if err != nil {
		e.setOperational(false)
		return nil, canonical.FromError(err)
	}

	e.setOperational(status.Operational)
	return status, cr
}

// ExecuteAssignment dispatches an assignment payload to the peer.
func (e *Endpoint) ExecuteAssignment(ctx context.Context, assignment any) canonical.Response {
	return e.Put(ctx, "execute_assignment", assignment)
}

// Abort asks the peer to abandon its current assignment. Best effort: the
// result is logged by callers but never decision-relevant.
func (e *Endpoint) Abort(ctx context.Context) canonical.Response {
	return e.Get(ctx, "abort", nil)
}
