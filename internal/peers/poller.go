package peers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fancontrol/internal/logger"
)

const (
	// DefaultTimeout bounds a single peer request.
	DefaultTimeout = 5 * time.Second
	// DefaultMaxWorkers is the concurrent request cap when none is configured.
	DefaultMaxWorkers = 8
	// MaxWorkersLimit is the hard cap on concurrent peer requests.
	MaxWorkersLimit = 16

	maxBodyBytes = 4 << 10
)

var (
	errEmptyBody      = errors.New("empty body")
	errUnparsableBody = errors.New("body is not a temperature")
)

// PollError is the failure of one peer in a batch.
type PollError struct {
	Peer string
	URL  string
	Err  error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s (%s): %v", e.Peer, e.URL, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// Result is one peer's outcome: a temperature or an error.
type Result struct {
	Value float64
	Err   error
}

// OK reports whether the peer answered with a temperature.
func (r Result) OK() bool { return r.Err == nil }

// Transports a peer can be polled over.
const (
	MethodHTTP = "http"
	MethodSSH  = "ssh"
)

// ValidMethod reports whether m names a supported transport.
func ValidMethod(m string) bool { return m == MethodHTTP || m == MethodSSH }

// PollerConfig tunes a Poller.
type PollerConfig struct {
	Timeout    time.Duration
	MaxWorkers int
	Port       int
	Path       string
}

// Poller fetches peer temperatures concurrently.
type Poller struct {
	client     *http.Client
	timeout    time.Duration
	maxWorkers int
	port       int
	path       string
	log        *logger.Logger
}

// NewPoller builds a Poller. A nil client uses a fresh http.Client; the
// per-peer timeout is applied through request contexts either way.
func NewPoller(cfg PollerConfig, client *http.Client, log *logger.Logger) *Poller {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.MaxWorkers > MaxWorkersLimit {
		cfg.MaxWorkers = MaxWorkersLimit
	}
	return &Poller{
		client:     client,
		timeout:    cfg.Timeout,
		maxWorkers: cfg.MaxWorkers,
		port:       cfg.Port,
		path:       cfg.Path,
		log:        log,
	}
}

// Timeout returns the per-peer timeout.
func (p *Poller) Timeout() time.Duration { return p.timeout }

// Poll queries every peer in list and returns one Result per peer address.
// A failing peer never aborts the batch; each request has its own timeout so
// the whole call returns within roughly one timeout.
func (p *Poller) Poll(ctx context.Context, list List) map[string]Result {
	return pollAll(ctx, list, p.maxWorkers, p.log, p.pollOne)
}

// pollAll runs one per address with at most maxWorkers in flight and
// collects the results keyed by address.
func pollAll(ctx context.Context, list List, maxWorkers int, log *logger.Logger, one func(context.Context, string) Result) map[string]Result {
	addrs := list.Addrs()
	results := make([]Result, len(addrs))
	if len(addrs) == 0 {
		return map[string]Result{}
	}

	workers := maxWorkers
	if len(addrs) < workers {
		workers = len(addrs)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			results[i] = one(ctx, addr)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Result, len(addrs))
	for i, addr := range addrs {
		out[addr] = results[i]
		if results[i].Err != nil {
			log.Warnw("peer_poll_failed", "peer", addr, "err", results[i].Err)
		}
	}
	return out
}

func (p *Poller) pollOne(ctx context.Context, addr string) Result {
	url := NormalizeURL(addr, p.port, p.path)
	fail := func(err error) Result {
		return Result{Err: &PollError{Peer: addr, URL: url, Err: err}}
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fail(err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fail(fmt.Errorf("read body: %w", err))
	}
	v, err := ParseTemperature(body)
	if err != nil {
		return fail(err)
	}
	return Result{Value: v}
}

// temperatureKeys are the JSON object keys accepted as a temperature, in order.
var temperatureKeys = []string{"temp_celsius", "temperature", "temp", "cpu"}

// ParseTemperature reads a Celsius value from a plain-text or small JSON body.
func ParseTemperature(body []byte) (float64, error) {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return 0, errEmptyBody
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return finite(v)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return 0, fmt.Errorf("%w: %q", errUnparsableBody, truncate(s, 32))
	}
	for _, k := range temperatureKeys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			return finite(v)
		}
	}
	return 0, fmt.Errorf("%w: no temperature field", errUnparsableBody)
}

func finite(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", errUnparsableBody, v)
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
