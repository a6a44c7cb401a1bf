// Package collector gathers client metadata and reports it to a recorder
// endpoint or a third-party webhook as a single fire-and-forget beacon.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"time"

	"github.com/gojektech/heimdall/v6"
	"github.com/gojektech/heimdall/v6/httpclient"
)

const (
	// MethodPost sends the record as a JSON body
	MethodPost = "post"
	// MethodQuery sends a GET with the fields in the query string (webhook variant)
	MethodQuery = "query"

	// UnresolvedIP replaces the client address when the lookup fails
	UnresolvedIP = "0.0.0.0"

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// Record is the body of a beacon
type Record struct {
	IP        string `json:"ip,omitempty"`
	Language  string `json:"language"`
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
	Timezone  string `json:"timezone"`
	Date      string `json:"date"`
}

// Options selects the destination and variant of the beacon
type Options struct {
	Destination     string
	Method          string
	IncludeIPLookup bool
	LookupURL       string
	// AppendIPParam also passes the resolved address as ?ip= on POST
	AppendIPParam bool
	Timeout       time.Duration
}

type Collector struct {
	opts   Options
	env    Environment
	client heimdall.Doer
	logger *slog.Logger
	now    func() time.Time
}

// New builds a collector. Requests are never retried.
func New(opts Options, env Environment, logger *slog.Logger) *Collector {
	if opts.Method == "" {
		opts.Method = MethodPost
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(opts.Timeout),
		httpclient.WithRetryCount(0),
	)

	return &Collector{
		opts:   opts,
		env:    env,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Gather builds a record from locally observable values
func (c *Collector) Gather() Record {
	return Record{
		Language:  c.env.Language,
		UserAgent: c.env.UserAgent,
		Platform:  c.env.Platform,
		Timezone:  c.env.Timezone,
		Date:      c.now().UTC().Format(isoMillis),
	}
}

// ResolveIP asks the lookup service for the public address. It never fails:
// any problem yields UnresolvedIP so the rest of the record is still sent.
func (c *Collector) ResolveIP(ctx context.Context) string {
	ip, err := c.lookupIP(ctx)
	if err != nil {
		c.logger.Warn("IP lookup failed", "url", c.opts.LookupURL, "error", err)
		return UnresolvedIP
	}
	return ip
}

func (c *Collector) lookupIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.LookupURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("lookup returned %s", resp.Status)
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		return "", fmt.Errorf("malformed lookup response: %w", err)
	}

	addr, err := netip.ParseAddr(body.IP)
	if err != nil {
		return "", fmt.Errorf("lookup returned invalid address %q", body.IP)
	}
	return addr.String(), nil
}

// Submit sends rec once to the destination
func (c *Collector) Submit(ctx context.Context, rec Record) error {
	req, err := c.buildRequest(ctx, rec)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("beacon submit failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("beacon rejected: %s", resp.Status)
	}
	return nil
}

func (c *Collector) buildRequest(ctx context.Context, rec Record) (*http.Request, error) {
	dest, err := url.Parse(c.opts.Destination)
	if err != nil {
		return nil, fmt.Errorf("invalid destination: %w", err)
	}
	q := dest.Query()

	switch c.opts.Method {
	case MethodQuery:
		if rec.IP != "" {
			q.Set("ip", rec.IP)
		}
		q.Set("lang", rec.Language)
		q.Set("ua", rec.UserAgent)
		q.Set("os", rec.Platform)
		q.Set("tz", rec.Timezone)
		dest.RawQuery = q.Encode()
		return http.NewRequestWithContext(ctx, http.MethodGet, dest.String(), nil)

	case MethodPost:
		if c.opts.AppendIPParam && rec.IP != "" {
			q.Set("ip", rec.IP)
			dest.RawQuery = q.Encode()
		}
		body, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode beacon: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.String(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil

	default:
		return nil, fmt.Errorf("unknown beacon method %q", c.opts.Method)
	}
}

// Send gathers, optionally resolves the public IP, and submits one beacon
func (c *Collector) Send(ctx context.Context) error {
	rec := c.Gather()
	if c.opts.IncludeIPLookup {
		rec.IP = c.ResolveIP(ctx)
	}
	return c.Submit(ctx, rec)
}

// Fire sends a beacon in the background and returns immediately. The outcome
// is only logged; cancelling ctx afterwards does not abort the beacon.
func (c *Collector) Fire(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := c.Send(ctx); err != nil {
			c.logger.Warn("Beacon not delivered", "destination", c.opts.Destination, "error", err)
			return
		}
		c.logger.Debug("Beacon delivered", "destination", c.opts.Destination)
	}()
}

// Heartbeat fires a beacon every interval until ctx is done. A slow
// destination never delays the next tick.
func (c *Collector) Heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Fire(ctx)
		}
	}
}
