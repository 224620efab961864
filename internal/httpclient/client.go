// Package httpclient wraps net/http for the venue REST adapters: base-URL
// relative requests, JSON in/out, per-venue OTEL metrics and trace
// propagation on the transport.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/predikt/arb-agent/internal/httpclient"

const (
	defaultTimeout         = 10 * time.Second
	defaultMaxConnsPerHost = 5
	defaultIdleConnTimeout = 2 * time.Minute
	defaultDialKeepAlive   = 10 * time.Second
)

// Client issues requests against one venue endpoint.
type Client interface {
	// NewRequest starts a request builder carrying the client's base URL
	// and default headers.
	NewRequest() Request
	// Do executes a prebuilt http.Request on the underlying transport.
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

type options struct {
	baseURL  string
	provider string
	timeout  time.Duration
	headers  map[string]string
	client   *http.Client
}

// Option configures NewInstrumentedClient.
type Option func(*options)

// WithBaseURL sets the endpoint every relative path is resolved against.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithProviderName labels this client's metrics and traces with the venue.
func WithProviderName(name string) Option {
	return func(o *options) { o.provider = name }
}

// WithRequestTimeout overrides the default 10s whole-request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHeaders sets headers applied to every request from this client.
func WithHeaders(h map[string]string) Option {
	return func(o *options) { o.headers = h }
}

// WithHTTPClient supplies a preconfigured http.Client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

type instrumentedClient struct {
	client   *http.Client
	provider string
	baseURL  string
	headers  map[string]string

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInstrumentedClient builds a Client whose transport reports per-venue
// request counts and latencies and propagates trace context.
func NewInstrumentedClient(opts ...Option) (Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.provider == "" {
		o.provider = "default"
	}
	if o.timeout <= 0 {
		o.timeout = defaultTimeout
	}

	hc := o.client
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					KeepAlive: defaultDialKeepAlive,
				}).DialContext,
				MaxConnsPerHost: defaultMaxConnsPerHost,
				IdleConnTimeout: defaultIdleConnTimeout,
			},
		}
	}
	hc.Timeout = o.timeout
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = otelhttp.NewTransport(base,
		otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
			return otelhttptrace.NewClientTrace(ctx)
		}),
	)

	meter := otel.Meter(meterName,
		metric.WithInstrumentationAttributes(attribute.String("provider", o.provider)))
	requests, err := meter.Int64Counter("http_client_requests_total",
		metric.WithDescription("REST requests issued, by venue/method/status"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http_client_request_duration_ms",
		metric.WithDescription("Whole-request latency"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &instrumentedClient{
		client:   hc,
		provider: o.provider,
		baseURL:  o.baseURL,
		headers:  o.headers,
		requests: requests,
		duration: duration,
	}, nil
}

func (c *instrumentedClient) NewRequest() Request {
	headers := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		headers[k] = v
	}
	return &requestBuilder{client: c, headers: headers}
}

func (c *instrumentedClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(ctx))
}

func (c *instrumentedClient) record(ctx context.Context, method string, status int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", c.provider),
		attribute.String("method", method),
		attribute.Int("status", status),
	)
	c.requests.Add(ctx, 1, attrs)
	c.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}
