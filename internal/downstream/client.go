// Package downstream is the outbound edge of the gateway: every call to an
// internal service goes through the per-dependency circuit breaker and
// carries the signed-request header.
package downstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"civicgate/internal/circuit"
	"civicgate/internal/platform/metrics"
	"civicgate/internal/signer"
)

const defaultTimeout = 10 * time.Second

// Client calls internal services on behalf of the gateway.
type Client struct {
	httpClient *http.Client
	breakers   *circuit.Manager
	signer     *signer.Signer
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics wires the signed-request counter.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New constructs a downstream client.
func New(breakers *circuit.Manager, sgn *signer.Signer, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		breakers:   breakers,
		signer:     sgn,
		tracer:     otel.Tracer("civicgate/downstream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON sends a JSON POST to an internal service under its breaker.
// Transport errors and 5xx responses count as failures; anything else is the
// dependency answering, which is a success as far as the breaker is concerned.
// When the breaker is open the call fails fast with *circuit.OpenError and the
// request is never sent.
func (c *Client) PostJSON(ctx context.Context, service, targetURL string, body []byte) ([]byte, int, error) {
	var (
		respBody   []byte
		statusCode int
	)

	breaker := c.breakers.Get(service)
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, span := c.tracer.Start(ctx, "downstream.post",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("peer.service", service),
				attribute.String("url.full", targetURL),
			),
		)
		defer span.End()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("build downstream request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.attachSignature(req, targetURL)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("call %s: %w", service, err)
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode
		span.SetAttributes(attribute.Int("http.response.status_code", statusCode))

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("read %s response: %w", service, err)
		}
		if statusCode >= http.StatusInternalServerError {
			err := fmt.Errorf("%s returned status %d", service, statusCode)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		return nil
	})
	if err != nil {
		return nil, statusCode, err
	}
	return respBody, statusCode, nil
}

// QueryGraphQL posts a GraphQL document to an internal service.
func (c *Client) QueryGraphQL(ctx context.Context, service, targetURL string, payload []byte) ([]byte, error) {
	body, _, err := c.PostJSON(ctx, service, targetURL, payload)
	return body, err
}

// attachSignature adds the signed-request header when signing is enabled.
func (c *Client) attachSignature(req *http.Request, targetURL string) {
	if !c.signer.Enabled() {
		return
	}

	value := ""
	if parsed, err := url.Parse(targetURL); err == nil && parsed.Path != "" {
		value = c.signer.Sign(req.Method, parsed.Path, req.Header.Get("Content-Type"))
	} else {
		value = c.signer.SignGraphQLRequest(targetURL)
	}
	if value == "" {
		return
	}
	req.Header.Set(signer.Header, value)
	if c.metrics != nil {
		c.metrics.SignedRequests.Inc()
	}
}
