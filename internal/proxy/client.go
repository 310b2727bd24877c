package proxy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hearthd/sandboxd/internal/logging"
	"github.com/hearthd/sandboxd/internal/monitoring"
	"github.com/hearthd/sandboxd/internal/protocol"
	"github.com/hearthd/sandboxd/internal/shared/id"
)

// Sender is the outbound half of the channel the client frames requests
// onto. Satisfied by *transport.Transport.
type Sender interface {
	Send(msg *protocol.Message) error
}

// Request describes one outbound HTTP call to be executed by the host.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// Timeout bounds the whole round trip. Zero means the client default.
	Timeout time.Duration
}

// Response is a reconstructed HTTP response.
type Response struct {
	Status  int
	Headers map[string]string
	body    []byte
}

// Bytes returns the raw body.
func (r *Response) Bytes() []byte { return r.body }

// Text decodes the body as UTF-8, replacing invalid sequences.
func (r *Response) Text() string { return protocol.ByteBody(r.body).Text() }

// Options configures a Client.
type Options struct {
	// DefaultTimeout applies to requests that carry none.
	DefaultTimeout time.Duration
	// RequestsPerSecond and Burst bound the outbound call rate; zero
	// disables limiting.
	RequestsPerSecond int
	Burst             int
}

// Client issues correlated outbound calls over the channel.
type Client struct {
	table   *Table
	sender  Sender
	limiter *rate.Limiter
	timeout time.Duration
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewClient creates a proxy client over the given correlation table and
// sender. Metrics may be nil.
func NewClient(table *Table, sender Sender, opts Options, log *logging.Logger, metrics *monitoring.Metrics) *Client {
	if log == nil {
		log = logging.NewNop()
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = opts.RequestsPerSecond
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		table:   table,
		sender:  sender,
		limiter: limiter,
		timeout: timeout,
		log:     log.Named("proxy"),
		metrics: metrics,
	}
}

// Do issues one call and suspends until a matching response, the deadline,
// or channel closure.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("proxy: rate limit wait: %w", err)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	requestID := id.NewRequestID().String()
	deadline := time.Now().Add(timeout)

	done, err := c.table.register(requestID, deadline)
	if err != nil {
		return nil, err
	}

	msg := &protocol.Message{
		Type:      protocol.TypeHTTPRequest,
		RequestID: requestID,
		Method:    req.Method,
		URL:       req.URL,
		Headers:   req.Headers,
		Body:      protocol.ByteBody(req.Body),
		TimeoutMS: uint64(timeout / time.Millisecond),
	}
	if err := c.sender.Send(msg); err != nil {
		c.table.remove(requestID)
		return nil, fmt.Errorf("proxy: send request: %w", err)
	}

	start := time.Now()
	if c.metrics != nil {
		c.metrics.ProxyRequests.Inc()
		c.metrics.ProxyInFlight.Inc()
		defer c.metrics.ProxyInFlight.Dec()
	}
	c.log.Debug("issued request",
		zap.String("request_id", requestID),
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Duration("timeout", timeout))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if c.metrics != nil {
			c.metrics.ObserveProxyCall(start)
			if out.err != nil {
				c.metrics.ProxyFailures.WithLabelValues(failureReason(out.err)).Inc()
			}
		}
		return out.resp, out.err
	case <-timer.C:
		c.table.remove(requestID)
		if c.metrics != nil {
			c.metrics.ProxyFailures.WithLabelValues("timeout").Inc()
		}
		c.log.Warn("request timed out",
			zap.String("request_id", requestID),
			zap.String("url", req.URL))
		return nil, ErrTimeout
	case <-ctx.Done():
		c.table.remove(requestID)
		return nil, ctx.Err()
	}
}

// Get issues a GET request with the client's default timeout.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: "GET", URL: url, Headers: headers})
}

// Close cancels every still-pending call without waiting for resolution.
func (c *Client) Close() {
	c.table.Close()
}

func failureReason(err error) string {
	switch {
	case err == ErrChannelClosed:
		return "channel_closed"
	case err == ErrTimeout:
		return "timeout"
	default:
		return "host_error"
	}
}
