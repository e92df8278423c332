package task

import (
	"context"
	"time"

	"github.com/flowgate/flowgate/engine/core"
	"github.com/go-resty/resty/v2"
)

// -----------------------------------------------------------------------------
// HTTP client boundary
// -----------------------------------------------------------------------------

// Request is the fully resolved HTTP call the executor wants issued.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// Response is the transport-level outcome. Non-2xx statuses are returned
// here, not as errors; only transport failures surface through err.
type Response struct {
	StatusCode int
	Body       []byte
}

// HTTPClient is the thin transport abstraction the executor calls through.
// TLS, connection pooling and redirects live behind this interface.
type HTTPClient interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// -----------------------------------------------------------------------------
// resty implementation
// -----------------------------------------------------------------------------

type restyClient struct {
	client *resty.Client
}

type ClientOption func(*resty.Client)

// WithRequestTimeout bounds one HTTP attempt. The per-task timeout bounds the
// whole retry sequence separately.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

func NewHTTPClient(opts ...ClientOption) HTTPClient {
	client := resty.New()
	// The executor owns retries; the transport must not add its own.
	client.SetRetryCount(0)
	for _, opt := range opts {
		opt(client)
	}
	return &restyClient{client: client}
}

func (c *restyClient) Send(ctx context.Context, req *Request) (*Response, error) {
	r := c.client.R().SetContext(ctx)
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}
	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.WrapError(core.CodeNetworkFailure, "http request failed", err)
	}
	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
	}, nil
}
