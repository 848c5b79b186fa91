// ABOUTME: HTTP client for the agent run endpoint
// ABOUTME: Posts a run request and exposes the SSE response as a stream of typed events

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/cortex-chat/internal/sse"
)

const (
	// InlinePath is the run endpoint that takes tools and resources in the body.
	InlinePath = "/api/v2/cortex/agent:run"

	// HeaderRequestID carries the service's request identifier.
	HeaderRequestID = "X-Snowflake-Request-Id"

	// HeaderTokenType tells the service how to interpret the bearer token.
	HeaderTokenType = "X-Snowflake-Authorization-Token-Type"

	maxErrorBody = 64 << 10
)

// Credentials supplies the bearer token for each call.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	// TokenType is sent in HeaderTokenType when non-empty.
	TokenType() string
}

// Endpoint selects which run endpoint the client calls. When Agent is empty the
// inline endpoint is used.
type Endpoint struct {
	Database string
	Schema   string
	Agent    string
}

// Path returns the URL path for the endpoint.
func (e Endpoint) Path() string {
	if e.Agent == "" {
		return InlinePath
	}
	return fmt.Sprintf("/api/v2/databases/%s/schemas/%s/agents/%s:run",
		url.PathEscape(e.Database), url.PathEscape(e.Schema), url.PathEscape(e.Agent))
}

// StatusError is returned by Run when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
	RequestID  string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("agent returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("agent returned status %d: %s", e.StatusCode, body)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL        string
	Endpoint       Endpoint
	Credentials    Credentials
	ConnectTimeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client calls the agent run endpoint.
type Client struct {
	baseURL  string
	endpoint Endpoint
	creds    Credentials
	http     *http.Client
}

// NewClient creates a client. The connect timeout bounds dialing and waiting for
// response headers; once the stream is flowing no read deadline applies.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("agent: base URL is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("agent: credentials are required")
	}

	base := strings.TrimSuffix(opts.BaseURL, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.ConnectTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
		transport.TLSHandshakeTimeout = timeout
		transport.ResponseHeaderTimeout = timeout
		hc = &http.Client{Transport: transport}
	}

	return &Client{
		baseURL:  base,
		endpoint: opts.Endpoint,
		creds:    opts.Credentials,
		http:     hc,
	}, nil
}

// URL returns the full run URL.
func (c *Client) URL() string {
	return c.baseURL + c.endpoint.Path()
}

// Run posts the request and returns the open event stream. Any failure before the
// stream starts, including a non-2xx status, is returned as an error and no
// stream is opened. The caller must Close the stream.
func (c *Client) Run(ctx context.Context, req RunRequest) (*Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if tt := c.creds.TokenType(); tt != "" {
		httpReq.Header.Set(HeaderTokenType, tt)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	requestID := resp.Header.Get(HeaderRequestID)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(b), RequestID: requestID}
	}

	return &Stream{
		RequestID: requestID,
		body:      resp.Body,
		reader:    sse.NewReader(resp.Body),
	}, nil
}

// Stream is an open agent response.
type Stream struct {
	// RequestID is the service's identifier for this run, empty when not sent.
	RequestID string

	body   io.ReadCloser
	reader *sse.Reader
}

// NewStream wraps an already-open SSE body.
func NewStream(body io.ReadCloser, requestID string) *Stream {
	return &Stream{RequestID: requestID, body: body, reader: sse.NewReader(body)}
}

// Next returns the next decoded event. It returns io.EOF when the stream ends,
// whether by the [DONE] sentinel or by the connection closing. A *DecodeError
// affects only the current frame; the caller may keep calling Next.
func (s *Stream) Next() (Event, error) {
	frame, err := s.reader.Next()
	if errors.Is(err, sse.ErrDone) || errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("reading event stream: %w", err)
	}
	return Decode(frame.Event, frame.Data)
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	return s.body.Close()
}
