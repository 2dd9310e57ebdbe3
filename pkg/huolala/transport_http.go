package huolala

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds each transport call when none is configured.
const DefaultTimeout = 5 * time.Second

// HTTPTransport is the production Transport over net/http.
type HTTPTransport struct {
	httpClient *http.Client
	userAgent  string
}

// HTTPTransportConfig holds configuration for the HTTP transport.
type HTTPTransportConfig struct {
	Timeout   time.Duration
	UserAgent string
	// Client overrides the underlying http.Client; Timeout still applies when set.
	Client *http.Client
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(cfg HTTPTransportConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "huolala-go/1.0"
	}

	httpClient := &http.Client{}
	if cfg.Client != nil {
		copied := *cfg.Client
		httpClient = &copied
	}
	httpClient.Timeout = timeout

	return &HTTPTransport{
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Send performs the request and returns the body of a 2xx response.
func (t *HTTPTransport) Send(ctx context.Context, url string, body []byte) ([]byte, error) {
	method := http.MethodGet
	var bodyReader io.Reader
	if body != nil {
		method = http.MethodPost
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, NewTransportError(StageSend, "INVALID_REQUEST", "failed to create request").WithCause(err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		code := "REQUEST_FAILED"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			code = "TIMEOUT"
		}
		return nil, NewTransportError(StageSend, code, fmt.Sprintf("%s %s failed", method, redactQuery(url))).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransportError(StageSend, "READ_FAILED", "failed to read response body").
			WithCause(err).
			WithStatusCode(resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// parseError extracts error information from a non-2xx response.
func parseError(status int, body []byte) error {
	var apiErr struct {
		Ret json.Number `json:"ret"`
		Msg string      `json:"msg"`
	}
	code := fmt.Sprintf("HTTP_%d", status)
	msg := string(body)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Msg != "" {
		msg = apiErr.Msg
		if apiErr.Ret != "" {
			code = fmt.Sprintf("HTTP_%d_RET_%s", status, apiErr.Ret)
		}
	}
	return NewTransportError(StageSend, code, msg).WithStatusCode(status)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// redactQuery strips the query string, which carries OAuth codes and refresh tokens.
func redactQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

var _ Transport = (*HTTPTransport)(nil)
