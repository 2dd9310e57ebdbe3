package huolala

import "context"

// Transport sends bytes and returns the raw response body.
// A nil body is sent as a GET; otherwise body is POSTed as JSON.
type Transport interface {
	Send(ctx context.Context, url string, body []byte) ([]byte, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, url string, body []byte) ([]byte, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, url string, body []byte) ([]byte, error) {
	return f(ctx, url, body)
}
