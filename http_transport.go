package cloudobjects

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// httpTransport is the default Transport: a net/http client with a fixed
// per-call timeout independent of any retry policy. Connection failures and
// timeouts surface as *TransportError, never as a status.
type httpTransport struct {
	client *http.Client
}

// NewHTTPTransport returns the default net/http-backed Transport.
func NewHTTPTransport(timeout time.Duration) Transport {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &httpTransport{client: &http.Client{Timeout: timeout}}
}

func (t *httpTransport) Send(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if len(req.Query) > 0 {
		query := httpReq.URL.Query()
		for key, value := range req.Query {
			query.Set(key, value)
		}
		httpReq.URL.RawQuery = query.Encode()
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}

	headers := make(map[string]string, len(httpResp.Header))
	for key := range httpResp.Header {
		headers[key] = httpResp.Header.Get(key)
	}

	return &Response{Status: httpResp.StatusCode, Headers: headers, Body: payload}, nil
}
