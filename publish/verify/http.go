package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseBytes caps how much of a service response is read.
const maxResponseBytes = 4 << 20

// StatusError is a non-2xx response from a verification service.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

type httpClient struct {
	service string
	baseURL string
	client  *http.Client
}

func newHTTPClient(service, baseURL string, client *http.Client) httpClient {
	if client == nil {
		client = http.DefaultClient
	}
	return httpClient{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (c httpClient) do(ctx context.Context, method, url, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: create request: %w", c.service, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %s %s: %w", c.service, method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s: read response: %w", c.service, err)
	}
	return resp.StatusCode, data, nil
}
