package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tradecore/inplay/internal/telemetry"
)

// httpClient is the signed REST transport shared by every Client method
// that talks to the exchange's REST API, grounded on the teacher's
// kalshi_http client: one rate limiter for reads, one for writes.
type httpClient struct {
	baseURL    string
	client     *http.Client
	signer     *Signer
	readLimit  *rate.Limiter
	writeLimit *rate.Limiter
}

func newHTTPClient(baseURL string, signer *Signer) *httpClient {
	return &httpClient{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		signer:     signer,
		readLimit:  rate.NewLimiter(rate.Limit(20), 20),
		writeLimit: rate.NewLimiter(rate.Limit(10), 10),
	}
}

func (c *httpClient) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	lim := c.readLimit
	if method != http.MethodGet {
		lim = c.writeLimit
	}
	if err := lim.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if err := c.signer.SignRequest(req); err != nil {
		return nil, 0, fmt.Errorf("sign: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	telemetry.Debugf("exchange_http: %s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start))
	return respBody, resp.StatusCode, nil
}

func (c *httpClient) get(ctx context.Context, path string) ([]byte, int, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *httpClient) post(ctx context.Context, path string, body any) ([]byte, int, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *httpClient) deleteReq(ctx context.Context, path string) ([]byte, int, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}
