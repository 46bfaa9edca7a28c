package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries a per-call id so client and server logs line up.
const RequestIDHeader = "X-Request-ID"

// NodeInfo describes a graph server known to the cluster. Rank is the
// server's position in the membership list and decides which shard range
// it owns.
type NodeInfo struct {
	ID     string `json:"id"`
	Addr   string `json:"addr"`
	Rank   int    `json:"rank"`
	Status string `json:"status,omitempty"`
}

type RegisterRequest struct {
	Node NodeInfo `json:"node"`
}

type RegisterResponse struct {
	Rank int `json:"rank"`
}

type NodesResponse struct {
	Nodes []NodeInfo `json:"nodes"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON posts body as JSON to url and decodes the reply into out when
// out is non-nil.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", url, err)
	}
	return doJSON(ctx, http.MethodPost, url, bytes.NewReader(payload), out)
}

// GetJSON fetches url and decodes the JSON reply into out.
func GetJSON(ctx context.Context, url string, out any) error {
	return doJSON(ctx, http.MethodGet, url, nil, out)
}

func doJSON(ctx context.Context, method, url string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := statusError(url, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError turns a non-2xx reply into an error carrying the first line
// of the body.
func statusError(url string, resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if line, _, _ := strings.Cut(strings.TrimSpace(string(msg)), "\n"); line != "" {
		return fmt.Errorf("http %s: %d: %s", url, resp.StatusCode, line)
	}
	return fmt.Errorf("http %s: %d", url, resp.StatusCode)
}

// PostBinary sends an octet-stream body and returns the response body.
// A nil hc uses the package client. The request id is generated here and
// returned alongside the body for logging.
func PostBinary(ctx context.Context, hc *http.Client, url string, body []byte) ([]byte, string, error) {
	if hc == nil {
		hc = httpClient
	}
	reqID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, reqID, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(RequestIDHeader, reqID)
	resp, err := hc.Do(req)
	if err != nil {
		return nil, reqID, err
	}
	defer resp.Body.Close()
	if err := statusError(url, resp); err != nil {
		return nil, reqID, err
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, reqID, err
	}
	return out, reqID, nil
}
