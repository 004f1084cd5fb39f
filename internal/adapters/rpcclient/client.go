// Package rpcclient calls a remote engine through its POST /rpc endpoint.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"omvstack.control/internal/core/domain"
)

const tokenHeader = "X-RPC-Token"

type response struct {
	Response map[string]any     `json:"response"`
	Error    *domain.RemoteError `json:"error"`
}

// Client satisfies panel.Caller. Failures are *domain.RemoteError whose
// Error() is the server's text.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// Install pulls images and can take minutes.
		http: &http.Client{Timeout: 15 * time.Minute},
	}
}

func (c *Client) Call(ctx context.Context, service, method string, params map[string]any) (map[string]any, error) {
	body, err := json.Marshal(domain.CallRequest{Service: service, Method: method, Params: params})
	if err != nil {
		return nil, domain.NewRemoteError(domain.CodeInvalidParams, "invalid params: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewRemoteError(domain.CodeInternal, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewRemoteError(domain.CodeInternal, fmt.Sprintf("rpc request failed: %v", err))
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.NewRemoteError(domain.CodeInternal, fmt.Sprintf("invalid rpc response (HTTP %d): %v", resp.StatusCode, err))
	}
	if out.Error != nil {
		return nil, out.Error
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewRemoteError(domain.CodeInternal, fmt.Sprintf("rpc request failed: HTTP %d", resp.StatusCode))
	}
	if out.Response == nil {
		out.Response = map[string]any{}
	}
	return out.Response, nil
}
