// Package provider gives agents access to external diagnostic tool
// providers (Kubernetes, Ceph, Grafana) over JSON-RPC 2.0 HTTP endpoints.
// Tool failures are surfaced as errors so the agent layer can convert them
// to observable tool results instead of crashing a turn.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"incidentd/internal/logging"
)

// ===== WIRE TYPES =====

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ToolInfo describes one tool exposed by a provider.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type listToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// ===== CLIENT =====

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 60 * time.Second

// Client talks to one tool provider endpoint.
type Client struct {
	mu      sync.Mutex
	name    string
	baseURL string
	http    *http.Client
	nextID  int64
}

// NewClient creates a provider client. The name identifies the provider in
// logs and tool namespacing ("kubernetes", "ceph", "grafana").
func NewClient(name, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Name returns the provider's identifier.
func (c *Client) Name() string { return c.name }

// ListTools fetches the provider's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("provider %s: failed to parse tool list: %w", c.name, err)
	}
	logging.ProvidersDebug("provider %s lists %d tools", c.name, len(result.Tools))
	return result.Tools, nil
}

// CallTool invokes one tool and returns its concatenated text output.
func (c *Client) CallTool(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	timer := logging.StartTimer(logging.CategoryProviders, fmt.Sprintf("%s.%s", c.name, tool))
	defer timer.Stop()

	params := map[string]interface{}{
		"name":      tool,
		"arguments": args,
	}
	raw, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return "", err
	}
	var result callToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("provider %s: failed to parse tool result: %w", c.name, err)
	}

	var sb strings.Builder
	for _, part := range result.Content {
		if part.Type == "text" || part.Type == "" {
			sb.WriteString(part.Text)
		}
	}
	text := sb.String()
	if result.IsError {
		return "", fmt.Errorf("provider %s: tool %s failed: %s", c.name, tool, text)
	}
	return text, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %s: failed to marshal request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("provider %s: failed to create request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logging.ProvidersError("provider %s: %s request failed: %v", c.name, method, err)
		return nil, fmt.Errorf("provider %s: request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider %s: failed to read response: %w", c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider %s: HTTP %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("provider %s: invalid JSON-RPC response: %w", c.name, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("provider %s: %w", c.name, rpcResp.Error)
	}
	return rpcResp.Result, nil
}
