package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"basket-order-service/config"
)

const (
	authenticatePath = "/web/session/authenticate"
	callKWPath       = "/web/dataset/call_kw"
	sessionCookie    = "session_id"

	// Error codes the backend uses for an expired or unknown session.
	codeSessionExpired = 100
	maxErrorBody       = 4096
)

// Client speaks the backend's JSON-RPC dialect over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	db         string
	login      string
	password   string
	nextID     atomic.Int64
}

// NewClient creates a JSON-RPC client for the configured backend
func NewClient(cfg config.ERPConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		db:         cfg.DB,
		login:      cfg.Login,
		password:   cfg.Password,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcFault       `json:"error"`
}

type rpcFault struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

func (f *rpcFault) String() string {
	if f.Data.Message != "" {
		return f.Data.Message
	}
	return f.Message
}

func (f *rpcFault) sessionExpired() bool {
	return f.Code == codeSessionExpired || strings.Contains(f.Data.Name, "SessionExpired")
}

type callParams struct {
	Model  string         `json:"model"`
	Method string         `json:"method"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// Authenticate opens a backend session and returns its token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	params := map[string]string{
		"db":       c.db,
		"login":    c.login,
		"password": c.password,
	}

	resp, httpResp, err := c.post(ctx, authenticatePath, "", params)
	if err != nil {
		return "", err
	}

	if resp.Error != nil {
		return "", &AuthError{Reason: resp.Error.String()}
	}

	var session struct {
		UID json.RawMessage `json:"uid"`
	}
	if len(resp.Result) == 0 || json.Unmarshal(resp.Result, &session) != nil {
		return "", &AuthError{Reason: "no session in response"}
	}
	var uid int64
	if err := json.Unmarshal(session.UID, &uid); err != nil || uid <= 0 {
		return "", &AuthError{Reason: "credentials rejected"}
	}

	for _, cookie := range httpResp.Cookies() {
		if cookie.Name == sessionCookie && cookie.Value != "" {
			return cookie.Value, nil
		}
	}
	return "", &AuthError{Reason: "session cookie missing"}
}

// call invokes resource.operation with the given session token.
// The returned bool reports a fault caused by an expired session.
func (c *Client) call(ctx context.Context, token, resource, operation string, args []any, kwargs map[string]any) (json.RawMessage, bool, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	resp, _, err := c.post(ctx, callKWPath, token, callParams{
		Model:  resource,
		Method: operation,
		Args:   args,
		Kwargs: kwargs,
	})
	if err != nil {
		return nil, false, err
	}

	if resp.Error != nil {
		return nil, resp.Error.sessionExpired(), &RemoteCallError{
			Resource:  resource,
			Operation: operation,
			Message:   resp.Error.String(),
		}
	}

	if len(resp.Result) == 0 || bytes.Equal(bytes.TrimSpace(resp.Result), []byte("null")) {
		return nil, false, &RemoteCallError{
			Resource:  resource,
			Operation: operation,
			Cause:     ErrEmptyResult,
		}
	}

	return resp.Result, false, nil
}

func (c *Client) post(ctx context.Context, path, token string, params any) (*rpcResponse, *http.Response, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reach erp: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read erp response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return nil, nil, &RemoteError{Status: httpResp.StatusCode, Body: string(raw)}
	}

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode erp response: %w", err)
	}

	return &resp, httpResp, nil
}
