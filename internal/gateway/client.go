package gateway

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTimeout marks a request that was aborted by its client-side budget.
// Callers distinguish it from generic transport failures for user messaging.
var ErrTimeout = errors.New("gateway: request timed out")

// Default request budgets. Deep research gets a longer window because the
// submission itself can block while the gateway plans the task.
const (
	DefaultRequestTimeout  = 2 * time.Minute
	DefaultResearchTimeout = 10 * time.Minute
)

// Client talks to the agent gateway. Safe for concurrent use.
type Client struct {
	baseURL         string
	token           string
	httpClient      *http.Client
	requestTimeout  time.Duration
	researchTimeout time.Duration
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL         string
	Token           string        // optional bearer token
	HTTPClient      *http.Client  // defaults to http.DefaultClient
	RequestTimeout  time.Duration // defaults to DefaultRequestTimeout
	ResearchTimeout time.Duration // defaults to DefaultResearchTimeout
}

// NewClient creates a gateway Client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("gateway: base URL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	reqTimeout := opts.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = DefaultRequestTimeout
	}
	resTimeout := opts.ResearchTimeout
	if resTimeout <= 0 {
		resTimeout = DefaultResearchTimeout
	}
	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		token:           opts.Token,
		httpClient:      hc,
		requestTimeout:  reqTimeout,
		researchTimeout: resTimeout,
	}, nil
}

// GenerateMessageID creates a unique message id in msg-xxxxxxxxxxxxxxxx
// format (16-char hex).
func GenerateMessageID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("gateway: generate message ID: %w", err)
	}
	return "msg-" + hex.EncodeToString(b), nil
}

// CreateConversation opens a new conversation and returns its id.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	raw, err := c.rpc(ctx, "conversation/create", nil, nil)
	if err != nil {
		return "", err
	}
	var result createResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("gateway: conversation/create: decode result: %w", err)
	}
	if result.ConversationID == "" {
		return "", fmt.Errorf("gateway: conversation/create: empty conversation id")
	}
	return result.ConversationID, nil
}

// SendMessage sends a user text message into a conversation. The call is
// blocking on the gateway side; the reply arrives through polling.
func (c *Client) SendMessage(ctx context.Context, contextID, text string) error {
	msgID, err := GenerateMessageID()
	if err != nil {
		return err
	}
	params := sendParams{
		MessageID: msgID,
		ContextID: contextID,
		Role:      "user",
		Parts:     []Part{{Kind: "text", Text: text}},
		Kind:      "message",
	}
	meta := sendMetadata{
		Blocking:            true,
		AcceptedOutputModes: []string{"text/plain"},
	}
	_, err = c.rpc(ctx, "message/send", params, meta)
	return err
}

// ListMessages returns all messages the gateway holds for a session.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	raw, err := c.rpc(ctx, "message/list", sessionID, nil)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := decodeList(raw, &msgs); err != nil {
		return nil, fmt.Errorf("gateway: message/list: %w", err)
	}
	return msgs, nil
}

// PendingCount returns the number of in-flight message deliveries for a
// session.
func (c *Client) PendingCount(ctx context.Context, sessionID string) (int, error) {
	raw, err := c.rpc(ctx, "message/pending", sessionID, nil)
	if err != nil {
		return 0, err
	}
	var pending []json.RawMessage
	if err := decodeList(raw, &pending); err != nil {
		return 0, fmt.Errorf("gateway: message/pending: %w", err)
	}
	return len(pending), nil
}

// ListEvents returns conversation events scoped to a session.
func (c *Client) ListEvents(ctx context.Context, sessionID string) ([]Event, error) {
	raw, err := c.rpc(ctx, "events/get", sessionID, nil)
	if err != nil {
		return nil, err
	}
	var events []Event
	if err := decodeList(raw, &events); err != nil {
		return nil, fmt.Errorf("gateway: events/get: %w", err)
	}
	return filterEvents(events, sessionID), nil
}

// ListTasks returns in-flight task references scoped to a session.
func (c *Client) ListTasks(ctx context.Context, sessionID string) ([]TaskRef, error) {
	raw, err := c.rpc(ctx, "task/list", sessionID, nil)
	if err != nil {
		return nil, err
	}
	var tasks []TaskRef
	if err := decodeList(raw, &tasks); err != nil {
		return nil, fmt.Errorf("gateway: task/list: %w", err)
	}
	return filterTasks(tasks, sessionID), nil
}

// SubmitRequest runs a synchronous task type and returns the raw result.
// The request is bounded by the synchronous request budget.
func (c *Client) SubmitRequest(ctx context.Context, taskType string, data interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	body := map[string]interface{}{"type": taskType, "data": data}
	return c.post(ctx, "/api/request", body)
}

// SubmitResearch submits a deep-research task and returns the task id for
// polling. The request is bounded by the research budget.
func (c *Client) SubmitResearch(ctx context.Context, req ResearchRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.researchTimeout)
	defer cancel()

	body := map[string]interface{}{
		"type":  "deep-research",
		"topic": req.Topic,
		"options": map[string]interface{}{
			"depth":        req.Depth,
			"sources":      req.Sources,
			"audienceType": req.AudienceType,
		},
	}
	if req.Context != "" {
		body["context"] = req.Context
	}
	if req.AudienceType != "" {
		body["audienceType"] = req.AudienceType
	}

	raw, err := c.post(ctx, "/api/gateway/agents", body)
	if err != nil {
		return "", err
	}
	var resp struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("gateway: submit research: decode response: %w", err)
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("gateway: submit research: no task id in response")
	}
	return resp.TaskID, nil
}

// GetTaskStatus fetches and normalizes the status of a long-running task.
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (TaskStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/gateway/task/"+taskID, nil)
	if err != nil {
		return TaskStatus{}, fmt.Errorf("gateway: task status: %w", err)
	}
	c.setHeaders(httpReq)

	raw, err := c.do(httpReq)
	if err != nil {
		return TaskStatus{}, err
	}
	return NormalizeTaskStatus(raw)
}

// rpc performs a JSON-RPC 2.0 call against a conversation endpoint.
// The endpoint path mirrors the method name.
func (c *Client) rpc(ctx context.Context, method string, params, metadata interface{}) (json.RawMessage, error) {
	id, err := GenerateMessageID()
	if err != nil {
		return nil, err
	}
	req := rpcRequest{
		JSONRPC:  "2.0",
		ID:       id,
		Method:   method,
		Params:   params,
		Metadata: metadata,
	}

	raw, err := c.post(ctx, "/"+method, req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s: %w", method, err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("gateway: %s: decode envelope: %w", method, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("gateway: %s: rpc error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

// post sends a JSON body and returns the raw response body.
func (c *Client) post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	c.setHeaders(httpReq)

	return c.do(httpReq)
}

// do executes a request, classifying deadline aborts as ErrTimeout.
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, req.Method, req.URL.Path)
		}
		return nil, fmt.Errorf("gateway: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway: %s %s: status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, truncateBody(data))
	}
	return data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// decodeList unmarshals a possibly-absent JSON array. A missing or null
// result decodes to an empty list rather than an error.
func decodeList(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// filterEvents keeps events belonging to the session. Events without a
// context tag are treated as belonging by default.
func filterEvents(events []Event, sessionID string) []Event {
	out := events[:0]
	for _, e := range events {
		if e.ContextID == "" || e.ContextID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

// filterTasks keeps task refs belonging to the session, same default rule
// as events.
func filterTasks(tasks []TaskRef, sessionID string) []TaskRef {
	out := tasks[:0]
	for _, t := range tasks {
		if t.ContextID == "" || t.ContextID == sessionID {
			out = append(out, t)
		}
	}
	return out
}

func truncateBody(data []byte) string {
	const max = 200
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
