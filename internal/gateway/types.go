// Package gateway implements the client for the agent gateway's A2A
// protocol: JSON-RPC conversation endpoints and REST task endpoints.
package gateway

import "encoding/json"

// Part is one segment of a message body. Only text parts carry content
// the client cares about.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// Message is a conversation message as the gateway returns it.
type Message struct {
	MessageID string `json:"messageId"`
	ContextID string `json:"contextId,omitempty"`
	Role      string `json:"role"` // "user" or "agent"
	Parts     []Part `json:"parts"`
	Kind      string `json:"kind,omitempty"`
}

// Event is a conversation event. Beyond the context filter the client
// only counts these, so the payload stays opaque.
type Event struct {
	ID        string          `json:"id,omitempty"`
	ContextID string          `json:"contextId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// TaskRef is an in-flight task reference from task/list.
type TaskRef struct {
	ID        string `json:"id,omitempty"`
	ContextID string `json:"contextId,omitempty"`
	State     string `json:"state,omitempty"`
}

// Task states reported by the gateway.
const (
	TaskStateWorking   = "working"
	TaskStateCompleted = "completed"
	TaskStateFailed    = "failed"
)

// TaskStatus is the normalized view of a task-status response. Both the
// structured and the legacy flat response shapes reduce to this record.
type TaskStatus struct {
	Status        string          // working, completed, failed
	Progress      int             // 0-100, -1 when not reported
	CurrentPhase  string          // phase name when reported
	StatusMessage string          // human-readable status text, if any
	Result        json.RawMessage // final payload, present on completion
}

// ResearchRequest describes a deep-research submission.
type ResearchRequest struct {
	Topic        string   `json:"topic"`
	Depth        string   `json:"depth,omitempty"`
	Sources      []string `json:"sources,omitempty"`
	AudienceType string   `json:"audienceType,omitempty"`
	Context      string   `json:"context,omitempty"`
}

// rpcRequest is the JSON-RPC 2.0 envelope for conversation endpoints.
type rpcRequest struct {
	JSONRPC  string      `json:"jsonrpc"`
	ID       string      `json:"id"`
	Method   string      `json:"method"`
	Params   interface{} `json:"params"`
	Metadata interface{} `json:"metadata,omitempty"`
}

// rpcResponse is the common response envelope. Result may be absent.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sendParams is the params payload for message/send.
type sendParams struct {
	MessageID string `json:"messageId"`
	ContextID string `json:"contextId"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	Kind      string `json:"kind"`
}

// sendMetadata is the metadata payload for message/send.
type sendMetadata struct {
	Blocking            bool     `json:"blocking"`
	AcceptedOutputModes []string `json:"accepted_output_modes"`
}

// createResult is the result payload of conversation/create.
type createResult struct {
	ConversationID string `json:"conversation_id"`
}
