package interact

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// SendFunc routes a response through the normal outbound message path.
type SendFunc func(ctx context.Context, text string) error

// ResponseStore persists responded-message bookkeeping so the single-response
// rule survives restarts. Implementations log their own errors on Save.
type ResponseStore interface {
	HasResponse(key string) bool
	SaveResponse(key, interactionType, response string)
}

// Responder enforces the single-response rule: each interaction accepts
// exactly one response for the life of the session. Regular interactions
// are keyed by message id; confirmations are keyed by confirmation id.
type Responder struct {
	send  SendFunc
	store ResponseStore

	mu        sync.Mutex
	responded map[string]struct{}
}

// ResponderOpts holds parameters for creating a Responder.
type ResponderOpts struct {
	Send  SendFunc
	Store ResponseStore // optional
}

// NewResponder creates a Responder.
func NewResponder(opts ResponderOpts) (*Responder, error) {
	if opts.Send == nil {
		return nil, fmt.Errorf("interact: responder: send func is required")
	}
	return &Responder{
		send:      opts.Send,
		store:     opts.Store,
		responded: make(map[string]struct{}),
	}, nil
}

// Responded reports whether the key (message id or confirmation id) has
// already been answered. Used to render controls disabled.
func (r *Responder) Responded(key string) bool {
	r.mu.Lock()
	_, ok := r.responded[key]
	r.mu.Unlock()
	if ok {
		return true
	}
	return r.store != nil && r.store.HasResponse(key)
}

// Respond sends the response for an interaction exactly once. The second
// and later calls for the same key are no-ops returning false. Non-string
// responses are JSON-encoded before sending.
func (r *Responder) Respond(ctx context.Context, key, interactionType string, response interface{}) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("interact: respond: key is required")
	}

	text, err := stringify(response)
	if err != nil {
		return false, fmt.Errorf("interact: respond: %w", err)
	}

	r.mu.Lock()
	if _, done := r.responded[key]; done {
		r.mu.Unlock()
		return false, nil
	}
	if r.store != nil && r.store.HasResponse(key) {
		r.responded[key] = struct{}{}
		r.mu.Unlock()
		return false, nil
	}
	// Mark before sending: a failed send still consumes the one response,
	// matching the render-once-then-lock contract.
	r.responded[key] = struct{}{}
	r.mu.Unlock()

	if r.store != nil {
		r.store.SaveResponse(key, interactionType, text)
	}
	if err := r.send(ctx, text); err != nil {
		return true, fmt.Errorf("interact: respond %s: %w", key, err)
	}
	return true, nil
}

// RespondConfirmation answers a confirmation request, keyed by the
// confirmation_id from its payload. Falls back to the message id when the
// payload carries no confirmation id.
func (r *Responder) RespondConfirmation(ctx context.Context, messageID string, data json.RawMessage, approved bool) (bool, error) {
	key := ConfirmationID(data)
	if key == "" {
		key = messageID
	}
	answer := "no"
	if approved {
		answer = "yes"
	}
	return r.Respond(ctx, key, TypeConfirmation, answer)
}

// stringify passes strings through and JSON-encodes everything else.
func stringify(response interface{}) (string, error) {
	if s, ok := response.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(response)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
