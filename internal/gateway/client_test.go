package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// rpcHandler builds a handler that decodes the JSON-RPC envelope and lets a
// callback produce the result payload.
func rpcHandler(t *testing.T, fn func(req rpcRequest) interface{}) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result := fn(req)
		json.NewEncoder(w).Encode(map[string]interface{}{"result": result})
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(ClientOpts{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestGenerateMessageID(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		id, err := GenerateMessageID()
		if err != nil {
			t.Fatalf("GenerateMessageID: %v", err)
		}
		if !strings.HasPrefix(id, "msg-") || len(id) != 20 {
			t.Errorf("id = %q, want msg- prefix and 20 chars", id)
		}
		if seen[id] {
			t.Errorf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestCreateConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversation/create" {
			t.Errorf("path = %q, want /conversation/create", r.URL.Path)
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.JSONRPC != "2.0" {
			t.Errorf("jsonrpc = %q, want 2.0", req.JSONRPC)
		}
		if req.Method != "conversation/create" {
			t.Errorf("method = %q, want conversation/create", req.Method)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]string{"conversation_id": "ctx-42"},
		})
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv).CreateConversation(context.Background())
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if id != "ctx-42" {
		t.Errorf("conversation id = %q, want ctx-42", id)
	}
}

func TestSendMessage_Envelope(t *testing.T) {
	var got rpcRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]string{}})
	}))
	defer srv.Close()

	if err := newTestClient(t, srv).SendMessage(context.Background(), "ctx-1", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if got.Method != "message/send" {
		t.Errorf("method = %q, want message/send", got.Method)
	}

	params, _ := json.Marshal(got.Params)
	var p sendParams
	if err := json.Unmarshal(params, &p); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if p.ContextID != "ctx-1" {
		t.Errorf("contextId = %q, want ctx-1", p.ContextID)
	}
	if p.Role != "user" {
		t.Errorf("role = %q, want user", p.Role)
	}
	if p.Kind != "message" {
		t.Errorf("kind = %q, want message", p.Kind)
	}
	if len(p.Parts) != 1 || p.Parts[0].Kind != "text" || p.Parts[0].Text != "hello" {
		t.Errorf("parts = %+v, want single text part %q", p.Parts, "hello")
	}
	if !strings.HasPrefix(p.MessageID, "msg-") {
		t.Errorf("messageId = %q, want msg- prefix", p.MessageID)
	}

	meta, _ := json.Marshal(got.Metadata)
	var m sendMetadata
	if err := json.Unmarshal(meta, &m); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if !m.Blocking {
		t.Error("metadata.blocking = false, want true")
	}
	if len(m.AcceptedOutputModes) != 1 || m.AcceptedOutputModes[0] != "text/plain" {
		t.Errorf("accepted_output_modes = %v, want [text/plain]", m.AcceptedOutputModes)
	}
}

func TestListMessages(t *testing.T) {
	srv := httptest.NewServer(rpcHandler(t, func(req rpcRequest) interface{} {
		if req.Params != "ctx-1" {
			t.Errorf("params = %v, want ctx-1", req.Params)
		}
		return []Message{
			{MessageID: "m-1", ContextID: "ctx-1", Role: "agent", Parts: []Part{{Kind: "text", Text: "hi"}}},
			{MessageID: "m-2", Role: "user", Parts: []Part{{Kind: "text", Text: "yo"}}},
		}
	}))
	defer srv.Close()

	msgs, err := newTestClient(t, srv).ListMessages(context.Background(), "ctx-1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].MessageID != "m-1" || msgs[0].Role != "agent" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
}

func TestListMessages_AbsentResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	msgs, err := newTestClient(t, srv).ListMessages(context.Background(), "ctx-1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("len(msgs) = %d, want 0 for absent result", len(msgs))
	}
}

func TestPendingCount(t *testing.T) {
	srv := httptest.NewServer(rpcHandler(t, func(req rpcRequest) interface{} {
		return []map[string]string{{"id": "p1"}, {"id": "p2"}, {"id": "p3"}}
	}))
	defer srv.Close()

	n, err := newTestClient(t, srv).PendingCount(context.Background(), "ctx-1")
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 3 {
		t.Errorf("PendingCount = %d, want 3", n)
	}
}

func TestListEvents_FiltersByContext(t *testing.T) {
	srv := httptest.NewServer(rpcHandler(t, func(req rpcRequest) interface{} {
		return []Event{
			{ID: "e1", ContextID: "ctx-1"},
			{ID: "e2", ContextID: "ctx-other"},
			{ID: "e3"}, // untagged: belongs by default
		}
	}))
	defer srv.Close()

	events, err := newTestClient(t, srv).ListEvents(context.Background(), "ctx-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].ID != "e1" || events[1].ID != "e3" {
		t.Errorf("events = %+v, want e1 and e3", events)
	}
}

func TestListTasks_FiltersByContext(t *testing.T) {
	srv := httptest.NewServer(rpcHandler(t, func(req rpcRequest) interface{} {
		return []TaskRef{
			{ID: "t1", ContextID: "ctx-1", State: "working"},
			{ID: "t2", ContextID: "ctx-2", State: "working"},
		}
	}))
	defer srv.Close()

	tasks, err := newTestClient(t, srv).ListTasks(context.Background(), "ctx-1")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Errorf("tasks = %+v, want only t1", tasks)
	}
}

func TestRPC_ErrorObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":-32600,"message":"bad request"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).ListMessages(context.Background(), "ctx-1")
	if err == nil {
		t.Fatal("expected rpc error, got nil")
	}
	if !strings.Contains(err.Error(), "bad request") {
		t.Errorf("error = %v, want rpc message surfaced", err)
	}
}

func TestSubmitResearch(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/gateway/agents" {
			t.Errorf("path = %q, want /api/gateway/agents", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]string{"taskId": "task-77"})
	}))
	defer srv.Close()

	taskID, err := newTestClient(t, srv).SubmitResearch(context.Background(), ResearchRequest{
		Topic:        "battery supply chains",
		Depth:        "deep",
		Sources:      []string{"news", "filings"},
		AudienceType: "internal",
	})
	if err != nil {
		t.Fatalf("SubmitResearch: %v", err)
	}
	if taskID != "task-77" {
		t.Errorf("taskID = %q, want task-77", taskID)
	}
	if body["type"] != "deep-research" {
		t.Errorf("body.type = %v, want deep-research", body["type"])
	}
	if body["topic"] != "battery supply chains" {
		t.Errorf("body.topic = %v", body["topic"])
	}
	opts, ok := body["options"].(map[string]interface{})
	if !ok {
		t.Fatalf("body.options missing: %v", body)
	}
	if opts["depth"] != "deep" {
		t.Errorf("options.depth = %v, want deep", opts["depth"])
	}
	if body["audienceType"] != "internal" {
		t.Errorf("body.audienceType = %v, want internal", body["audienceType"])
	}
}

func TestSubmitResearch_NoTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).SubmitResearch(context.Background(), ResearchRequest{Topic: "x"})
	if err == nil {
		t.Fatal("expected error for missing task id, got nil")
	}
}

func TestDo_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).ListMessages(context.Background(), "ctx-1")
	if err == nil {
		t.Fatal("expected error for 500, got nil")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error = %v, want status 500 mentioned", err)
	}
}

func TestDo_TimeoutClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.ListMessages(ctx, "ctx-1")
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error = %v, want errors.Is(err, ErrTimeout)", err)
	}
}

func TestGetTaskStatus_Structured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/gateway/task/task-9" {
			t.Errorf("path = %q, want /api/gateway/task/task-9", r.URL.Path)
		}
		w.Write([]byte(`{"task":{"id":"task-9","status":{"state":"working","message":{"parts":[{"kind":"text","text":"Analyzing sources"}]}},"artifacts":[{"type":"workflow-result","metadata":{"progress":45,"currentPhase":"analyze"}}]}}`))
	}))
	defer srv.Close()

	ts, err := newTestClient(t, srv).GetTaskStatus(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("GetTaskStatus: %v", err)
	}
	if ts.Status != "working" {
		t.Errorf("Status = %q, want working", ts.Status)
	}
	if ts.Progress != 45 {
		t.Errorf("Progress = %d, want 45", ts.Progress)
	}
	if ts.CurrentPhase != "analyze" {
		t.Errorf("CurrentPhase = %q, want analyze", ts.CurrentPhase)
	}
	if ts.StatusMessage != "Analyzing sources" {
		t.Errorf("StatusMessage = %q, want Analyzing sources", ts.StatusMessage)
	}
}

func TestClient_AuthHeader(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientOpts{BaseURL: srv.URL, Token: "tk-1", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.ListMessages(context.Background(), "ctx-1"); err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if auth != "Bearer tk-1" {
		t.Errorf("Authorization = %q, want Bearer tk-1", auth)
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientOpts{}); err == nil {
		t.Error("expected error for empty base URL, got nil")
	}
}
