package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskwire/taskwire/internal/gateway"
)

// fakeChatGateway scripts the gateway surface the chat REPL uses.
type fakeChatGateway struct {
	mu       sync.Mutex
	messages []gateway.Message
	sent     []string
}

func (f *fakeChatGateway) CreateConversation(ctx context.Context) (string, error) {
	return "ctx-test-1", nil
}

func (f *fakeChatGateway) SendMessage(ctx context.Context, contextID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeChatGateway) ListMessages(ctx context.Context, sessionID string) ([]gateway.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gateway.Message, len(f.messages))
	copy(out, f.messages)
	return out, nil
}

func (f *fakeChatGateway) PendingCount(ctx context.Context, sessionID string) (int, error) {
	return 0, nil
}

func (f *fakeChatGateway) ListEvents(ctx context.Context, sessionID string) ([]gateway.Event, error) {
	return nil, nil
}

func (f *fakeChatGateway) ListTasks(ctx context.Context, sessionID string) ([]gateway.TaskRef, error) {
	return nil, nil
}

func (f *fakeChatGateway) addAgentMessage(id, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, gateway.Message{
		MessageID: id,
		Role:      "agent",
		Parts:     []gateway.Part{{Kind: "text", Text: text}},
	})
}

func (f *fakeChatGateway) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// lockedBuffer is a goroutine-safe bytes.Buffer; the REPL loop and the poll
// goroutine both write to the command output.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// chatHarness runs runChat against a scripted gateway with a pipe for stdin.
type chatHarness struct {
	client *fakeChatGateway
	out    *lockedBuffer
	stdin  *io.PipeWriter
	done   chan error
}

func startChat(t *testing.T) *chatHarness {
	t.Helper()

	client := &fakeChatGateway{}
	out := &lockedBuffer{}
	pr, pw := io.Pipe()

	cmd := &cobra.Command{Use: "chat"}
	cmd.SetOut(out)
	cmd.SetIn(pr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	h := &chatHarness{client: client, out: out, stdin: pw, done: make(chan error, 1)}
	go func() {
		h.done <- runChat(ctx, cmd, client, chatOpts{
			pollInterval: 5 * time.Millisecond,
			idleTimeout:  time.Minute,
		})
	}()
	t.Cleanup(func() { pw.Close() })
	return h
}

func (h *chatHarness) typeLine(t *testing.T, line string) {
	t.Helper()
	if _, err := fmt.Fprintln(h.stdin, line); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
}

func (h *chatHarness) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("runChat returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("runChat did not return")
	}
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunChat_SendsUserMessage(t *testing.T) {
	h := startChat(t)

	h.typeLine(t, "hello agent")
	waitUntil(t, func() bool {
		return len(h.client.sentTexts()) == 1
	}, "message to be sent")

	h.typeLine(t, "/quit")
	h.wait(t)

	out := h.out.String()
	if !strings.Contains(out, "Connected. Session ctx-test-1") {
		t.Errorf("missing connect banner in output: %s", out)
	}
	if !strings.Contains(out, "Bye.") {
		t.Errorf("missing quit message in output: %s", out)
	}
	if got := h.client.sentTexts(); got[0] != "hello agent" {
		t.Errorf("sent %q, want %q", got[0], "hello agent")
	}
}

func TestRunChat_PrintsAgentReplies(t *testing.T) {
	h := startChat(t)

	h.client.addAgentMessage("m-1", "sure thing")
	waitUntil(t, func() bool {
		return strings.Contains(h.out.String(), "agent> sure thing")
	}, "agent reply to print")

	// A replayed poll response must not print the message again.
	time.Sleep(30 * time.Millisecond)
	if n := strings.Count(h.out.String(), "agent> sure thing"); n != 1 {
		t.Errorf("agent reply printed %d times, want 1", n)
	}

	h.typeLine(t, "/quit")
	h.wait(t)
}

func TestRunChat_AnswersConfirmation(t *testing.T) {
	h := startChat(t)

	h.client.addAgentMessage("m-1",
		"Before deleting:\n```json\n{\"interaction_type\":\"confirmation_request\",\"confirmation_id\":\"c-9\",\"description\":\"Delete the report?\"}\n```")
	waitUntil(t, func() bool {
		return strings.Contains(h.out.String(), "Delete the report?")
	}, "confirmation prompt")

	h.typeLine(t, "yes")
	waitUntil(t, func() bool {
		sent := h.client.sentTexts()
		return len(sent) == 1 && sent[0] == "yes"
	}, "confirmation answer to be sent")

	h.typeLine(t, "/quit")
	h.wait(t)
}

func TestRunChat_ExitCommand(t *testing.T) {
	h := startChat(t)

	h.typeLine(t, "/exit")
	h.wait(t)

	if got := h.client.sentTexts(); len(got) != 0 {
		t.Errorf("exit command should not send messages, sent %v", got)
	}
}

func TestIsAffirmative(t *testing.T) {
	for _, reply := range []string{"yes", "Y", " OK ", "approve", "Confirm"} {
		if !isAffirmative(reply) {
			t.Errorf("isAffirmative(%q) = false, want true", reply)
		}
	}
	for _, reply := range []string{"no", "nope", "cancel", ""} {
		if isAffirmative(reply) {
			t.Errorf("isAffirmative(%q) = true, want false", reply)
		}
	}
}
