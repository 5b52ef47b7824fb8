package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestConversation_Fields(t *testing.T) {
	typ := reflect.TypeOf(Conversation{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "SessionID", "uniqueIndex")
	assertGormTag(t, typ, "SessionID", "not null")
	assertGormTag(t, typ, "Source", "index")
	assertGormTag(t, typ, "Status", "default:active")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "ChannelID", "idx_channel_thread")
	assertGormTag(t, typ, "ThreadID", "idx_channel_thread")
	assertGormTag(t, typ, "LastActivity", "index")

	assertFieldType(t, typ, "PendingCount", "int")
	assertFieldType(t, typ, "TaskCount", "int")
	assertFieldType(t, typ, "EventCount", "int")
	assertFieldType(t, typ, "LastActivity", "time.Time")
	assertFieldType(t, typ, "ClosedAt", "*time.Time")
}

func TestConversationMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(ConversationMessage{})

	assertGormTag(t, typ, "ConversationID", "not null")
	assertGormTag(t, typ, "ConversationID", "index")
	assertGormTag(t, typ, "MessageID", "uniqueIndex")
	assertGormTag(t, typ, "Role", "not null")
	assertGormTag(t, typ, "Content", "type:mediumtext")

	assertFieldType(t, typ, "Sequence", "int")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
}

func TestInteractionResponse_Fields(t *testing.T) {
	typ := reflect.TypeOf(InteractionResponse{})

	assertGormTag(t, typ, "MessageID", "uniqueIndex")
	assertGormTag(t, typ, "InteractionType", "not null")
	assertGormTag(t, typ, "Response", "type:text")
}

func TestResearchTask_Fields(t *testing.T) {
	typ := reflect.TypeOf(ResearchTask{})

	assertGormTag(t, typ, "TaskID", "uniqueIndex")
	assertGormTag(t, typ, "TaskID", "not null")
	assertGormTag(t, typ, "Topic", "not null")
	assertGormTag(t, typ, "State", "default:working")
	assertGormTag(t, typ, "State", "index")
	assertGormTag(t, typ, "Depth", "default:standard")
	assertGormTag(t, typ, "ResultJSON", "type:mediumtext")

	assertFieldType(t, typ, "ConversationID", "*uint")
	assertFieldType(t, typ, "Progress", "int")
	assertFieldType(t, typ, "Attempts", "int")
	assertFieldType(t, typ, "SubmittedAt", "time.Time")
	assertFieldType(t, typ, "CompletedAt", "*time.Time")
}

func TestScheduledRun_Fields(t *testing.T) {
	typ := reflect.TypeOf(ScheduledRun{})

	assertGormTag(t, typ, "ScheduleName", "not null")
	assertGormTag(t, typ, "ScheduleName", "index")
	assertGormTag(t, typ, "Status", "default:running")

	assertFieldType(t, typ, "StartedAt", "time.Time")
	assertFieldType(t, typ, "FinishedAt", "*time.Time")
}
