package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"cuentas.dev/internal/account"
	"cuentas.dev/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = account.ContextWithPrincipal(ctx, account.Principal{
		AccountID: "acc-42",
		Roles:     []account.RoleClaim{{Nombre: "Admin"}},
	})

	if err := LogEvent(ctx, "account.deactivate", map[string]any{"target_id": "acc-7"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "account.deactivate" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["account_id"] != "acc-42" {
		t.Fatalf("unexpected account id: %v", entry["account_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["target_id"] != "acc-7" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for blank event name")
	}
}
