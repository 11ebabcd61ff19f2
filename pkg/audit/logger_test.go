package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/scbe-labs/gate/pkg/contracts"
)

func TestRecordWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)

	err := l.Record(context.Background(), Event{
		Outcome:  OutcomeReject,
		Reason:   contracts.ReasonSwarm,
		Detail:   "trust 0.21 below minimum 0.30",
		Route:    "openai",
		RunID:    "run-9",
		DeviceID: "dev-1",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	line := buf.String()
	if !strings.HasPrefix(line, "AUDIT: ") {
		t.Fatalf("missing AUDIT prefix: %q", line)
	}

	var event Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "AUDIT: ")), &event); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if event.ID == "" {
		t.Error("event ID not assigned")
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
	if event.Reason != contracts.ReasonSwarm {
		t.Errorf("reason lost: %q", event.Reason)
	}
}

func TestRecordAcceptOmitsReason(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)

	if err := l.Record(context.Background(), Event{Outcome: OutcomeAccept, Route: "anthropic"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if strings.Contains(buf.String(), `"reason"`) {
		t.Errorf("accept event should omit reason field: %s", buf.String())
	}
}

func TestDiscardDropsEvents(t *testing.T) {
	if err := Discard.Record(context.Background(), Event{Outcome: OutcomeAccept}); err != nil {
		t.Fatalf("Discard returned error: %v", err)
	}
}
