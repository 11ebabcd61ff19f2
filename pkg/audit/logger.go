// Package audit records every gate decision as a structured event.
//
// Events carry the internal reason code for operators; they never include
// ciphertext contents. The external response stays noise regardless of what
// is recorded here.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/scbe-labs/gate/pkg/contracts"
)

// Outcome is the decision recorded for an event.
type Outcome string

const (
	OutcomeAccept Outcome = "ACCEPT"
	OutcomeReject Outcome = "REJECT"
)

// Event is one structured audit record for a pipeline decision.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Event struct {
	ID        string           `json:"id"`
	Outcome   Outcome          `json:"outcome"`
	Reason    contracts.Reason `json:"reason,omitempty"`
	Detail    string           `json:"detail,omitempty"`
	Route     string           `json:"route"`
	RunID     string           `json:"run_id"`
	DeviceID  string           `json:"device_id"`
	Timestamp time.Time        `json:"timestamp"`
}

// Logger records decision events.
type Logger interface {
	Record(ctx context.Context, event Event) error
}

// logger writes structured JSON to a configurable Writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
	clock  func() time.Time
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer. This
// allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w, clock: time.Now}
}

func (l *logger) Record(_ context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.clock()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix with AUDIT: for easy filtering
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
	return err
}

// Discard is a Logger that drops every event. Useful as a default when the
// hosting system wires its own sink.
var Discard Logger = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }
