package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Origin tags which side of the editor/sandbox channel produced a message.
type Origin string

const (
	OriginEditor  Origin = "editor"
	OriginPreview Origin = "preview"
)

// MessageTypeTest marks sandbox messages that carry a test run result.
const MessageTypeTest = "test"

// StatusPass is the status of a passing test entry.
const StatusPass = "pass"

// EditorMessage is sent from the editor to the sandbox. Files already contain
// the dependency files and the run-path overlay.
type EditorMessage struct {
	From    Origin            `json:"from"`
	Files   map[string]string `json:"files"`
	RunPath string            `json:"runPath"`
	IsTest  bool              `json:"isTest,omitempty"`
	StepID  string            `json:"stepId,omitempty"`
	RunID   string            `json:"runId,omitempty"`
}

// PreviewMessage is the raw shape sent from the sandbox to the editor.
// Result holds the JSON-encoded list of test entries, either as a string or inline.
type PreviewMessage struct {
	From         Origin          `json:"from"`
	Type         string          `json:"type"`
	Result       json.RawMessage `json:"result,omitempty"`
	StepID       string          `json:"stepId,omitempty"`
	RunID        string          `json:"runId,omitempty"`
	CheckpointID string          `json:"checkpointId,omitempty"`
}

// TestResult is one entry of a sandbox test run.
type TestResult struct {
	Status string `json:"status"`
	Name   string `json:"name,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Inbound is the validated outcome of decoding a sandbox message.
// It is one of TestReport, Ignored or Malformed.
type Inbound interface {
	inbound()
}

// TestReport is a well-formed test run result.
type TestReport struct {
	StepID       string
	RunID        string
	CheckpointID string
	Results      []TestResult
}

// Passed reports whether the final entry of the run passed.
func (r TestReport) Passed() bool {
	return len(r.Results) > 0 && r.Results[len(r.Results)-1].Status == StatusPass
}

// Ignored is a well-formed message that does not drive grading.
type Ignored struct {
	Reason string
}

// Malformed is a message that could not be validated.
type Malformed struct {
	Err error
}

func (TestReport) inbound() {}
func (Ignored) inbound()    {}
func (Malformed) inbound()  {}

// DecodeInbound validates a raw sandbox message. Only messages from the preview
// with type "test" and a non-empty list of entries carrying a status become a TestReport.
func DecodeInbound(raw []byte) Inbound {
	var msg PreviewMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Malformed{Err: fmt.Errorf("%w: %v", ErrMalformedMessage, err)}
	}
	if msg.From != OriginPreview {
		return Ignored{Reason: fmt.Sprintf("origin %q", msg.From)}
	}
	if msg.Type != MessageTypeTest {
		return Ignored{Reason: fmt.Sprintf("type %q", msg.Type)}
	}

	results, err := decodeResults(msg.Result)
	if err != nil {
		return Malformed{Err: fmt.Errorf("%w: %v", ErrMalformedMessage, err)}
	}

	return TestReport{
		StepID:       msg.StepID,
		RunID:        msg.RunID,
		CheckpointID: msg.CheckpointID,
		Results:      results,
	}
}

func decodeResults(raw json.RawMessage) ([]TestResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("missing result")
	}

	// Sandboxes usually double-encode the list as a string.
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("result string: %w", err)
		}
		raw = []byte(encoded)
	}

	var results []TestResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("result list: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("empty result list")
	}
	for i, r := range results {
		if r.Status == "" {
			return nil, fmt.Errorf("entry %d has no status", i)
		}
	}
	return results, nil
}
