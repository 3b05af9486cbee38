package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunKind names a pipeline a worker can execute.
type RunKind string

const (
	KindAllocate RunKind = "allocate"
	KindVariance RunKind = "variance"
	KindOverview RunKind = "overview"
	KindAccounts RunKind = "accounts"
)

// Kinds lists every valid RunKind.
var Kinds = []RunKind{KindAllocate, KindVariance, KindOverview, KindAccounts}

// ParseKind validates a kind name.
func ParseKind(s string) (RunKind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown run kind %q", s)
}

// RunRequest asks a worker to execute a pipeline. The run is already recorded
// under RunID; the worker only moves it forward.
type RunRequest struct {
	RunID       string    `json:"run_id"`
	Kind        RunKind   `json:"kind"`
	Source      string    `json:"source,omitempty"` // budget name, accounts runs only
	RequestedBy string    `json:"requested_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRunRequest creates a request; an empty runID gets a fresh one.
func NewRunRequest(runID string, kind RunKind, requestedBy string) *RunRequest {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &RunRequest{
		RunID:       runID,
		Kind:        kind,
		RequestedBy: requestedBy,
		Timestamp:   time.Now(),
	}
}

func (m *RunRequest) Validate() error {
	var errs []error
	if m.RunID == "" {
		errs = append(errs, errors.New("run_id is required"))
	} else if _, err := uuid.Parse(m.RunID); err != nil {
		errs = append(errs, fmt.Errorf("run_id: %w", err))
	}
	if _, err := ParseKind(string(m.Kind)); err != nil {
		errs = append(errs, err)
	}
	if m.Kind == KindAccounts && m.Source == "" {
		errs = append(errs, errors.New("accounts runs need a source"))
	}
	return errors.Join(errs...)
}

func (m *RunRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RunRequestFromJSON decodes and validates a request.
func RunRequestFromJSON(data []byte) (*RunRequest, error) {
	var msg RunRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run request: %w", err)
	}
	return &msg, nil
}

// RunCompleted is published after a worker finishes a run.
type RunCompleted struct {
	RunID     string    `json:"run_id"`
	Kind      RunKind   `json:"kind"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRunCompleted(req *RunRequest, status, note string, runErr error) *RunCompleted {
	msg := &RunCompleted{
		RunID:     req.RunID,
		Kind:      req.Kind,
		Status:    status,
		Note:      note,
		Timestamp: time.Now(),
	}
	if runErr != nil {
		msg.Error = runErr.Error()
	}
	return msg
}

func (m *RunCompleted) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RunCompletedFromJSON(data []byte) (*RunCompleted, error) {
	var msg RunCompleted
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
