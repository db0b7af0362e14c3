package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/weiawesome/picpipe/pkg/task"
)

// Action is the verb of a client request.
type Action string

const (
	ActionSubscribe   Action = "SUBSCRIBE"
	ActionUnsubscribe Action = "UNSUBSCRIBE"
)

// Ack statuses.
const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// Request is what a client sends over the websocket.
type Request struct {
	Action    Action `json:"action"`
	ProjectID string `json:"project_id"`
}

// ParseRequest decodes and validates a client frame into a Command.
// The returned Request carries whatever could be decoded, for the ack.
func ParseRequest(connID string, data []byte) (Request, Command, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return req, Command{}, ErrInvalidMessage
	}
	req.Action = Action(strings.ToUpper(string(req.Action)))

	var kind CommandKind
	switch req.Action {
	case ActionSubscribe:
		kind = CommandSubscribe
	case ActionUnsubscribe:
		kind = CommandUnsubscribe
	default:
		return req, Command{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}

	id, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return req, Command{}, ErrInvalidProjectID
	}
	req.ProjectID = id.String()

	return req, Command{Kind: kind, ConnID: connID, ProjectID: req.ProjectID}, nil
}

// Ack answers a Request.
type Ack struct {
	Action     Action `json:"action,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

// NewAck builds the ack for req given the outcome of handling it.
func NewAck(req Request, err error) Ack {
	ack := Ack{Action: req.Action, ProjectID: req.ProjectID, StatusCode: 200, Status: StatusOK}
	if err != nil {
		ack.StatusCode = 400
		ack.Status = StatusError
		ack.Message = err.Error()
	}
	return ack
}

// ProjectPush is sent to subscribers when a project changes. Versions hold
// download URLs.
type ProjectPush struct {
	ProjectID string            `json:"project_id"`
	State     task.State        `json:"state"`
	Versions  map[string]string `json:"versions"`
	Progress  *task.Progress    `json:"progress,omitempty"`
}

// FailurePush is sent to subscribers when a project's task fails.
type FailurePush struct {
	TaskID string     `json:"task_id"`
	State  task.State `json:"state"`
	Error  string     `json:"error"`
}
