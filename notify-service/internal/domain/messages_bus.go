package domain

import "github.com/weiawesome/picpipe/pkg/task"

// Message is a Command or an Event. The set is closed.
type Message interface {
	message()
}

// CommandKind enumerates client commands.
type CommandKind int

const (
	CommandSubscribe CommandKind = iota + 1
	CommandUnsubscribe
)

func (k CommandKind) String() string {
	switch k {
	case CommandSubscribe:
		return "Subscribe"
	case CommandUnsubscribe:
		return "Unsubscribe"
	default:
		return "UnknownCommand"
	}
}

// Command is a client request to change its subscriptions. It has exactly
// one handler.
type Command struct {
	Kind      CommandKind
	ConnID    string
	ProjectID string
}

func (Command) message() {}

// EventKind enumerates events.
type EventKind int

const (
	EventOriginalUploaded EventKind = iota + 1
	EventTaskProgress
	EventTaskSuccess
	EventTaskFailure
)

func (k EventKind) String() string {
	switch k {
	case EventOriginalUploaded:
		return "OriginalUploaded"
	case EventTaskProgress:
		return "TaskProgress"
	case EventTaskSuccess:
		return "TaskSuccess"
	case EventTaskFailure:
		return "TaskFailure"
	default:
		return "UnknownEvent"
	}
}

// Event is something that happened; it has zero or more handlers. Events
// sharing a non-empty OrderKey are handled one after another in arrival order.
type Event interface {
	Message
	Kind() EventKind
	OrderKey() string
}

// OriginalUploaded reports that the object store received an original.
type OriginalUploaded struct {
	ProjectID string
	Versions  map[string]string
}

// TaskProgress reports that a worker finished one more version.
type TaskProgress struct {
	ProjectID string
	Versions  map[string]string
	Progress  task.Progress
}

// TaskSuccess reports that a worker finished every version.
type TaskSuccess struct {
	ProjectID string
	Versions  map[string]string
	Progress  task.Progress
}

// TaskFailure reports that a worker gave up on a task. ProjectID is a
// routing hint from the broker message key; the project is resolved by TaskID.
type TaskFailure struct {
	TaskID    string
	ProjectID string
	Error     string
}

func (OriginalUploaded) message() {}
func (TaskProgress) message()     {}
func (TaskSuccess) message()      {}
func (TaskFailure) message()      {}

func (OriginalUploaded) Kind() EventKind { return EventOriginalUploaded }
func (TaskProgress) Kind() EventKind     { return EventTaskProgress }
func (TaskSuccess) Kind() EventKind      { return EventTaskSuccess }
func (TaskFailure) Kind() EventKind      { return EventTaskFailure }

func (e OriginalUploaded) OrderKey() string { return e.ProjectID }
func (e TaskProgress) OrderKey() string     { return e.ProjectID }
func (e TaskSuccess) OrderKey() string      { return e.ProjectID }

func (e TaskFailure) OrderKey() string {
	if e.ProjectID != "" {
		return e.ProjectID
	}
	return e.TaskID
}
