// Package task holds the wire contract between the notify service and the
// resize workers: the task message and the progress/failure notifications.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Default topic names.
const (
	TopicTasks         = "resize-tasks"
	TopicNotifications = "task-notifications"
	TopicObjectEvents  = "minio-events"
)

// State is the lifecycle state of a project and of its task.
type State string

const (
	StateExpectingOriginal State = "EXPECTING_ORIGINAL"
	StateGotOriginal       State = "GOT_ORIGINAL"
	StateStarted           State = "STARTED"
	StateProgress          State = "PROGRESS"
	StateSuccess           State = "SUCCESS"
	StateFailure           State = "FAILURE"
	StateRevoked           State = "REVOKED"
)

// Terminal reports whether no further transitions are expected.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure || s == StateRevoked
}

// VersionOriginal names the uploaded object in a versions map.
const VersionOriginal = "original"

// OriginalSuffix marks an uploaded original in its object key stem.
const OriginalSuffix = "_original"

// Task asks a worker to produce every derived version of an original.
type Task struct {
	TaskID      string    `json:"task_id"`
	ProjectID   string    `json:"project_id"`
	OriginalKey string    `json:"original_key"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Progress counts finished versions out of the total to produce.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Notification is published by a worker after each version (PROGRESS), once
// at the end (SUCCESS) or on error (FAILURE, carrying only TaskID and Error).
type Notification struct {
	TaskID    string            `json:"task_id,omitempty"`
	ProjectID string            `json:"project_id,omitempty"`
	State     State             `json:"state"`
	Versions  map[string]string `json:"versions,omitempty"`
	Progress  *Progress         `json:"progress,omitempty"`
	Error     string            `json:"error,omitempty"`
}

var ErrInvalidNotification = errors.New("invalid task notification")

// ParseNotification decodes and validates a notification payload.
func ParseNotification(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}

	switch n.State {
	case StateFailure:
		if n.TaskID == "" {
			return Notification{}, fmt.Errorf("%w: failure without task_id", ErrInvalidNotification)
		}
	case StateProgress, StateSuccess:
		if n.ProjectID == "" {
			return Notification{}, fmt.Errorf("%w: %s without project_id", ErrInvalidNotification, n.State)
		}
		if n.Progress == nil {
			n.Progress = &Progress{}
		}
	default:
		return Notification{}, fmt.Errorf("%w: unexpected state %q", ErrInvalidNotification, n.State)
	}
	return n, nil
}

// IsOriginalKey reports whether key names an uploaded original: its file
// name without the last extension ends with OriginalSuffix. This is the
// inverse of OriginalKey, and never matches a DerivedKey.
func IsOriginalKey(key string) bool {
	name := path.Base(key)
	return strings.HasSuffix(strings.TrimSuffix(name, path.Ext(name)), OriginalSuffix)
}

// OriginalKey is the object key a client uploads filename to.
func OriginalKey(projectID, filename string) string {
	name := path.Base(filename)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return projectID + "/" + stem + OriginalSuffix + ext
}

// ProjectOf returns the first path segment of key.
func ProjectOf(key string) (string, bool) {
	id, rest, ok := strings.Cut(key, "/")
	if !ok || id == "" || rest == "" {
		return "", false
	}
	return id, true
}

// DerivedKey returns "{prefix}/{base}_{version}{ext}" where base is the
// original's stem with its last OriginalSuffix removed.
func DerivedKey(originalKey, version string) string {
	dir, name := path.Split(originalKey)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if i := strings.LastIndex(stem, OriginalSuffix); i >= 0 {
		stem = stem[:i] + stem[i+len(OriginalSuffix):]
	}
	return dir + stem + "_" + version + ext
}
