package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/task"
)

const notificationsName = "task_notifications"

// Notifications emits TaskProgress, TaskSuccess or TaskFailure for each
// worker notification.
type Notifications struct {
	sink    Sink
	timeout time.Duration
}

func NewNotifications(sink Sink) *Notifications {
	return &Notifications{sink: sink, timeout: defaultSubmitTimeout}
}

// HandleMessage implements mq.Handler.
func (l *Notifications) HandleMessage(ctx context.Context, key, value []byte) error {
	n, err := task.ParseNotification(value)
	if err != nil {
		count(notificationsName, "malformed")
		return err
	}

	ev := toEvent(string(key), n)
	if err := submit(ctx, l.sink, l.timeout, ev); err != nil {
		count(notificationsName, "dropped")
		return fmt.Errorf("submit %s: %w", ev.Kind(), err)
	}

	log.Ctx(ctx).Debug().
		Str(log.FieldProjectID, n.ProjectID).
		Str(log.FieldTaskID, n.TaskID).
		Str("state", string(n.State)).
		Msg("task notification")
	count(notificationsName, "emitted")
	return nil
}

// toEvent maps a validated notification to its event. Workers key
// notifications by project id, which orders a failure after the project's
// earlier progress.
func toEvent(key string, n task.Notification) domain.Event {
	switch n.State {
	case task.StateFailure:
		projectID := n.ProjectID
		if projectID == "" {
			projectID = key
		}
		return domain.TaskFailure{TaskID: n.TaskID, ProjectID: projectID, Error: n.Error}
	case task.StateSuccess:
		return domain.TaskSuccess{ProjectID: n.ProjectID, Versions: n.Versions, Progress: *n.Progress}
	default:
		return domain.TaskProgress{ProjectID: n.ProjectID, Versions: n.Versions, Progress: *n.Progress}
	}
}
