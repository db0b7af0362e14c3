// Package dispatcher hands resize work to the worker fleet.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/mq"
	"github.com/weiawesome/picpipe/pkg/task"
)

// TaskDispatcher enqueues a resize task and returns its id.
type TaskDispatcher interface {
	Submit(ctx context.Context, projectID, originalKey string) (string, error)
}

// KafkaDispatcher publishes tasks keyed by project id.
type KafkaDispatcher struct {
	publisher mq.Publisher
	topic     string
	now       func() time.Time
}

func NewKafkaDispatcher(publisher mq.Publisher, topic string) *KafkaDispatcher {
	if topic == "" {
		topic = task.TopicTasks
	}
	return &KafkaDispatcher{publisher: publisher, topic: topic, now: time.Now}
}

func (d *KafkaDispatcher) Submit(ctx context.Context, projectID, originalKey string) (string, error) {
	t := task.Task{
		TaskID:      uuid.NewString(),
		ProjectID:   projectID,
		OriginalKey: originalKey,
		SubmittedAt: d.now().UTC(),
	}

	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := d.publisher.Publish(ctx, d.topic, []byte(projectID), data); err != nil {
		return "", fmt.Errorf("failed to publish task: %w", err)
	}

	log.Ctx(ctx).Info().
		Str(log.FieldProjectID, projectID).
		Str(log.FieldTaskID, t.TaskID).
		Str(log.FieldObjectKey, originalKey).
		Msg("resize task submitted")
	return t.TaskID, nil
}
