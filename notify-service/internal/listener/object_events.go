package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/task"
)

const objectEventsName = "object_events"

// bucketNotification is a MinIO bucket notification as published to Kafka.
type bucketNotification struct {
	EventName string         `json:"EventName"`
	Key       string         `json:"Key"`
	Records   []bucketRecord `json:"Records"`
}

type bucketRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

// ObjectEvents emits OriginalUploaded for every created object whose key
// names an original. Other records are ignored.
type ObjectEvents struct {
	sink    Sink
	timeout time.Duration
}

func NewObjectEvents(sink Sink) *ObjectEvents {
	return &ObjectEvents{sink: sink, timeout: defaultSubmitTimeout}
}

// HandleMessage implements mq.Handler.
func (l *ObjectEvents) HandleMessage(ctx context.Context, _, value []byte) error {
	events, err := parseObjectEvents(value)
	if err != nil {
		count(objectEventsName, "malformed")
		return err
	}
	if len(events) == 0 {
		count(objectEventsName, "ignored")
		return nil
	}

	for _, ev := range events {
		if err := submit(ctx, l.sink, l.timeout, ev); err != nil {
			count(objectEventsName, "dropped")
			return fmt.Errorf("submit original for %s: %w", ev.ProjectID, err)
		}
		log.Ctx(ctx).Info().
			Str(log.FieldProjectID, ev.ProjectID).
			Str(log.FieldObjectKey, ev.Versions[task.VersionOriginal]).
			Msg("original uploaded")
		count(objectEventsName, "emitted")
	}
	return nil
}

func parseObjectEvents(value []byte) ([]domain.OriginalUploaded, error) {
	var n bucketNotification
	if err := json.Unmarshal(value, &n); err != nil {
		return nil, fmt.Errorf("decode bucket notification: %w", err)
	}

	var out []domain.OriginalUploaded
	for _, r := range n.Records {
		if !strings.HasPrefix(r.EventName, "s3:ObjectCreated:") {
			continue
		}
		key, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("decode object key %q: %w", r.S3.Object.Key, err)
		}
		if !task.IsOriginalKey(key) {
			continue
		}
		projectID, ok := task.ProjectOf(key)
		if !ok {
			continue
		}
		out = append(out, domain.OriginalUploaded{
			ProjectID: projectID,
			Versions:  map[string]string{task.VersionOriginal: key},
		})
	}
	return out, nil
}
