package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/picpipe/pkg/task"
)

type published struct {
	topic      string
	key, value []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, key, value})
	return nil
}

func TestSubmitPublishesTask(t *testing.T) {
	pub := &fakePublisher{}
	d := NewKafkaDispatcher(pub, "")
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	id, err := d.Submit(context.Background(), "p1", "p1/cat_original.jpg")
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)

	msg := pub.msgs[0]
	assert.Equal(t, task.TopicTasks, msg.topic)
	assert.Equal(t, "p1", string(msg.key))

	var got task.Task
	require.NoError(t, json.Unmarshal(msg.value, &got))
	assert.Equal(t, task.Task{TaskID: id, ProjectID: "p1", OriginalKey: "p1/cat_original.jpg", SubmittedAt: fixed}, got)
}

func TestSubmitUniqueIDs(t *testing.T) {
	d := NewKafkaDispatcher(&fakePublisher{}, "tasks")
	a, err := d.Submit(context.Background(), "p1", "k")
	require.NoError(t, err)
	b, err := d.Submit(context.Background(), "p1", "k")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSubmitPublishError(t *testing.T) {
	d := NewKafkaDispatcher(&fakePublisher{err: errors.New("broker down")}, "tasks")
	id, err := d.Submit(context.Background(), "p1", "k")
	assert.Error(t, err)
	assert.Empty(t, id)
}
