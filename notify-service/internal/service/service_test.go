package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/picpipe/notify-service/internal/bus"
	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/pkg/pubsub"
	"github.com/weiawesome/picpipe/pkg/task"
)

const (
	projectID   = "11111111-1111-1111-1111-111111111111"
	originalKey = projectID + "/cat_original.jpg"
)

type fixture struct {
	repo       *memRepo
	dispatcher *fakeDispatcher
	subs       *fakeSubs
	bus        *bus.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:       newMemRepo(),
		dispatcher: &fakeDispatcher{id: "task-1"},
		subs:       newFakeSubs(),
		bus:        bus.New(),
	}
	NewHandlers(f.repo, f.dispatcher, f.subs, fakeURLs{}, time.Hour).Register(f.bus)
	require.NoError(t, f.repo.Add(context.Background(), domain.NewProject(projectID, "cat.jpg")))
	return f
}

func (f *fixture) handle(t *testing.T, msgs ...domain.Message) {
	t.Helper()
	require.NoError(t, f.bus.Handle(context.Background(), msgs...))
	f.bus.Wait()
}

func (f *fixture) nextPush(t *testing.T) publication {
	t.Helper()
	select {
	case p := <-f.subs.published:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for publication")
		return publication{}
	}
}

func progress(done int, versions map[string]string) domain.TaskProgress {
	return domain.TaskProgress{ProjectID: projectID, Versions: versions, Progress: task.Progress{Done: done, Total: 4}}
}

func TestSubscribeCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := domain.Command{Kind: domain.CommandSubscribe, ConnID: "c1", ProjectID: projectID}
	unsub := domain.Command{Kind: domain.CommandUnsubscribe, ConnID: "c1", ProjectID: projectID}

	require.NoError(t, f.bus.Handle(ctx, sub))
	assert.ErrorIs(t, f.bus.Handle(ctx, sub), domain.ErrAlreadySubscribed)
	require.NoError(t, f.bus.Handle(ctx, unsub))
	assert.ErrorIs(t, f.bus.Handle(ctx, unsub), domain.ErrNotInSubscriptions)
}

func TestOriginalUploadedRecordsAndStartsTask(t *testing.T) {
	f := newFixture(t)

	f.handle(t, domain.OriginalUploaded{ProjectID: projectID, Versions: map[string]string{"original": originalKey}})

	pub := f.nextPush(t)
	assert.Equal(t, pubsub.EventProjectUpdate, pub.eventType)
	push := pub.payload.(*domain.ProjectPush)
	assert.Equal(t, task.StateGotOriginal, push.State)
	assert.Equal(t, map[string]string{"original": "https://cdn/" + originalKey}, push.Versions)
	assert.Nil(t, push.Progress)

	require.Len(t, f.dispatcher.tasks, 1)
	assert.Equal(t, submitted{projectID, originalKey}, f.dispatcher.tasks[0])

	p, err := f.repo.Get(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, "task-1", p.TaskID)
	assert.Equal(t, originalKey, p.Versions["original"])

	select {
	case extra := <-f.subs.published:
		t.Fatalf("STARTED must not be published, got %+v", extra)
	default:
	}
}

func TestOriginalUploadedForUnknownProjectIsDropped(t *testing.T) {
	f := newFixture(t)
	other := "22222222-2222-2222-2222-222222222222"

	f.handle(t, domain.OriginalUploaded{ProjectID: other, Versions: map[string]string{"original": other + "/x_original.png"}})

	assert.Empty(t, f.dispatcher.tasks)
	assert.Empty(t, f.subs.published)
}

func TestProgressIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ev := progress(1, map[string]string{"original": originalKey, "thumb": projectID + "/cat_thumb.jpg"})

	f.handle(t, ev)
	first, err := f.repo.Get(context.Background(), projectID)
	require.NoError(t, err)

	f.handle(t, ev)
	second, err := f.repo.Get(context.Background(), projectID)
	require.NoError(t, err)

	assert.Equal(t, first.Versions, second.Versions)
	assert.Equal(t, first.Progress, second.Progress)
	assert.Equal(t, task.StateProgress, second.State)

	a := f.nextPush(t).payload.(*domain.ProjectPush)
	b := f.nextPush(t).payload.(*domain.ProjectPush)
	assert.Equal(t, a, b)
}

func TestFailureResolvesByTaskID(t *testing.T) {
	f := newFixture(t)
	f.handle(t, domain.OriginalUploaded{ProjectID: projectID, Versions: map[string]string{"original": originalKey}})
	f.nextPush(t)

	f.handle(t, domain.TaskFailure{TaskID: "task-1", Error: "object not found"})

	pub := f.nextPush(t)
	assert.Equal(t, projectID, pub.projectID)
	assert.Equal(t, pubsub.EventTaskFailure, pub.eventType)
	assert.Equal(t, domain.FailurePush{TaskID: "task-1", State: task.StateFailure, Error: "object not found"}, pub.payload)

	p, err := f.repo.Get(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, task.StateFailure, p.State)
	assert.Equal(t, "object not found", p.Error)
}

func TestFailureForUnknownTaskIsDropped(t *testing.T) {
	f := newFixture(t)
	f.handle(t, domain.TaskFailure{TaskID: "nope", Error: "boom"})
	assert.Empty(t, f.subs.published)
}

// TestPipelineScenario drives a project from upload to SUCCESS.
func TestPipelineScenario(t *testing.T) {
	f := newFixture(t)

	f.handle(t, domain.OriginalUploaded{ProjectID: projectID, Versions: map[string]string{"original": originalKey}})
	assert.Equal(t, task.StateGotOriginal, f.nextPush(t).payload.(*domain.ProjectPush).State)

	versions := map[string]string{"original": originalKey}
	for i, name := range []string{"thumb", "big_thumb", "big_1920", "d2500"} {
		versions[name] = task.DerivedKey(originalKey, name)
		snapshot := make(map[string]string, len(versions))
		for k, v := range versions {
			snapshot[k] = v
		}
		f.handle(t, progress(i+1, snapshot))

		push := f.nextPush(t).payload.(*domain.ProjectPush)
		assert.Equal(t, task.StateProgress, push.State)
		require.NotNil(t, push.Progress)
		assert.Equal(t, i+1, push.Progress.Done)
		assert.Len(t, push.Versions, i+2)
	}

	f.handle(t, domain.TaskSuccess{ProjectID: projectID, Versions: versions, Progress: task.Progress{Done: 4, Total: 4}})
	push := f.nextPush(t).payload.(*domain.ProjectPush)
	assert.Equal(t, task.StateSuccess, push.State)
	assert.Len(t, push.Versions, 5)
	assert.Equal(t, "https://cdn/"+projectID+"/cat_d2500.jpg", push.Versions["d2500"])
}

// TestSubmittedNotificationsApplyInOrder feeds the bus the way the listeners
// do, back to back with no pause between events.
func TestSubmittedNotificationsApplyInOrder(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.bus.Run(ctx) }()

	versions := map[string]string{"original": originalKey}
	require.NoError(t, f.bus.Submit(ctx, domain.OriginalUploaded{ProjectID: projectID, Versions: map[string]string{"original": originalKey}}))
	for i, name := range []string{"thumb", "big_thumb", "big_1920", "d2500"} {
		versions[name] = task.DerivedKey(originalKey, name)
		snapshot := make(map[string]string, len(versions))
		for k, v := range versions {
			snapshot[k] = v
		}
		require.NoError(t, f.bus.Submit(ctx, progress(i+1, snapshot)))
	}
	require.NoError(t, f.bus.Submit(ctx, domain.TaskSuccess{ProjectID: projectID, Versions: versions, Progress: task.Progress{Done: 4, Total: 4}}))

	assert.Equal(t, task.StateGotOriginal, f.nextPush(t).payload.(*domain.ProjectPush).State)
	for i := 1; i <= 4; i++ {
		push := f.nextPush(t).payload.(*domain.ProjectPush)
		assert.Equal(t, task.StateProgress, push.State)
		require.NotNil(t, push.Progress)
		assert.Equal(t, i, push.Progress.Done)
	}
	final := f.nextPush(t).payload.(*domain.ProjectPush)
	assert.Equal(t, task.StateSuccess, final.State)
	f.bus.Wait()

	p, err := f.repo.Get(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, task.StateSuccess, p.State)
	assert.Equal(t, 4, p.Progress.Done)
	assert.Equal(t, "task-1", p.TaskID)
	assert.Len(t, p.Versions, 5)
}

func TestUploadRecordedBeforeTaskStart(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.bus.Run(ctx) }()

	require.NoError(t, f.bus.Submit(ctx, domain.OriginalUploaded{ProjectID: projectID, Versions: map[string]string{"original": originalKey}}))
	assert.Equal(t, task.StateGotOriginal, f.nextPush(t).payload.(*domain.ProjectPush).State)

	require.Eventually(t, func() bool {
		p, err := f.repo.Get(context.Background(), projectID)
		return err == nil && p.TaskID == "task-1"
	}, 2*time.Second, 5*time.Millisecond)
	f.bus.Wait()

	p, err := f.repo.Get(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, task.StateStarted, p.State)
}
