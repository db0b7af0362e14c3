package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weiawesome/picpipe/notify-service/internal/bus"
	"github.com/weiawesome/picpipe/notify-service/internal/dispatcher"
	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/notify-service/internal/repository"
	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/pubsub"
	"github.com/weiawesome/picpipe/pkg/task"
)

// Handlers reacts to client commands and pipeline events. Every project
// mutation in the server goes through here.
type Handlers struct {
	repo        repository.ProjectRepository
	dispatcher  dispatcher.TaskDispatcher
	subs        Subscriptions
	urls        URLSigner
	downloadTTL time.Duration
}

func NewHandlers(repo repository.ProjectRepository, d dispatcher.TaskDispatcher, subs Subscriptions, urls URLSigner, downloadTTL time.Duration) *Handlers {
	return &Handlers{repo: repo, dispatcher: d, subs: subs, urls: urls, downloadTTL: downloadTTL}
}

// Register wires the handlers into b. OriginalUploaded has two handlers:
// one records and announces the upload, the other starts the resize task.
func (h *Handlers) Register(b *bus.Bus) {
	b.HandleCommand(domain.CommandSubscribe, h.Subscribe)
	b.HandleCommand(domain.CommandUnsubscribe, h.Unsubscribe)

	b.On(domain.EventOriginalUploaded, h.RecordOriginal)
	b.On(domain.EventOriginalUploaded, h.StartTask)
	b.On(domain.EventTaskProgress, h.ApplyProgress)
	b.On(domain.EventTaskSuccess, h.ApplyProgress)
	b.On(domain.EventTaskFailure, h.ApplyFailure)
}

func (h *Handlers) Subscribe(ctx context.Context, cmd domain.Command) error {
	return h.subs.Subscribe(ctx, cmd.ConnID, cmd.ProjectID)
}

func (h *Handlers) Unsubscribe(ctx context.Context, cmd domain.Command) error {
	return h.subs.Unsubscribe(ctx, cmd.ConnID, cmd.ProjectID)
}

// RecordOriginal persists GOT_ORIGINAL with the original's key and
// publishes the project.
func (h *Handlers) RecordOriginal(ctx context.Context, ev domain.Event) error {
	e := ev.(domain.OriginalUploaded)
	ctx = log.WithFields(ctx, log.FieldProjectID, e.ProjectID)

	p, err := h.repo.Update(ctx, e.ProjectID, domain.ProjectUpdate{
		State:    domain.StatePtr(task.StateGotOriginal),
		Versions: e.Versions,
	})
	if err != nil {
		return dropNotFound(ctx, err, "original uploaded for unknown project")
	}
	return h.publishProject(ctx, p, false)
}

// StartTask submits the resize task and records its id with state STARTED.
// This transition is not published.
func (h *Handlers) StartTask(ctx context.Context, ev domain.Event) error {
	e := ev.(domain.OriginalUploaded)
	ctx = log.WithFields(ctx, log.FieldProjectID, e.ProjectID)

	key, ok := e.Versions[task.VersionOriginal]
	if !ok {
		return fmt.Errorf("original uploaded without %q version", task.VersionOriginal)
	}
	if _, err := h.repo.Get(ctx, e.ProjectID); err != nil {
		return dropNotFound(ctx, err, "not starting task for unknown project")
	}

	taskID, err := h.dispatcher.Submit(ctx, e.ProjectID, key)
	if err != nil {
		return err
	}

	_, err = h.repo.Update(ctx, e.ProjectID, domain.ProjectUpdate{
		State:  domain.StatePtr(task.StateStarted),
		TaskID: domain.StringPtr(taskID),
	})
	return dropNotFound(ctx, err, "project vanished before task start was recorded")
}

// ApplyProgress merges a PROGRESS or SUCCESS notification and publishes the
// merged project. Replaying a notification yields the same project.
func (h *Handlers) ApplyProgress(ctx context.Context, ev domain.Event) error {
	var (
		projectID string
		update    domain.ProjectUpdate
	)
	switch e := ev.(type) {
	case domain.TaskProgress:
		progress := e.Progress
		projectID = e.ProjectID
		update = domain.ProjectUpdate{State: domain.StatePtr(task.StateProgress), Versions: e.Versions, Progress: &progress}
	case domain.TaskSuccess:
		progress := e.Progress
		projectID = e.ProjectID
		update = domain.ProjectUpdate{State: domain.StatePtr(task.StateSuccess), Versions: e.Versions, Progress: &progress}
	default:
		return fmt.Errorf("unexpected event %s", ev.Kind())
	}
	ctx = log.WithFields(ctx, log.FieldProjectID, projectID)

	p, err := h.repo.Update(ctx, projectID, update)
	if err != nil {
		return dropNotFound(ctx, err, "progress for unknown project")
	}
	return h.publishProject(ctx, p, true)
}

// ApplyFailure resolves the project by task id, records the error and
// publishes the failure.
func (h *Handlers) ApplyFailure(ctx context.Context, ev domain.Event) error {
	e := ev.(domain.TaskFailure)
	ctx = log.WithFields(ctx, log.FieldTaskID, e.TaskID)

	p, err := h.repo.FindByTaskID(ctx, e.TaskID)
	if err != nil {
		return dropNotFound(ctx, err, "failure for unknown task")
	}
	ctx = log.WithFields(ctx, log.FieldProjectID, p.ID)

	if _, err := h.repo.Update(ctx, p.ID, domain.ProjectUpdate{
		State: domain.StatePtr(task.StateFailure),
		Error: domain.StringPtr(e.Error),
	}); err != nil {
		return dropNotFound(ctx, err, "project vanished before failure was recorded")
	}

	push := domain.FailurePush{TaskID: e.TaskID, State: task.StateFailure, Error: e.Error}
	return h.subs.Publish(ctx, p.ID, pubsub.EventTaskFailure, push)
}

func (h *Handlers) publishProject(ctx context.Context, p *domain.Project, withProgress bool) error {
	push, err := toPush(ctx, h.urls, p, h.downloadTTL, withProgress)
	if err != nil {
		return err
	}
	return h.subs.Publish(ctx, p.ID, pubsub.EventProjectUpdate, push)
}

// dropNotFound logs a correlation miss at warn and swallows it.
func dropNotFound(ctx context.Context, err error, msg string) error {
	if errors.Is(err, domain.ErrProjectNotFound) {
		log.Ctx(ctx).Warn().Msg(msg)
		return nil
	}
	return err
}
