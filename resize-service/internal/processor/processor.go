// Package processor produces the derived versions of an uploaded original
// and reports progress to the notify service.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"path"
	"time"

	"github.com/disintegration/imaging"

	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/metrics"
	"github.com/weiawesome/picpipe/pkg/mq"
	"github.com/weiawesome/picpipe/pkg/storage"
	"github.com/weiawesome/picpipe/pkg/task"
	"github.com/weiawesome/picpipe/resize-service/internal/config"
)

// Store is the object storage the processor reads originals from and
// writes versions to.
type Store interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Processor resizes one original per task. Versions are produced one at a
// time in configured order; after each a PROGRESS notification carries every
// version done so far, then a SUCCESS notification closes the task. Any
// error ends the task with a FAILURE notification instead.
type Processor struct {
	store       Store
	publisher   mq.Publisher
	topic       string
	sizes       []config.SizeConfig
	jpegQuality int
	lifecycle   config.LifecycleConfig
}

func New(store Store, publisher mq.Publisher, topic string, cfg config.ProcessorConfig) *Processor {
	sizes := cfg.Sizes
	if len(sizes) == 0 {
		sizes = config.DefaultSizes()
	}
	quality := cfg.JpegQuality
	if quality <= 0 {
		quality = 85
	}
	if topic == "" {
		topic = task.TopicNotifications
	}
	return &Processor{
		store:       store,
		publisher:   publisher,
		topic:       topic,
		sizes:       sizes,
		jpegQuality: quality,
		lifecycle:   cfg.Lifecycle,
	}
}

// HandleMessage implements mq.Handler for the tasks topic.
func (p *Processor) HandleMessage(ctx context.Context, _, value []byte) error {
	var t task.Task
	if err := json.Unmarshal(value, &t); err != nil {
		return fmt.Errorf("decode task: %w", err)
	}
	if t.TaskID == "" || t.ProjectID == "" || t.OriginalKey == "" {
		return fmt.Errorf("incomplete task %+v", t)
	}
	return p.Process(ctx, t)
}

// Process runs t to completion. It returns an error only when the outcome
// could not be reported.
func (p *Processor) Process(ctx context.Context, t task.Task) error {
	ctx = log.WithFields(ctx, log.FieldTaskID, t.TaskID, log.FieldProjectID, t.ProjectID)
	l := log.Ctx(ctx)
	m := metrics.Get()

	if err := p.resize(ctx, t); err != nil {
		m.TasksProcessed.WithLabelValues(string(task.StateFailure)).Inc()
		l.Warn().Err(err).Str(log.FieldObjectKey, t.OriginalKey).Msg("resize task failed")
		return p.notify(ctx, t.ProjectID, task.Notification{
			TaskID: t.TaskID,
			State:  task.StateFailure,
			Error:  failureMessage(err),
		})
	}

	m.TasksProcessed.WithLabelValues(string(task.StateSuccess)).Inc()
	l.Info().Msg("resize task complete")
	return nil
}

func (p *Processor) resize(ctx context.Context, t task.Task) error {
	img, err := p.load(ctx, t.OriginalKey)
	if err != nil {
		return err
	}

	format, err := imaging.FormatFromFilename(t.OriginalKey)
	if err != nil {
		format = imaging.JPEG
	}

	versions := map[string]string{task.VersionOriginal: t.OriginalKey}
	progress := task.Progress{Total: len(p.sizes)}

	for _, sz := range p.sizes {
		start := time.Now()
		key := task.DerivedKey(t.OriginalKey, sz.Name)
		if err := p.writeVersion(ctx, img, key, format, sz); err != nil {
			return fmt.Errorf("%s: %w", sz.Name, err)
		}
		metrics.Get().VersionDuration.WithLabelValues(sz.Name).Observe(time.Since(start).Seconds())

		versions[sz.Name] = key
		progress.Done++
		if err := p.notify(ctx, t.ProjectID, task.Notification{
			TaskID:    t.TaskID,
			ProjectID: t.ProjectID,
			State:     task.StateProgress,
			Versions:  copyVersions(versions),
			Progress:  &task.Progress{Done: progress.Done, Total: progress.Total},
		}); err != nil {
			return err
		}
	}

	if err := p.notify(ctx, t.ProjectID, task.Notification{
		TaskID:    t.TaskID,
		ProjectID: t.ProjectID,
		State:     task.StateSuccess,
		Versions:  versions,
		Progress:  &progress,
	}); err != nil {
		return err
	}

	p.tagOriginal(ctx, t.OriginalKey)
	return nil
}

func (p *Processor) load(ctx context.Context, key string) (image.Image, error) {
	rc, err := p.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// writeVersion fits img inside the size's bounding box, keeping its aspect
// ratio; images already inside the box are stored unscaled.
func (p *Processor) writeVersion(ctx context.Context, img image.Image, key string, format imaging.Format, sz config.SizeConfig) error {
	resized := imaging.Fit(img, sz.Width, sz.Height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(p.jpegQuality)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if err := p.store.Write(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), contentType); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}

// tagOriginal marks the original for lifecycle rules, best effort.
func (p *Processor) tagOriginal(ctx context.Context, key string) {
	tagger, ok := p.store.(storage.Tagger)
	if !ok || p.lifecycle.TagKey == "" {
		return
	}
	if err := tagger.TagObject(ctx, key, p.lifecycle.TagKey, p.lifecycle.TagValue); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldObjectKey, key).Msg("failed to tag original")
	}
}

func (p *Processor) notify(ctx context.Context, projectID string, n task.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	key := projectID
	if key == "" {
		key = n.TaskID
	}
	if err := p.publisher.Publish(ctx, p.topic, []byte(key), data); err != nil {
		return fmt.Errorf("publish %s notification: %w", n.State, err)
	}
	return nil
}

// failureMessage is the error text reported to subscribers.
func failureMessage(err error) string {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return storage.ErrObjectNotFound.Error()
	}
	return err.Error()
}

func copyVersions(v map[string]string) map[string]string {
	out := make(map[string]string, len(v))
	for k, s := range v {
		out[k] = s
	}
	return out
}
