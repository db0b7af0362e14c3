package service

import (
	"context"
	"sync"
	"time"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
)

// memRepo is an in-memory ProjectRepository.
type memRepo struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
}

func newMemRepo() *memRepo {
	return &memRepo{projects: map[string]*domain.Project{}}
}

func clone(p *domain.Project) *domain.Project {
	c := *p
	c.Versions = make(map[string]string, len(p.Versions))
	for k, v := range p.Versions {
		c.Versions[k] = v
	}
	return &c
}

func (r *memRepo) Add(_ context.Context, p *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = clone(p)
	return nil
}

func (r *memRepo) Get(_ context.Context, id string) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	return clone(p), nil
}

func (r *memRepo) Update(_ context.Context, id string, u domain.ProjectUpdate) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, domain.ErrProjectNotFound
	}
	u.Apply(p)
	return clone(p), nil
}

func (r *memRepo) List(_ context.Context, filter domain.ProjectFilter, skip, limit int) ([]*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Project
	for _, p := range r.projects {
		if filter.State == "" || p.State == filter.State {
			out = append(out, clone(p))
		}
	}
	if skip >= len(out) {
		return nil, nil
	}
	out = out[skip:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) FindByTaskID(_ context.Context, taskID string) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.projects {
		if p.TaskID == taskID {
			return clone(p), nil
		}
	}
	return nil, domain.ErrProjectNotFound
}

func (r *memRepo) Close(context.Context) error { return nil }

type submitted struct {
	projectID, originalKey string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	tasks []submitted
	id    string
}

func (d *fakeDispatcher) Submit(_ context.Context, projectID, originalKey string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, submitted{projectID, originalKey})
	return d.id, nil
}

type publication struct {
	projectID string
	eventType string
	payload   interface{}
}

// fakeSubs records subscriptions and publications.
type fakeSubs struct {
	mu        sync.Mutex
	subs      map[string]bool
	published chan publication
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{subs: map[string]bool{}, published: make(chan publication, 64)}
}

func (s *fakeSubs) Subscribe(_ context.Context, connID, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[connID+projectID] {
		return domain.ErrAlreadySubscribed
	}
	s.subs[connID+projectID] = true
	return nil
}

func (s *fakeSubs) Unsubscribe(_ context.Context, connID, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.subs[connID+projectID] {
		return domain.ErrNotInSubscriptions
	}
	delete(s.subs, connID+projectID)
	return nil
}

func (s *fakeSubs) Publish(_ context.Context, projectID, eventType string, payload interface{}) error {
	s.published <- publication{projectID, eventType, payload}
	return nil
}

// fakeURLs signs keys as https://cdn/{key}.
type fakeURLs struct{}

func (fakeURLs) GetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://cdn/" + key, nil
}

func (fakeURLs) GetUploadURL(_ context.Context, key, contentType string, _ time.Duration) (string, error) {
	return "https://upload/" + key + "?type=" + contentType, nil
}
