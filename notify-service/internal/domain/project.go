package domain

import (
	"time"

	"github.com/weiawesome/picpipe/pkg/task"
)

// Project is one uploaded image and the derived versions produced from it.
type Project struct {
	ID        string
	Filename  string
	State     task.State
	Versions  map[string]string // version name -> object key
	Progress  task.Progress
	TaskID    string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProject returns a project waiting for its original upload.
func NewProject(id, filename string) *Project {
	now := time.Now().UTC()
	return &Project{
		ID:        id,
		Filename:  filename,
		State:     task.StateExpectingOriginal,
		Versions:  map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ProjectUpdate is a partial update. Nil fields are left unchanged and
// Versions entries are set key by key, so applying the same update twice
// yields the same project.
type ProjectUpdate struct {
	State    *task.State
	Versions map[string]string
	Progress *task.Progress
	TaskID   *string
	Error    *string
}

// Apply merges u into p.
func (u ProjectUpdate) Apply(p *Project) {
	if u.State != nil {
		p.State = *u.State
	}
	if len(u.Versions) > 0 && p.Versions == nil {
		p.Versions = make(map[string]string, len(u.Versions))
	}
	for k, v := range u.Versions {
		p.Versions[k] = v
	}
	if u.Progress != nil {
		p.Progress = *u.Progress
	}
	if u.TaskID != nil {
		p.TaskID = *u.TaskID
	}
	if u.Error != nil {
		p.Error = *u.Error
	}
	p.UpdatedAt = time.Now().UTC()
}

// ProjectFilter narrows List. Zero fields match everything.
type ProjectFilter struct {
	State task.State
}

// StatePtr is a helper for building updates.
func StatePtr(s task.State) *task.State { return &s }

// StringPtr is a helper for building updates.
func StringPtr(s string) *string { return &s }
