package repository

import (
	"time"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/pkg/database"
	"github.com/weiawesome/picpipe/pkg/task"
)

// ProjectModel is the GORM model for the projects table.
type ProjectModel struct {
	ID            string             `gorm:"type:varchar(36);primaryKey"`
	Filename      string             `gorm:"type:varchar(255)"`
	State         string             `gorm:"type:varchar(32);index;not null"`
	Versions      database.StringMap `gorm:"type:text"`
	ProgressDone  int
	ProgressTotal int
	TaskID        string    `gorm:"type:varchar(64);index"`
	Error         string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (ProjectModel) TableName() string {
	return "projects"
}

func (m *ProjectModel) ToDomain() *domain.Project {
	versions := make(map[string]string, len(m.Versions))
	for k, v := range m.Versions {
		versions[k] = v
	}
	return &domain.Project{
		ID:        m.ID,
		Filename:  m.Filename,
		State:     task.State(m.State),
		Versions:  versions,
		Progress:  task.Progress{Done: m.ProgressDone, Total: m.ProgressTotal},
		TaskID:    m.TaskID,
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func ProjectToModel(p *domain.Project) *ProjectModel {
	return &ProjectModel{
		ID:            p.ID,
		Filename:      p.Filename,
		State:         string(p.State),
		Versions:      database.StringMap(p.Versions),
		ProgressDone:  p.Progress.Done,
		ProgressTotal: p.Progress.Total,
		TaskID:        p.TaskID,
		Error:         p.Error,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// projectDocument is the MongoDB document for a project.
type projectDocument struct {
	ID        string            `bson:"_id"`
	Filename  string            `bson:"filename"`
	State     string            `bson:"state"`
	Versions  map[string]string `bson:"versions"`
	Progress  progressDocument  `bson:"progress"`
	TaskID    string            `bson:"task_id,omitempty"`
	Error     string            `bson:"error,omitempty"`
	CreatedAt time.Time         `bson:"created_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

type progressDocument struct {
	Done  int `bson:"done"`
	Total int `bson:"total"`
}

func documentToProject(d *projectDocument) *domain.Project {
	versions := d.Versions
	if versions == nil {
		versions = map[string]string{}
	}
	return &domain.Project{
		ID:        d.ID,
		Filename:  d.Filename,
		State:     task.State(d.State),
		Versions:  versions,
		Progress:  task.Progress{Done: d.Progress.Done, Total: d.Progress.Total},
		TaskID:    d.TaskID,
		Error:     d.Error,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func projectToDocument(p *domain.Project) *projectDocument {
	versions := p.Versions
	if versions == nil {
		versions = map[string]string{}
	}
	return &projectDocument{
		ID:        p.ID,
		Filename:  p.Filename,
		State:     string(p.State),
		Versions:  versions,
		Progress:  progressDocument{Done: p.Progress.Done, Total: p.Progress.Total},
		TaskID:    p.TaskID,
		Error:     p.Error,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
