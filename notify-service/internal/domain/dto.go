package domain

import (
	"time"

	"github.com/weiawesome/picpipe/pkg/task"
)

// CreateProjectRequest is the body of POST /images.
type CreateProjectRequest struct {
	Filename string `json:"filename" binding:"required"`
}

// CreateProjectResponse tells the client where to PUT the original.
type CreateProjectResponse struct {
	Filename   string `json:"filename"`
	ProjectID  string `json:"project_id"`
	UploadLink string `json:"upload_link"`
}

// ProjectResponse is a project as served over REST; versions hold download URLs.
type ProjectResponse struct {
	ProjectID string            `json:"project_id"`
	Filename  string            `json:"filename"`
	State     task.State        `json:"state"`
	Versions  map[string]string `json:"versions"`
	Progress  *task.Progress    `json:"progress,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type ProjectListResponse struct {
	Projects []ProjectResponse `json:"projects"`
	Skip     int               `json:"skip"`
	Limit    int               `json:"limit"`
}
