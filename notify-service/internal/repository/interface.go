package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
)

var ErrProjectExists = errors.New("project already exists")

// ProjectRepository persists projects. Update merges the given fields
// atomically and returns the resulting project; Get, Update and
// FindByTaskID return domain.ErrProjectNotFound for unknown ids.
type ProjectRepository interface {
	Add(ctx context.Context, p *domain.Project) error
	Get(ctx context.Context, id string) (*domain.Project, error)
	Update(ctx context.Context, id string, u domain.ProjectUpdate) (*domain.Project, error)
	List(ctx context.Context, filter domain.ProjectFilter, skip, limit int) ([]*domain.Project, error)
	FindByTaskID(ctx context.Context, taskID string) (*domain.Project, error)
	Close(ctx context.Context) error
}
