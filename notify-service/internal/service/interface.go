package service

import (
	"context"
	"time"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
)

// ProjectService is the REST-facing project API.
type ProjectService interface {
	CreateProject(ctx context.Context, req *domain.CreateProjectRequest) (*domain.CreateProjectResponse, error)
	GetProject(ctx context.Context, projectID string) (*domain.ProjectResponse, error)
	ListProjects(ctx context.Context, filter domain.ProjectFilter, skip, limit int) (*domain.ProjectListResponse, error)
}

// Subscriptions is the part of the subscription manager the handlers use.
type Subscriptions interface {
	Subscribe(ctx context.Context, connID, projectID string) error
	Unsubscribe(ctx context.Context, connID, projectID string) error
	Publish(ctx context.Context, projectID, eventType string, payload interface{}) error
}

// URLSigner turns object keys into client URLs.
type URLSigner interface {
	GetURL(ctx context.Context, key string, expires time.Duration) (string, error)
	GetUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}
