package service

import (
	"context"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/notify-service/internal/repository"
	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/task"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// projectServiceImpl implements ProjectService.
type projectServiceImpl struct {
	repo        repository.ProjectRepository
	urls        URLSigner
	downloadTTL time.Duration
	uploadTTL   time.Duration
}

// NewProjectService creates the REST project service.
func NewProjectService(repo repository.ProjectRepository, urls URLSigner, downloadTTL, uploadTTL time.Duration) ProjectService {
	return &projectServiceImpl{
		repo:        repo,
		urls:        urls,
		downloadTTL: downloadTTL,
		uploadTTL:   uploadTTL,
	}
}

// CreateProject stores a project waiting for its original and presigns the
// upload of {project_id}/{stem}_original{ext}.
func (s *projectServiceImpl) CreateProject(ctx context.Context, req *domain.CreateProjectRequest) (*domain.CreateProjectResponse, error) {
	name := path.Base(strings.TrimSpace(req.Filename))
	if name == "." || name == "/" || name == "" || strings.HasPrefix(name, ".") {
		return nil, domain.ErrInvalidFilename
	}

	projectID := uuid.NewString()
	key := task.OriginalKey(projectID, name)

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadURL, err := s.urls.GetUploadURL(ctx, key, contentType, s.uploadTTL)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Add(ctx, domain.NewProject(projectID, name)); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str(log.FieldProjectID, projectID).Str(log.FieldObjectKey, key).Msg("project created")
	return &domain.CreateProjectResponse{Filename: name, ProjectID: projectID, UploadLink: uploadURL}, nil
}

func (s *projectServiceImpl) GetProject(ctx context.Context, projectID string) (*domain.ProjectResponse, error) {
	id, err := uuid.Parse(projectID)
	if err != nil {
		return nil, domain.ErrInvalidProjectID
	}
	p, err := s.repo.Get(ctx, id.String())
	if err != nil {
		return nil, err
	}
	return toResponse(ctx, s.urls, p, s.downloadTTL)
}

func (s *projectServiceImpl) ListProjects(ctx context.Context, filter domain.ProjectFilter, skip, limit int) (*domain.ProjectListResponse, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	projects, err := s.repo.List(ctx, filter, skip, limit)
	if err != nil {
		return nil, err
	}

	resp := &domain.ProjectListResponse{Projects: make([]domain.ProjectResponse, 0, len(projects)), Skip: skip, Limit: limit}
	for _, p := range projects {
		r, err := toResponse(ctx, s.urls, p, s.downloadTTL)
		if err != nil {
			return nil, err
		}
		resp.Projects = append(resp.Projects, *r)
	}
	return resp, nil
}
