package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/notify-service/internal/service"
	"github.com/weiawesome/picpipe/pkg/log"
	"github.com/weiawesome/picpipe/pkg/metrics"
	"github.com/weiawesome/picpipe/pkg/response"
	"github.com/weiawesome/picpipe/pkg/storage"
	"github.com/weiawesome/picpipe/pkg/task"
)

// Handler serves the project REST API.
type Handler struct {
	projects service.ProjectService
}

func NewHandler(projects service.ProjectService) *Handler {
	return &Handler{projects: projects}
}

// RegisterRoutes registers the REST routes plus /health and /metrics.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/images", h.CreateProject)
	r.GET("/projects", h.ListProjects)
	r.GET("/projects/:project_id", h.GetProject)
}

// CreateProject handles POST /images.
func (h *Handler) CreateProject(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid create project request")
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.projects.CreateProject(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidFilename):
			response.BadRequest(c, err.Error())
		case errors.Is(err, storage.ErrUploadUnsupported):
			response.NotImplemented(c, "object store cannot presign uploads")
		default:
			l.Error().Err(err).Msg("create project failed")
			response.InternalError(c, "failed to create project")
		}
		return
	}

	response.Created(c, resp)
}

// GetProject handles GET /projects/:project_id.
func (h *Handler) GetProject(c *gin.Context) {
	ctx := c.Request.Context()

	resp, err := h.projects.GetProject(ctx, c.Param("project_id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidProjectID):
			response.BadRequest(c, err.Error())
		case errors.Is(err, domain.ErrProjectNotFound):
			response.NotFound(c, err.Error())
		default:
			l := log.Ctx(ctx)
			l.Error().Err(err).Msg("get project failed")
			response.InternalError(c, "failed to get project")
		}
		return
	}

	response.Success(c, resp)
}

// ListProjects handles GET /projects?skip=&limit=&state=.
func (h *Handler) ListProjects(c *gin.Context) {
	ctx := c.Request.Context()

	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		response.BadRequest(c, "skip must be an integer")
		return
	}
	limit, err := queryInt(c, "limit", service.DefaultListLimit)
	if err != nil {
		response.BadRequest(c, "limit must be an integer")
		return
	}

	filter := domain.ProjectFilter{State: task.State(c.Query("state"))}
	resp, err := h.projects.ListProjects(ctx, filter, skip, limit)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("list projects failed")
		response.InternalError(c, "failed to list projects")
		return
	}

	response.Success(c, resp)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
