package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/pkg/database"
)

// GormProjectRepository implements ProjectRepository using GORM.
type GormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository migrates the projects table and returns the repository.
func NewGormProjectRepository(db *gorm.DB) (*GormProjectRepository, error) {
	if err := db.AutoMigrate(&ProjectModel{}); err != nil {
		return nil, err
	}
	return &GormProjectRepository{db: db}, nil
}

func (r *GormProjectRepository) Add(ctx context.Context, p *domain.Project) error {
	model := ProjectToModel(p)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return r.handleError(err)
	}
	p.CreatedAt = model.CreatedAt
	p.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *GormProjectRepository) Get(ctx context.Context, id string) (*domain.Project, error) {
	var model ProjectModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Update reads the row under a lock, merges u and writes it back in one
// transaction, so concurrent version merges never lose keys.
func (r *GormProjectRepository) Update(ctx context.Context, id string, u domain.ProjectUpdate) (*domain.Project, error) {
	var updated *domain.Project
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() != "sqlite" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var model ProjectModel
		if err := q.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrProjectNotFound
			}
			return err
		}

		p := model.ToDomain()
		u.Apply(p)
		next := ProjectToModel(p)

		if err := tx.Model(&ProjectModel{}).Where("id = ?", id).Updates(map[string]interface{}{
			"state":          next.State,
			"versions":       next.Versions,
			"progress_done":  next.ProgressDone,
			"progress_total": next.ProgressTotal,
			"task_id":        next.TaskID,
			"error":          next.Error,
			"updated_at":     p.UpdatedAt,
		}).Error; err != nil {
			return err
		}

		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *GormProjectRepository) List(ctx context.Context, filter domain.ProjectFilter, skip, limit int) ([]*domain.Project, error) {
	q := r.db.WithContext(ctx).Model(&ProjectModel{}).Order("created_at DESC").Order("id")
	if filter.State != "" {
		q = q.Where("state = ?", string(filter.State))
	}
	if skip > 0 {
		q = q.Offset(skip)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []ProjectModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	projects := make([]*domain.Project, len(models))
	for i := range models {
		projects[i] = models[i].ToDomain()
	}
	return projects, nil
}

func (r *GormProjectRepository) FindByTaskID(ctx context.Context, taskID string) (*domain.Project, error) {
	var model ProjectModel
	if err := r.db.WithContext(ctx).First(&model, "task_id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormProjectRepository) Close(context.Context) error {
	return database.Close(r.db)
}

// handleError converts driver unique-constraint violations to ErrProjectExists.
func (r *GormProjectRepository) handleError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrProjectExists
	}
	msg := err.Error()
	if strings.Contains(msg, "duplicate key") || // postgres
		strings.Contains(msg, "UNIQUE constraint") || // sqlite
		strings.Contains(msg, "Duplicate entry") { // mysql
		return ErrProjectExists
	}
	return err
}
