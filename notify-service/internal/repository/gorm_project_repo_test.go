package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/pkg/database"
	"github.com/weiawesome/picpipe/pkg/task"
)

const projectID = "11111111-1111-1111-1111-111111111111"

func newTestRepo(t *testing.T) *GormProjectRepository {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     filepath.Join(t.TempDir(), "projects.db"),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)

	repo, err := NewGormProjectRepository(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })
	return repo
}

func TestGormAddAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, domain.NewProject(projectID, "cat.jpg")))

	p, err := repo.Get(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg", p.Filename)
	assert.Equal(t, task.StateExpectingOriginal, p.State)
	assert.Empty(t, p.Versions)

	assert.ErrorIs(t, repo.Add(ctx, domain.NewProject(projectID, "dog.jpg")), ErrProjectExists)

	_, err = repo.Get(ctx, "22222222-2222-2222-2222-222222222222")
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestGormUpdateMergesVersions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, domain.NewProject(projectID, "cat.jpg")))

	_, err := repo.Update(ctx, projectID, domain.ProjectUpdate{
		State:    domain.StatePtr(task.StateGotOriginal),
		Versions: map[string]string{"original": "p/cat_original.jpg"},
	})
	require.NoError(t, err)

	progress := domain.ProjectUpdate{
		State:    domain.StatePtr(task.StateProgress),
		Versions: map[string]string{"thumb": "p/cat_thumb.jpg"},
		Progress: &task.Progress{Done: 1, Total: 4},
	}
	first, err := repo.Update(ctx, projectID, progress)
	require.NoError(t, err)
	second, err := repo.Update(ctx, projectID, progress)
	require.NoError(t, err)

	want := map[string]string{"original": "p/cat_original.jpg", "thumb": "p/cat_thumb.jpg"}
	assert.Equal(t, want, first.Versions)
	assert.Equal(t, want, second.Versions)
	assert.Equal(t, task.StateProgress, second.State)
	assert.Equal(t, task.Progress{Done: 1, Total: 4}, second.Progress)

	stored, err := repo.Get(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Versions)

	_, err = repo.Update(ctx, "22222222-2222-2222-2222-222222222222", progress)
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestGormConcurrentUpdatesKeepEveryVersion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, domain.NewProject(projectID, "cat.jpg")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Update(ctx, projectID, domain.ProjectUpdate{
				Versions: map[string]string{fmt.Sprintf("v%d", i): fmt.Sprintf("key-%d", i)},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := repo.Get(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, p.Versions, 8)
}

func TestGormFindByTaskID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Add(ctx, domain.NewProject(projectID, "cat.jpg")))

	_, err := repo.Update(ctx, projectID, domain.ProjectUpdate{
		State:  domain.StatePtr(task.StateStarted),
		TaskID: domain.StringPtr("task-1"),
	})
	require.NoError(t, err)

	p, err := repo.FindByTaskID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, projectID, p.ID)

	_, err = repo.FindByTaskID(ctx, "task-2")
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestGormList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ids := []string{
		"11111111-1111-1111-1111-111111111111",
		"22222222-2222-2222-2222-222222222222",
		"33333333-3333-3333-3333-333333333333",
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range ids {
		p := domain.NewProject(id, "img.jpg")
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Add(ctx, p))
	}
	_, err := repo.Update(ctx, ids[1], domain.ProjectUpdate{State: domain.StatePtr(task.StateSuccess)})
	require.NoError(t, err)

	all, err := repo.List(ctx, domain.ProjectFilter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)

	page, err := repo.List(ctx, domain.ProjectFilter{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	done, err := repo.List(ctx, domain.ProjectFilter{State: task.StateSuccess}, 0, 10)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, ids[1], done[0].ID)
}
