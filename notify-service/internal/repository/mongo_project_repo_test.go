package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/weiawesome/picpipe/notify-service/internal/domain"
	"github.com/weiawesome/picpipe/pkg/task"
)

func TestUpdateFieldsUsesDottedVersionPaths(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	set := updateFields(domain.ProjectUpdate{
		State:    domain.StatePtr(task.StateProgress),
		Versions: map[string]string{"thumb": "a", "big_thumb": "b"},
		Progress: &task.Progress{Done: 2, Total: 4},
	}, now)

	assert.Equal(t, "PROGRESS", set["state"])
	assert.Equal(t, "a", set["versions.thumb"])
	assert.Equal(t, "b", set["versions.big_thumb"])
	assert.Equal(t, progressDocument{Done: 2, Total: 4}, set["progress"])
	assert.Equal(t, now, set["updated_at"])
	assert.NotContains(t, set, "versions")
	assert.NotContains(t, set, "task_id")
	assert.NotContains(t, set, "error")
}

func TestUpdateFieldsEmpty(t *testing.T) {
	set := updateFields(domain.ProjectUpdate{}, time.Now())
	assert.Len(t, set, 1)
}

func TestProjectDocumentRoundTrip(t *testing.T) {
	p := domain.NewProject(projectID, "cat.jpg")
	p.Versions = nil
	p.TaskID = "task-1"

	doc := projectToDocument(p)
	assert.Equal(t, projectID, doc.ID)
	assert.NotNil(t, doc.Versions)

	back := documentToProject(doc)
	assert.Equal(t, p.ID, back.ID)
	assert.Equal(t, p.State, back.State)
	assert.Equal(t, "task-1", back.TaskID)
	assert.Empty(t, back.Versions)
}
