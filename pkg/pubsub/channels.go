package pubsub

import (
	"fmt"
	"strings"
)

// Every server process listens on PatternProjectEvents and publishes on
// ProjectChannel(id).
const (
	channelProjectEvents = "events:%s"
	channelPrefix        = "events:"
	PatternProjectEvents = "events:*"
)

// Event types carried on project channels.
const (
	EventProjectUpdate = "project_update"
	EventTaskFailure   = "task_failure"
)

// ProjectChannel returns the broadcast channel for a project.
func ProjectChannel(projectID string) string {
	return fmt.Sprintf(channelProjectEvents, projectID)
}

// ProjectFromChannel extracts the project id from a project channel name.
func ProjectFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(channel, channelPrefix)
	if id == "" || id == "*" {
		return "", false
	}
	return id, true
}
