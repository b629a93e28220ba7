package domain

import (
	"encoding/json"
	"strings"
)

// FeedCommand is a subscription request sent by a dashboard over /dashws.
type FeedCommand string

const (
	CmdStartWorkersInfo        FeedCommand = "start_workers_info"
	CmdStopWorkersInfo         FeedCommand = "stop_workers_info"
	CmdStartCompletedTasksInfo FeedCommand = "start_completed_tasks_info"
	CmdStopCompletedTasksInfo  FeedCommand = "stop_completed_tasks_info"
	CmdStartPendingTasksInfo   FeedCommand = "start_pending_tasks_info"
	CmdStopPendingTasksInfo    FeedCommand = "stop_pending_tasks_info"
)

// MessageType tags the data carried by an Envelope.
type MessageType string

const (
	MessageWorkersInfo    MessageType = "workers_info"
	MessageCompletedTasks MessageType = "completed_tasks"
	MessagePendingTasks   MessageType = "pending_tasks"
)

// Envelope is every frame the status feed pushes to a dashboard.
type Envelope struct {
	Success  bool        `json:"success"`
	ServerID string      `json:"server_id,omitempty"`
	Type     MessageType `json:"type,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

type commandFrame struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ParseFeedCommand accepts either a bare command string or a JSON object
// of the form {"command": "...", "params": {...}}.
func ParseFeedCommand(raw []byte) FeedCommand {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "{") {
		var frame commandFrame
		if err := json.Unmarshal([]byte(text), &frame); err != nil {
			return ""
		}
		return FeedCommand(strings.TrimSpace(frame.Command))
	}
	return FeedCommand(text)
}
