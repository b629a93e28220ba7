package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// FlexString holds a scalar that producers send either as a JSON string or
// as a JSON number (worker ids, progress percent, start time).
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flex string: unsupported value %s", string(b))
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// Float parses the value as a number. ok is false for empty or non-numeric values.
func (f FlexString) Float() (v float64, ok bool) {
	if f == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(f), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

type Progress struct {
	Percent FlexString `json:"percent"`
}

type RunnerInfo struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Success bool   `json:"success,omitempty"`
}

const RunnerStatusInProgress = "in_progress"

// RunnerList decodes runners_info from either a JSON array or an object keyed
// by runner id. Object entries are ordered by key.
type RunnerList []RunnerInfo

func (r *RunnerList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*r = nil
		return nil
	}
	switch b[0] {
	case '[':
		var list []RunnerInfo
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*r = list
		return nil
	case '{':
		var byID map[string]RunnerInfo
		if err := json.Unmarshal(b, &byID); err != nil {
			return err
		}
		keys := make([]string, 0, len(byID))
		for k := range byID {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		list := make([]RunnerInfo, 0, len(keys))
		for _, k := range keys {
			list = append(list, byID[k])
		}
		*r = list
		return nil
	default:
		return fmt.Errorf("runners_info: unsupported value %s", string(b))
	}
}

// WorkerStatus is one record of a workers_info snapshot.
type WorkerStatus struct {
	ID            FlexString `json:"id"`
	Name          string     `json:"name"`
	Idle          bool       `json:"idle"`
	Paused        bool       `json:"paused,omitempty"`
	StartTime     FlexString `json:"start_time,omitempty"`
	CurrentFile   string     `json:"current_file"`
	Progress      *Progress  `json:"progress,omitempty"`
	FFmpegLogTail []string   `json:"ffmpeg_log_tail"`
	RunnersInfo   RunnerList `json:"runners_info"`
}

// WorkerReport is what a worker process posts to update its own status.
type WorkerReport struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Idle        bool         `json:"idle"`
	Paused      bool         `json:"paused,omitempty"`
	CurrentFile string       `json:"current_file,omitempty"`
	Percent     *float64     `json:"percent,omitempty"`
	StartTime   int64        `json:"start_time,omitempty"`
	LogLines    []string     `json:"log_lines,omitempty"`
	Runners     []RunnerInfo `json:"runners_info,omitempty"`
	// Pending is the worker's full queue, oldest first. Each report replaces
	// the previous one.
	Pending []string `json:"pending,omitempty"`
}

const PendingStatus = "pending"

// PendingTask is one queued file in a pending_tasks message.
type PendingTask struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`
	WorkerID string `json:"worker_id"`
}
