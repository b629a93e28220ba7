package livestatus

import (
	"math"
	"strconv"
	"time"

	"github.com/mediadash/backend/internal/domain"
)

// Renderer is the presentation layer the client draws into. Calls are made
// from the client's event loop, one at a time.
type Renderer interface {
	UpsertWorkerWidget(id string, view WorkerView)
	RemoveWorkerWidget(id string)
	ReplaceCompletedTasks(tasks []domain.CompletedTaskSummary)
	Notify(message string)
	Reload()
}

const (
	IdleIndicator      = "IDLE"
	IdleSubtitle       = "Waiting for job..."
	IdleStateText      = "Waiting for another task..."
	BusyStateText      = "Processing task..."
	NoRunner           = "None"
	UnreachableMessage = "Could not update workers. Please check that the server is still running."
)

// WorkerView is everything a worker widget shows.
type WorkerView struct {
	ID            string
	Name          string
	Idle          bool
	Percent       int
	Indicator     string
	Subtitle      string
	LogTail       []string
	CurrentRunner string
	State         string
	StartedAt     time.Time
}

// NewWorkerView derives the widget content for one worker record. An idle
// worker always shows a full IDLE gauge whatever its progress field says.
func NewWorkerView(w domain.WorkerStatus) WorkerView {
	v := WorkerView{
		ID:            w.ID.String(),
		Name:          w.Name,
		Idle:          w.Idle,
		CurrentRunner: NoRunner,
	}
	for _, r := range w.RunnersInfo {
		if r.Status == domain.RunnerStatusInProgress {
			v.CurrentRunner = r.Name
		}
	}

	if w.Idle {
		v.Percent = 100
		v.Indicator = IdleIndicator
		v.Subtitle = IdleSubtitle
		v.State = IdleStateText
		return v
	}

	v.Subtitle = w.CurrentFile
	v.State = BusyStateText
	v.Indicator = IdleIndicator
	if w.Progress != nil {
		if pct, ok := w.Progress.Percent.Float(); ok {
			v.Percent = clampPercent(pct)
			v.Indicator = strconv.Itoa(v.Percent) + "%"
		}
	}
	if len(w.FFmpegLogTail) > 0 {
		v.LogTail = append([]string(nil), w.FFmpegLogTail...)
	}
	if ts, ok := w.StartTime.Float(); ok && ts > 0 {
		sec, frac := math.Modf(ts)
		v.StartedAt = time.Unix(int64(sec), int64(frac*1e9))
	}
	return v
}

func clampPercent(pct float64) int {
	switch {
	case math.IsNaN(pct) || pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return int(pct)
	}
}

// FormatElapsed renders a processing duration the way worker cards show it.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return "Days: " + strconv.FormatInt(days, 10) +
		" Hours: " + strconv.FormatInt(hours, 10) +
		" Minutes: " + strconv.FormatInt(minutes, 10) +
		" Seconds: " + strconv.FormatInt(seconds, 10)
}
