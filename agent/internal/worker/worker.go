// Package worker runs transcode jobs from an inbox directory and keeps the
// dashboard server informed about them.
package worker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mediadash/agent/internal/communicator"
	"github.com/mediadash/agent/internal/executor"
	"github.com/mediadash/agent/internal/stats"
	"go.uber.org/zap"
)

const runnerName = "Transcode"

type Reporter interface {
	ReportStatus(ctx context.Context, report communicator.StatusReport) error
	RecordCompletion(ctx context.Context, done communicator.Completion) error
}

type Runner interface {
	Execute(ctx context.Context, job executor.Job, onLine func(string)) (*executor.CommandResult, error)
}

type LoadSource interface {
	Collect(ctx context.Context) (*stats.HostLoad, error)
}

type Config struct {
	ID             string
	Name           string
	InboxDir       string
	OutputDir      string
	Extensions     []string
	ReportInterval time.Duration
	ScanInterval   time.Duration
	MaxCPUPercent  float64
	Reporter       Reporter
	Runner         Runner
	Load           LoadSource
	Logger         *zap.Logger
	Now            func() time.Time
}

// Worker owns the status it reports. Log lines collected between two
// reports are sent once the server has accepted them; the server keeps the
// tail.
type Worker struct {
	cfg Config
	log *zap.Logger
	now func() time.Time

	mu       sync.Mutex
	done     map[string]bool
	job      uint64
	current  string
	started  time.Time
	percent  *float64
	logLines []string
	status   string
}

// reportMark records which log lines a report carried.
type reportMark struct {
	job   uint64
	lines int
}

func New(cfg Config) *Worker {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = time.Second
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 10 * time.Second
	}
	return &Worker{cfg: cfg, log: log, now: now, done: make(map[string]bool)}
}

// Run reports status and processes inbox files until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reportLoop(ctx)
	}()

	ticker := time.NewTicker(w.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		w.drainInbox(ctx)
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReportInterval)
	defer ticker.Stop()
	for {
		w.report(ctx)
		select {
		case <-ctx.Done():
			// Best effort goodbye so the dashboard does not show a stale job.
			final, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			w.cfg.Reporter.ReportStatus(final, communicator.StatusReport{ID: w.cfg.ID, Name: w.cfg.Name, Idle: true})
			cancel()
			return
		case <-ticker.C:
		}
	}
}

// report posts one status update and drops the log lines it carried once
// the server accepted it. Unsent lines go out with the next report.
func (w *Worker) report(ctx context.Context) {
	r, mark := w.snapshot()
	if err := w.cfg.Reporter.ReportStatus(ctx, r); err != nil {
		if ctx.Err() == nil {
			w.log.Warn("worker_report_failed", zap.Int("log_lines_kept", mark.lines), zap.Error(err))
		}
		return
	}
	w.ack(mark)
}

// Snapshot builds the next status report without consuming anything.
func (w *Worker) Snapshot() communicator.StatusReport {
	r, _ := w.snapshot()
	return r
}

func (w *Worker) snapshot() (communicator.StatusReport, reportMark) {
	queue := w.Pending()

	w.mu.Lock()
	defer w.mu.Unlock()

	r := communicator.StatusReport{ID: w.cfg.ID, Name: w.cfg.Name, Idle: w.current == "", Pending: queue}
	mark := reportMark{job: w.job}
	if r.Idle {
		return r, mark
	}
	r.CurrentFile = filepath.Base(w.current)
	r.StartTime = w.started.Unix()
	if w.percent != nil {
		p := *w.percent
		r.Percent = &p
	}
	r.LogLines = append([]string(nil), w.logLines...)
	mark.lines = len(r.LogLines)
	r.Runners = []communicator.RunnerInfo{{Name: runnerName, Status: w.status}}
	return r, mark
}

func (w *Worker) ack(mark reportMark) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A new job has reset the buffer since the snapshot.
	if mark.job != w.job || mark.lines > len(w.logLines) {
		return
	}
	w.logLines = append([]string(nil), w.logLines[mark.lines:]...)
}

// Pending lists inbox files not yet handled in this run, oldest name first.
func (w *Worker) Pending() []string {
	entries, err := os.ReadDir(w.cfg.InboxDir)
	if err != nil {
		w.log.Warn("worker_inbox_read_failed", zap.String("dir", w.cfg.InboxDir), zap.Error(err))
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.InboxDir, e.Name())
		if w.done[path] || !w.matches(e.Name()) {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

func (w *Worker) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range w.cfg.Extensions {
		if strings.ToLower(want) == ext {
			return true
		}
	}
	return len(w.cfg.Extensions) == 0
}

func (w *Worker) drainInbox(ctx context.Context) {
	for _, path := range w.Pending() {
		if ctx.Err() != nil {
			return
		}
		if w.overloaded(ctx) {
			return
		}
		w.process(ctx, path)
	}
}

func (w *Worker) overloaded(ctx context.Context) bool {
	if w.cfg.MaxCPUPercent <= 0 || w.cfg.Load == nil {
		return false
	}
	load, err := w.cfg.Load.Collect(ctx)
	if err != nil {
		w.log.Debug("worker_load_unavailable", zap.Error(err))
		return false
	}
	if load.CPUUsage > w.cfg.MaxCPUPercent {
		w.log.Info("worker_deferring_jobs", zap.Float64("cpu", load.CPUUsage), zap.Float64("max_cpu", w.cfg.MaxCPUPercent))
		return true
	}
	return false
}

func (w *Worker) process(ctx context.Context, path string) {
	job := executor.Job{Input: path, Output: filepath.Join(w.cfg.OutputDir, filepath.Base(path))}

	start := w.now()
	w.mu.Lock()
	w.done[path] = true
	w.job++
	w.current = path
	w.started = start
	w.percent = nil
	w.logLines = nil
	w.status = "in_progress"
	w.mu.Unlock()
	w.log.Info("worker_job_started", zap.String("input", job.Input), zap.String("output", job.Output))

	var tracker executor.ProgressTracker
	result, err := w.cfg.Runner.Execute(ctx, job, func(line string) {
		pct, ok := tracker.Observe(line)
		w.mu.Lock()
		w.logLines = append(w.logLines, line)
		if ok {
			w.percent = &pct
		}
		w.mu.Unlock()
	})

	success := err == nil && result != nil && result.Success
	finish := w.now()
	w.mu.Lock()
	w.current = ""
	w.percent = nil
	w.logLines = nil
	w.mu.Unlock()

	if err != nil {
		w.log.Warn("worker_job_failed", zap.String("input", path), zap.Error(err))
	} else {
		w.log.Info("worker_job_finished", zap.String("input", path), zap.Duration("took", finish.Sub(start)))
	}

	done := communicator.Completion{
		Label:      filepath.Base(path),
		AbsPath:    path,
		Success:    success,
		WorkerID:   w.cfg.ID,
		StartTime:  float64(start.UnixNano()) / 1e9,
		FinishTime: float64(finish.UnixNano()) / 1e9,
	}
	recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.cfg.Reporter.RecordCompletion(recordCtx, done); err != nil {
		w.log.Warn("worker_record_failed", zap.String("input", path), zap.Error(err))
	}
}
