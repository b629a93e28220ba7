package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mediadash/backend/internal/domain"
	"github.com/mediadash/backend/internal/infrastructure/logger"
)

const defaultLogTailLines = 35

type WorkerRegistryConfig struct {
	LogTailLines int
	Logger       *logger.Logger
	Now          func() time.Time
}

type workerEntry struct {
	status   domain.WorkerStatus
	pending  []string
	lastSeen time.Time
}

// WorkerRegistry is the authoritative in-memory set of worker status records
// that the status feed snapshots.
type WorkerRegistry struct {
	workers  map[string]*workerEntry
	mu       sync.RWMutex
	tailSize int
	log      *logger.Logger
	now      func() time.Time
}

func NewWorkerRegistry(cfg WorkerRegistryConfig) *WorkerRegistry {
	tail := cfg.LogTailLines
	if tail <= 0 {
		tail = defaultLogTailLines
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &WorkerRegistry{
		workers:  make(map[string]*workerEntry),
		tailSize: tail,
		log:      log,
		now:      now,
	}
}

// ==================== Status Updates ====================

func (r *WorkerRegistry) Upsert(report domain.WorkerReport) (domain.WorkerStatus, error) {
	id := strings.TrimSpace(report.ID)
	if id == "" {
		return domain.WorkerStatus{}, fmt.Errorf("%w: id is required", ErrWorkerInvalidInput)
	}
	if report.Percent != nil && (*report.Percent < 0 || *report.Percent > 100) {
		return domain.WorkerStatus{}, fmt.Errorf("%w: percent must be within 0-100", ErrWorkerInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, exists := r.workers[id]
	if !exists {
		entry = &workerEntry{status: domain.WorkerStatus{ID: domain.FlexString(id), Idle: true}}
		r.workers[id] = entry
		r.log.Infow("worker_registered", "worker_id", id, "name", report.Name)
	}
	st := &entry.status

	if report.Name != "" {
		st.Name = report.Name
	} else if st.Name == "" {
		st.Name = "Worker-" + id
	}
	st.Paused = report.Paused

	if report.Idle {
		st.Idle = true
		st.CurrentFile = ""
		st.Progress = nil
		st.StartTime = ""
		st.FFmpegLogTail = nil
		st.RunnersInfo = nil
	} else {
		newTask := st.Idle || (report.CurrentFile != "" && report.CurrentFile != st.CurrentFile)
		st.Idle = false
		if newTask {
			st.FFmpegLogTail = nil
			st.StartTime = ""
			st.Progress = nil
			r.log.Infow("worker_task_started", "worker_id", id, "current_file", report.CurrentFile)
		}
		if report.CurrentFile != "" {
			st.CurrentFile = report.CurrentFile
		}
		if report.Percent != nil {
			st.Progress = &domain.Progress{Percent: domain.FlexString(strconv.FormatFloat(*report.Percent, 'f', -1, 64))}
		}
		if report.StartTime > 0 {
			st.StartTime = domain.FlexString(strconv.FormatInt(report.StartTime, 10))
		} else if st.StartTime == "" {
			st.StartTime = domain.FlexString(strconv.FormatInt(now.Unix(), 10))
		}
		st.FFmpegLogTail = appendTail(st.FFmpegLogTail, report.LogLines, r.tailSize)
		if report.Runners != nil {
			st.RunnersInfo = append(domain.RunnerList(nil), report.Runners...)
		}
	}

	entry.pending = entry.pending[:0]
	for _, path := range report.Pending {
		if path = strings.TrimSpace(path); path != "" {
			entry.pending = append(entry.pending, path)
		}
	}
	entry.lastSeen = now
	return copyStatus(*st), nil
}

func (r *WorkerRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[id]; !exists {
		return ErrWorkerNotFound
	}
	delete(r.workers, id)
	r.log.Infow("worker_removed", "worker_id", id)
	return nil
}

func (r *WorkerRegistry) Get(id string) (domain.WorkerStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.workers[id]
	if !exists {
		return domain.WorkerStatus{}, ErrWorkerNotFound
	}
	return copyStatus(entry.status), nil
}

// Snapshot returns copies of every worker record ordered by id.
func (r *WorkerRegistry) Snapshot() []domain.WorkerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WorkerStatus, 0, len(r.workers))
	for _, entry := range r.workers {
		out = append(out, copyStatus(entry.status))
	}
	sort.Slice(out, func(i, j int) bool { return lessID(string(out[i].ID), string(out[j].ID)) })
	return out
}

// PendingTasks flattens every worker's queue, workers ordered by id and each
// queue oldest first. Earlier files in a queue get the higher priority.
// limit <= 0 returns everything.
func (r *WorkerRegistry) PendingTasks(limit int) []domain.PendingTask {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })

	out := []domain.PendingTask{}
	for _, id := range ids {
		queue := r.workers[id].pending
		for i, path := range queue {
			if limit > 0 && len(out) >= limit {
				return out
			}
			out = append(out, domain.PendingTask{
				ID:       id + ":" + strconv.Itoa(i+1),
				Label:    path,
				Priority: len(queue) - i,
				Status:   domain.PendingStatus,
				WorkerID: id,
			})
		}
	}
	return out
}

// ==================== Housekeeping ====================

// PruneStale drops workers that have not reported within olderThan.
func (r *WorkerRegistry) PruneStale(olderThan time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-olderThan)
	var removed []string
	for id, entry := range r.workers {
		if entry.lastSeen.Before(cutoff) {
			delete(r.workers, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	if len(removed) > 0 {
		r.log.Infow("worker_pruned", "worker_ids", removed, "older_than", olderThan)
	}
	return removed
}

// RunJanitor prunes stale workers every interval until ctx is done.
func (r *WorkerRegistry) RunJanitor(ctx context.Context, interval, staleAfter time.Duration) {
	if interval <= 0 || staleAfter <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.PruneStale(staleAfter)
		}
	}
}

func appendTail(tail, lines []string, limit int) []string {
	tail = append(tail, lines...)
	if len(tail) > limit {
		tail = append([]string(nil), tail[len(tail)-limit:]...)
	}
	return tail
}

func copyStatus(s domain.WorkerStatus) domain.WorkerStatus {
	if s.Progress != nil {
		p := *s.Progress
		s.Progress = &p
	}
	s.FFmpegLogTail = append([]string{}, s.FFmpegLogTail...)
	s.RunnersInfo = append(domain.RunnerList{}, s.RunnersInfo...)
	return s
}

// lessID orders numeric ids numerically and everything else lexically.
func lessID(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
