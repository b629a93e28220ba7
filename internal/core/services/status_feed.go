package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mediadash/backend/internal/core/ports"
	"github.com/mediadash/backend/internal/domain"
	"github.com/mediadash/backend/internal/infrastructure/logger"
)

const (
	defaultWorkersInterval        = 200 * time.Millisecond
	defaultCompletedTasksInterval = 3 * time.Second
	defaultCompletedTasksLimit    = 10
	defaultPendingTasksInterval   = 3 * time.Second
	defaultPendingTasksLimit      = 10
)

type StatusFeedConfig struct {
	Workers                ports.WorkerRegistry
	History                ports.HistoryService
	WorkersInterval        time.Duration
	CompletedTasksInterval time.Duration
	CompletedTasksLimit    int
	PendingTasksInterval   time.Duration
	PendingTasksLimit      int
	Logger                 *logger.Logger
}

// StatusFeed produces the envelopes pushed over /dashws. Its server id is
// fixed for the life of the process so dashboards can detect a restart.
type StatusFeed struct {
	serverID       string
	workers        ports.WorkerRegistry
	history        ports.HistoryService
	workersEvery   time.Duration
	completedEvery time.Duration
	completedLimit int
	pendingEvery   time.Duration
	pendingLimit   int
	log            *logger.Logger
}

func NewStatusFeed(cfg StatusFeedConfig) *StatusFeed {
	f := &StatusFeed{
		serverID:       uuid.New().String(),
		workers:        cfg.Workers,
		history:        cfg.History,
		workersEvery:   cfg.WorkersInterval,
		completedEvery: cfg.CompletedTasksInterval,
		completedLimit: cfg.CompletedTasksLimit,
		pendingEvery:   cfg.PendingTasksInterval,
		pendingLimit:   cfg.PendingTasksLimit,
		log:            cfg.Logger,
	}
	if f.workersEvery <= 0 {
		f.workersEvery = defaultWorkersInterval
	}
	if f.completedEvery <= 0 {
		f.completedEvery = defaultCompletedTasksInterval
	}
	if f.completedLimit <= 0 {
		f.completedLimit = defaultCompletedTasksLimit
	}
	if f.pendingEvery <= 0 {
		f.pendingEvery = defaultPendingTasksInterval
	}
	if f.pendingLimit <= 0 {
		f.pendingLimit = defaultPendingTasksLimit
	}
	if f.log == nil {
		f.log = logger.NewNop()
	}
	return f
}

func (f *StatusFeed) ServerID() string {
	return f.serverID
}

func (f *StatusFeed) WorkersEnvelope(ctx context.Context) (domain.Envelope, error) {
	return domain.Envelope{
		Success:  true,
		ServerID: f.serverID,
		Type:     domain.MessageWorkersInfo,
		Data:     f.workers.Snapshot(),
	}, nil
}

func (f *StatusFeed) CompletedTasksEnvelope(ctx context.Context) (domain.Envelope, error) {
	results, err := f.history.Recent(ctx, f.completedLimit)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{
		Success:  true,
		ServerID: f.serverID,
		Type:     domain.MessageCompletedTasks,
		Data: struct {
			Results []domain.CompletedTaskSummary `json:"results"`
		}{Results: results},
	}, nil
}

func (f *StatusFeed) PendingTasksEnvelope(ctx context.Context) (domain.Envelope, error) {
	return domain.Envelope{
		Success:  true,
		ServerID: f.serverID,
		Type:     domain.MessagePendingTasks,
		Data: struct {
			Results []domain.PendingTask `json:"results"`
		}{Results: f.workers.PendingTasks(f.pendingLimit)},
	}, nil
}

// SendFunc writes one envelope to a dashboard connection.
type SendFunc func(domain.Envelope) error

type producer func(ctx context.Context) (domain.Envelope, error)

// FeedSession is one dashboard connection and its active subscriptions.
type FeedSession struct {
	feed    *StatusFeed
	send    SendFunc
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	streams map[domain.MessageType]context.CancelFunc
	wg      sync.WaitGroup
}

func (f *StatusFeed) NewSession(ctx context.Context, send SendFunc) *FeedSession {
	sctx, cancel := context.WithCancel(ctx)
	s := &FeedSession{
		feed:    f,
		send:    send,
		id:      uuid.New().String(),
		ctx:     sctx,
		cancel:  cancel,
		streams: make(map[domain.MessageType]context.CancelFunc),
	}
	f.log.Infow("feed_session_opened", "session_id", s.id)
	return s
}

// Done is closed once the session has been closed or its connection failed.
func (s *FeedSession) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Handle applies one inbound command frame.
func (s *FeedSession) Handle(raw []byte) error {
	if s.ctx.Err() != nil {
		return ErrFeedSessionClosed
	}
	cmd := domain.ParseFeedCommand(raw)
	switch cmd {
	case domain.CmdStartWorkersInfo:
		s.start(domain.MessageWorkersInfo, s.feed.workersEvery, s.feed.WorkersEnvelope)
	case domain.CmdStopWorkersInfo:
		s.stop(domain.MessageWorkersInfo)
	case domain.CmdStartCompletedTasksInfo:
		s.start(domain.MessageCompletedTasks, s.feed.completedEvery, s.feed.CompletedTasksEnvelope)
	case domain.CmdStopCompletedTasksInfo:
		s.stop(domain.MessageCompletedTasks)
	case domain.CmdStartPendingTasksInfo:
		s.start(domain.MessagePendingTasks, s.feed.pendingEvery, s.feed.PendingTasksEnvelope)
	case domain.CmdStopPendingTasksInfo:
		s.stop(domain.MessagePendingTasks)
	default:
		s.feed.log.Warnw("feed_unknown_command", "session_id", s.id, "command", string(cmd))
		if err := s.send(domain.Envelope{Success: false}); err != nil {
			return err
		}
		return ErrFeedUnknownCommand
	}
	return nil
}

func (s *FeedSession) start(kind domain.MessageType, every time.Duration, produce producer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.streams[kind]; running {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.streams[kind] = cancel
	s.wg.Add(1)
	go s.stream(ctx, kind, every, produce)
	s.feed.log.Infow("feed_stream_started", "session_id", s.id, "type", string(kind), "interval", every)
}

func (s *FeedSession) stop(kind domain.MessageType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, running := s.streams[kind]; running {
		cancel()
		delete(s.streams, kind)
		s.feed.log.Infow("feed_stream_stopped", "session_id", s.id, "type", string(kind))
	}
}

func (s *FeedSession) stream(ctx context.Context, kind domain.MessageType, every time.Duration, produce producer) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		env, err := produce(ctx)
		if err != nil {
			s.feed.log.Warnw("feed_produce_failed", "session_id", s.id, "type", string(kind), "error", err)
		} else if err := s.send(env); err != nil {
			s.feed.log.Warnw("feed_send_failed", "session_id", s.id, "type", string(kind), "error", err)
			s.cancel()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close stops every stream and waits for them to exit.
func (s *FeedSession) Close() {
	s.cancel()
	s.wg.Wait()
	s.mu.Lock()
	s.streams = make(map[domain.MessageType]context.CancelFunc)
	s.mu.Unlock()
	s.feed.log.Infow("feed_session_closed", "session_id", s.id)
}
