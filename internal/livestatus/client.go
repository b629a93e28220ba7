package livestatus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/mediadash/backend/internal/domain"
	"github.com/mediadash/backend/internal/infrastructure/logger"
)

const DefaultReconnectDelay = 5 * time.Second

var ErrAlreadyRunning = errors.New("livestatus: client already running")

type Config struct {
	Origin         string
	ReconnectDelay time.Duration
	Renderer       Renderer
	Dialer         Dialer
	Clock          Clock
	Logger         *logger.Logger
}

type eventKind int

const (
	evConnect eventKind = iota
	evOpen
	evMessage
	evError
	evClose
	evReconnect
)

// event carries a socket or timer callback into the event loop. gen is the
// connection generation for socket events and the timer sequence for
// evReconnect.
type event struct {
	kind    eventKind
	gen     uint64
	conn    Conn
	msgType int
	data    []byte
	err     error
}

type inboundEnvelope struct {
	Success  bool            `json:"success"`
	ServerID json.RawMessage `json:"server_id"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

// Client keeps one live connection to the status feed and mirrors the
// pushed worker and completed-task state into a Renderer.
type Client struct {
	url            string
	reconnectDelay time.Duration
	renderer       Renderer
	dialer         Dialer
	clock          Clock
	log            *logger.Logger

	events  chan event
	done    chan struct{}
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	// Dialed sockets not yet adopted by the loop. dispose closes them.
	dialMu   sync.Mutex
	disposed bool
	inflight map[Conn]struct{}

	// Owned by the event loop.
	state     State
	gen       uint64
	conn      Conn
	timer     Timer
	timerSeq  uint64
	epoch     string
	epochSeen bool
	widgets   map[string]struct{}
}

func New(cfg Config) (*Client, error) {
	url, err := EndpointFromOrigin(cfg.Origin)
	if err != nil {
		return nil, err
	}
	if cfg.Renderer == nil {
		return nil, errors.New("livestatus: renderer is required")
	}

	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = NewWebsocketDialer()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:            url,
		reconnectDelay: delay,
		renderer:       cfg.Renderer,
		dialer:         dialer,
		clock:          clock,
		log:            log,
		events:         make(chan event, 64),
		done:           make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		widgets:        make(map[string]struct{}),
		inflight:       make(map[Conn]struct{}),
	}, nil
}

// URL is the feed endpoint the client dials.
func (c *Client) URL() string {
	return c.url
}

// Connect asks the event loop to open a connection. It is a no-op while a
// connection is already open or being opened.
func (c *Client) Connect() {
	c.post(event{kind: evConnect})
}

// Run connects and processes events until ctx is cancelled, then disposes
// the connection and any pending reconnect.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	c.connect()
	for {
		select {
		case <-ctx.Done():
			c.dispose()
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Client) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) handle(ev event) {
	switch ev.kind {
	case evConnect:
		c.connect()
	case evOpen:
		c.onOpen(ev.gen, ev.conn)
	case evMessage:
		c.onMessage(ev.gen, ev.msgType, ev.data)
	case evError:
		c.onError(ev.gen, ev.err)
	case evClose:
		c.onClose(ev.gen, ev.err)
	case evReconnect:
		if c.timer == nil || ev.gen != c.timerSeq {
			return
		}
		c.timer = nil
		c.log.Infow("livestatus_reconnect_attempt", "url", c.url)
		c.connect()
	}
}

func (c *Client) connect() {
	if c.state != StateDisconnected {
		c.log.Debugw("livestatus_connect_skipped", "state", c.state.String())
		return
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.log.Infow("livestatus_connecting", "url", c.url, "generation", gen)
	go c.dial(gen)
}

func (c *Client) dial(gen uint64) {
	conn, err := c.dialer.Dial(c.ctx, c.url)
	if err != nil {
		c.post(event{kind: evError, gen: gen, err: err})
		c.post(event{kind: evClose, gen: gen, err: err})
		return
	}
	c.dialMu.Lock()
	if c.disposed {
		c.dialMu.Unlock()
		conn.Close()
		return
	}
	c.inflight[conn] = struct{}{}
	c.dialMu.Unlock()

	c.post(event{kind: evOpen, gen: gen, conn: conn})
}

func (c *Client) read(gen uint64, conn Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !isNormalClose(err) {
				c.post(event{kind: evError, gen: gen, err: err})
			}
			c.post(event{kind: evClose, gen: gen, err: err})
			return
		}
		c.post(event{kind: evMessage, gen: gen, msgType: msgType, data: data})
	}
}

func (c *Client) onOpen(gen uint64, conn Conn) {
	c.dialMu.Lock()
	delete(c.inflight, conn)
	c.dialMu.Unlock()

	if gen != c.gen || c.state != StateConnecting {
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.cancelReconnect()
	c.clearWorkers()
	c.log.Infow("livestatus_open", "url", c.url, "generation", gen)

	for _, cmd := range []domain.FeedCommand{domain.CmdStartWorkersInfo, domain.CmdStartCompletedTasksInfo} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
			c.log.Warnw("livestatus_subscribe_failed", "command", string(cmd), "error", err)
		}
	}
	go c.read(gen, conn)
}

func (c *Client) onMessage(gen uint64, msgType int, data []byte) {
	if gen != c.gen || c.state != StateOpen {
		return
	}
	if msgType != websocket.TextMessage {
		c.log.Errorw("livestatus_message_not_text", "message_type", msgType, "bytes", len(data))
		return
	}

	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Errorw("livestatus_message_not_json", "error", err, "bytes", len(data))
		return
	}
	if !env.Success {
		c.log.Errorw("livestatus_message_unsuccessful", "payload", preview(data))
		return
	}

	epoch := epochOf(env.ServerID)
	if !c.epochSeen {
		c.epoch = epoch
		c.epochSeen = true
	} else if epoch != c.epoch {
		c.log.Warnw("livestatus_server_restarted", "previous_server_id", c.epoch, "server_id", epoch)
		c.reload()
		return
	}

	switch domain.MessageType(env.Type) {
	case domain.MessageWorkersInfo:
		var snapshot []domain.WorkerStatus
		if err := json.Unmarshal(env.Data, &snapshot); err != nil {
			c.log.Errorw("livestatus_workers_info_invalid", "error", err)
			return
		}
		c.reconcileWorkers(snapshot)
	case domain.MessageCompletedTasks:
		tasks, err := decodeCompletedTasks(env.Data)
		if err != nil {
			c.log.Errorw("livestatus_completed_tasks_invalid", "error", err)
			return
		}
		c.renderer.ReplaceCompletedTasks(tasks)
	default:
		c.log.Errorw("livestatus_unknown_message_type", "type", env.Type)
	}
}

func (c *Client) onError(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	c.log.Errorw("livestatus_transport_error", "url", c.url, "state", c.state.String(), "error", err)
	c.renderer.Notify(UnreachableMessage)
}

func (c *Client) onClose(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	// Retire the socket so its remaining callbacks are ignored.
	c.gen++
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.log.Infow("livestatus_closed", "url", c.url, "reason", errString(err))
	c.clearWorkers()
	c.scheduleReconnect()
}

// reconcileWorkers makes the rendered widget set equal to the snapshot's ids.
func (c *Client) reconcileWorkers(snapshot []domain.WorkerStatus) {
	present := make(map[string]struct{}, len(snapshot))
	for _, w := range snapshot {
		id := w.ID.String()
		present[id] = struct{}{}
		if _, ok := c.widgets[id]; !ok {
			c.log.Debugw("livestatus_worker_added", "worker_id", id)
		}
		c.renderer.UpsertWorkerWidget(id, NewWorkerView(w))
		c.widgets[id] = struct{}{}
	}
	for _, id := range c.widgetIDs() {
		if _, ok := present[id]; ok {
			continue
		}
		c.log.Debugw("livestatus_worker_removed", "worker_id", id)
		c.renderer.RemoveWorkerWidget(id)
		delete(c.widgets, id)
	}
}

func (c *Client) clearWorkers() {
	for _, id := range c.widgetIDs() {
		c.renderer.RemoveWorkerWidget(id)
	}
	c.widgets = make(map[string]struct{})
}

func (c *Client) widgetIDs() []string {
	ids := make([]string, 0, len(c.widgets))
	for id := range c.widgets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Client) scheduleReconnect() {
	c.cancelReconnect()
	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.clock.AfterFunc(c.reconnectDelay, func() {
		c.post(event{kind: evReconnect, gen: seq})
	})
	c.log.Infow("livestatus_reconnect_scheduled", "delay", c.reconnectDelay)
}

func (c *Client) cancelReconnect() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// teardown drops the socket and pending timer. Bumping the generation makes
// any late callbacks from the old socket no-ops.
func (c *Client) teardown() {
	c.cancelReconnect()
	c.gen++
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
}

// reload abandons all client state after a server restart and starts over
// with a fresh connection.
func (c *Client) reload() {
	c.renderer.Reload()
	c.teardown()
	c.widgets = make(map[string]struct{})
	c.epoch = ""
	c.epochSeen = false
	c.connect()
}

func (c *Client) dispose() {
	c.state = StateClosing
	c.log.Infow("livestatus_dispose", "url", c.url)
	c.cancel()
	c.teardown()

	c.dialMu.Lock()
	c.disposed = true
	for conn := range c.inflight {
		conn.Close()
	}
	c.inflight = make(map[Conn]struct{})
	c.dialMu.Unlock()
}

func decodeCompletedTasks(raw json.RawMessage) ([]domain.CompletedTaskSummary, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var tasks []domain.CompletedTaskSummary
		if err := json.Unmarshal(raw, &tasks); err != nil {
			return nil, err
		}
		return tasks, nil
	case '{':
		var wrapped struct {
			Results []domain.CompletedTaskSummary `json:"results"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Results, nil
	default:
		return nil, fmt.Errorf("unexpected completed_tasks payload %s", preview(raw))
	}
}

// epochOf canonicalises a server_id so equal JSON values compare equal:
// 1 and 1.0 match, and a missing id matches null.
func epochOf(raw json.RawMessage) string {
	var v interface{}
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &v) != nil || v == nil {
		return ""
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(canon)
}

func preview(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
