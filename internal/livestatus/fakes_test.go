package livestatus

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/mediadash/backend/internal/domain"
)

type fakeRenderer struct {
	mu            sync.Mutex
	widgets       map[string]WorkerView
	creates       int
	updates       int
	removes       int
	tasks         []domain.CompletedTaskSummary
	taskReplaces  int
	notifications []string
	reloads       int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{widgets: make(map[string]WorkerView)}
}

func (r *fakeRenderer) UpsertWorkerWidget(id string, view WorkerView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.widgets[id]; ok {
		r.updates++
	} else {
		r.creates++
	}
	r.widgets[id] = view
}

func (r *fakeRenderer) RemoveWorkerWidget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes++
	delete(r.widgets, id)
}

func (r *fakeRenderer) ReplaceCompletedTasks(tasks []domain.CompletedTaskSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taskReplaces++
	r.tasks = tasks
}

func (r *fakeRenderer) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, message)
}

func (r *fakeRenderer) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads++
	r.widgets = make(map[string]WorkerView)
	r.tasks = nil
}

func (r *fakeRenderer) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.widgets))
	for id := range r.widgets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *fakeRenderer) widget(id string) (WorkerView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.widgets[id]
	return v, ok
}

type frame struct {
	msgType int
	data    []byte
}

type fakeConn struct {
	mu         sync.Mutex
	written    []string
	incoming   chan frame
	closed     chan struct{}
	closeOnce  sync.Once
	subscribed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming:   make(chan frame, 16),
		closed:     make(chan struct{}),
		subscribed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case fr, ok := <-f.incoming:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return fr.msgType, fr.data, nil
	case <-f.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, string(data))
	if len(f.written) == 2 {
		close(f.subscribed)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

type fakeDialer struct {
	mu    sync.Mutex
	calls atomic.Int32
	conns []*fakeConn
	err   error
	// gate, when set, holds every dial until it is closed.
	gate chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.calls.Add(1)
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

func (c *fakeClock) scheduled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

type harness struct {
	client   *Client
	renderer *fakeRenderer
	dialer   *fakeDialer
	clock    *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		renderer: newFakeRenderer(),
		dialer:   &fakeDialer{},
		clock:    &fakeClock{},
	}
	c, err := New(Config{
		Origin:   "http://dash.local:8888",
		Renderer: h.renderer,
		Dialer:   h.dialer,
		Clock:    h.clock,
	})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	h.client = c
	t.Cleanup(func() {
		c.cancel()
		for _, conn := range h.dialer.conns {
			conn.Close()
		}
	})
	return h
}

// pump handles the next queued event.
func (h *harness) pump(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-h.client.events:
		h.client.handle(ev)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for client event")
		return event{}
	}
}

// pumpUntil handles queued events until one of the given kind was handled.
// Late events from torn-down sockets may be interleaved and are handled too.
func (h *harness) pumpUntil(t *testing.T, kind eventKind) event {
	t.Helper()
	for i := 0; i < 32; i++ {
		if ev := h.pump(t); ev.kind == kind {
			return ev
		}
	}
	t.Fatalf("event kind %d never arrived", kind)
	return event{}
}

func (h *harness) open(t *testing.T) *fakeConn {
	t.Helper()
	h.client.connect()
	h.pumpUntil(t, evOpen)
	if h.client.state != StateOpen {
		t.Fatalf("expected state open, got %s", h.client.state)
	}
	return h.dialer.last()
}

func (h *harness) deliver(raw string) {
	h.client.onMessage(h.client.gen, websocket.TextMessage, []byte(raw))
}
