package livestatus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
)

func workersMsg(serverID string, workers ...string) string {
	return fmt.Sprintf(`{"success": true, "server_id": %q, "type": "workers_info", "data": [%s]}`,
		serverID, strings.Join(workers, ","))
}

func busyWorker(id int, percent int, file string) string {
	return fmt.Sprintf(`{"id": %d, "name": "Worker-%d", "idle": false, "progress": {"percent": %d}, "current_file": %q, "ffmpeg_log_tail": ["frame=1\n"], "runners_info": []}`,
		id, id, percent, file)
}

func idleWorker(id int) string {
	return fmt.Sprintf(`{"id": %d, "name": "Worker-%d", "idle": true, "current_file": "", "ffmpeg_log_tail": [], "runners_info": []}`, id, id)
}

func TestNew_RejectsBadOrigin(t *testing.T) {
	if _, err := New(Config{Origin: "ftp://host", Renderer: newFakeRenderer()}); err == nil {
		t.Fatalf("expected error for ftp origin")
	}
	if _, err := New(Config{Origin: "http://host"}); err == nil {
		t.Fatalf("expected error without renderer")
	}
}

func TestConnect_NoOpWhileConnecting(t *testing.T) {
	h := newHarness(t)
	h.client.connect()
	h.client.connect()
	h.pumpUntil(t, evOpen)
	h.client.connect()

	if got := h.dialer.calls.Load(); got != 1 {
		t.Fatalf("expected 1 dial, got %d", got)
	}
	if h.client.state != StateOpen {
		t.Fatalf("expected open, got %s", h.client.state)
	}
}

func TestOnOpen_SubscribesToBothFeeds(t *testing.T) {
	h := newHarness(t)
	conn := h.open(t)

	want := []string{"start_workers_info", "start_completed_tasks_info"}
	if got := conn.writes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected writes %v, got %v", want, got)
	}
}

func TestReconcile_RenderedSetMatchesEverySnapshot(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	snapshots := [][]int{
		{1, 2, 3},
		{2, 3},
		{3, 4, 5, 6},
		{},
		{7},
		{7, 1, 3},
		{1, 3, 7},
	}
	for i, ids := range snapshots {
		workers := make([]string, 0, len(ids))
		for _, id := range ids {
			if id%2 == 0 {
				workers = append(workers, idleWorker(id))
			} else {
				workers = append(workers, busyWorker(id, id*10, "file.mkv"))
			}
		}
		h.deliver(workersMsg("epoch-1", workers...))

		want := make([]string, 0, len(ids))
		for _, id := range ids {
			want = append(want, fmt.Sprint(id))
		}
		sort.Strings(want)
		got := h.renderer.ids()
		if len(want) == 0 && len(got) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("snapshot %d: expected widgets %v, got %v", i, want, got)
		}
	}
}

func TestReconcile_UpdatesExistingInPlace(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	h.deliver(workersMsg("e", busyWorker(1, 10, "a.mp4")))
	h.deliver(workersMsg("e", busyWorker(1, 20, "a.mp4")))

	if h.renderer.creates != 1 || h.renderer.updates != 1 {
		t.Fatalf("expected 1 create and 1 update, got %d/%d", h.renderer.creates, h.renderer.updates)
	}
	v, _ := h.renderer.widget("1")
	if v.Percent != 20 || v.Indicator != "20%" {
		t.Fatalf("expected 20%%, got %d %q", v.Percent, v.Indicator)
	}
}

func TestReconcile_ReplacesWorkerExample(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	h.deliver(`{"success": true, "server_id": "s", "type": "workers_info", "data": [{"id": 1, "idle": false, "progress": {"percent": 42}, "current_file": "a.mp4"}]}`)
	v, ok := h.renderer.widget("1")
	if !ok || v.Percent != 42 || v.Subtitle != "a.mp4" {
		t.Fatalf("unexpected widget 1: %+v ok=%v", v, ok)
	}

	h.deliver(`{"success": true, "server_id": "s", "type": "workers_info", "data": [{"id": 2, "idle": true}]}`)
	if _, ok := h.renderer.widget("1"); ok {
		t.Fatalf("expected widget 1 removed")
	}
	v, ok = h.renderer.widget("2")
	if !ok {
		t.Fatalf("expected widget 2 created")
	}
	if v.Indicator != IdleIndicator || v.Percent != 100 {
		t.Fatalf("expected IDLE at 100, got %q at %d", v.Indicator, v.Percent)
	}
}

func TestIdleWorker_IgnoresStaleProgress(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	h.deliver(`{"success": true, "server_id": "s", "type": "workers_info", "data": [{"id": "W1", "idle": true, "progress": {"percent": "37"}, "current_file": "old.mkv", "ffmpeg_log_tail": ["x"]}]}`)
	v, ok := h.renderer.widget("W1")
	if !ok {
		t.Fatalf("expected widget W1")
	}
	if v.Percent != 100 || v.Indicator != IdleIndicator || v.Subtitle != IdleSubtitle || len(v.LogTail) != 0 {
		t.Fatalf("unexpected idle view %+v", v)
	}
}

func TestEpoch_ChangeForcesReload(t *testing.T) {
	h := newHarness(t)
	first := h.open(t)

	h.deliver(workersMsg("epoch-a", busyWorker(1, 5, "a.mkv")))
	h.deliver(workersMsg("epoch-b", busyWorker(1, 6, "a.mkv")))

	if h.renderer.reloads != 1 {
		t.Fatalf("expected 1 reload, got %d", h.renderer.reloads)
	}
	if !first.isClosed() {
		t.Fatalf("expected old socket closed on reload")
	}
	if len(h.client.widgets) != 0 || h.client.epochSeen {
		t.Fatalf("expected client state discarded, widgets=%d epochSeen=%v", len(h.client.widgets), h.client.epochSeen)
	}
	if h.client.state != StateConnecting {
		t.Fatalf("expected fresh connect after reload, got %s", h.client.state)
	}

	h.pumpUntil(t, evOpen)
	if got := h.dialer.calls.Load(); got != 2 {
		t.Fatalf("expected 2 dials, got %d", got)
	}
	h.deliver(workersMsg("epoch-b", busyWorker(1, 7, "a.mkv")))
	if h.renderer.reloads != 1 {
		t.Fatalf("expected no further reload, got %d", h.renderer.reloads)
	}
}

func TestEpoch_SameServerNeverReloads(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	for i := 0; i < 20; i++ {
		h.deliver(workersMsg("stable", busyWorker(1, i, "a.mkv")))
	}
	if h.renderer.reloads != 0 {
		t.Fatalf("expected no reload, got %d", h.renderer.reloads)
	}
}

func TestEpoch_SurvivesReconnect(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	h.deliver(workersMsg("before", idleWorker(1)))

	h.client.onClose(h.client.gen, errors.New("boom"))
	h.clock.active()[0].f()
	h.pumpUntil(t, evReconnect)
	h.pumpUntil(t, evOpen)

	h.deliver(workersMsg("after", idleWorker(1)))
	if h.renderer.reloads != 1 {
		t.Fatalf("expected restart detected across reconnect, reloads=%d", h.renderer.reloads)
	}
}

func TestEpoch_ComparesDecodedValues(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	same := []string{
		`{"success": true, "type": "workers_info", "data": []}`,
		`{"success": true, "type": "workers_info", "data": []}`,
		`{"success": true, "server_id": null, "type": "workers_info", "data": []}`,
	}
	for _, raw := range same {
		h.deliver(raw)
	}
	if h.renderer.reloads != 0 {
		t.Fatalf("absent and null server_id must match, reloads=%d", h.renderer.reloads)
	}

	h.deliver(`{"success": true, "server_id": 1, "type": "workers_info", "data": []}`)
	if h.renderer.reloads != 1 {
		t.Fatalf("expected reload when an id appears, reloads=%d", h.renderer.reloads)
	}
	h.pumpUntil(t, evOpen)

	h.deliver(`{"success": true, "server_id": 1, "type": "workers_info", "data": []}`)
	h.deliver(`{"success": true, "server_id": 1.0, "type": "workers_info", "data": []}`)
	if h.renderer.reloads != 1 {
		t.Fatalf("1 and 1.0 are the same id, reloads=%d", h.renderer.reloads)
	}
	h.deliver(`{"success": true, "server_id": "1", "type": "workers_info", "data": []}`)
	if h.renderer.reloads != 2 {
		t.Fatalf("string and number ids differ, reloads=%d", h.renderer.reloads)
	}
}

func TestUnsuccessfulMessage_LeavesWidgetsUnchanged(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	h.deliver(workersMsg("s", busyWorker(1, 50, "a.mkv"), idleWorker(2)))
	before := h.renderer.ids()
	creates, updates, removes := h.renderer.creates, h.renderer.updates, h.renderer.removes

	h.deliver(`{"success": false, "server_id": "s", "type": "workers_info", "data": []}`)
	h.deliver(`{"success": false}`)

	if got := h.renderer.ids(); !reflect.DeepEqual(got, before) {
		t.Fatalf("expected widgets %v unchanged, got %v", before, got)
	}
	if h.renderer.creates != creates || h.renderer.updates != updates || h.renderer.removes != removes {
		t.Fatalf("renderer was touched by an unsuccessful message")
	}
	if h.client.state != StateOpen {
		t.Fatalf("expected connection kept open, got %s", h.client.state)
	}
}

func TestMalformedMessages_AreDropped(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	h.deliver(workersMsg("s", idleWorker(1)))

	h.deliver(`{not json`)
	h.deliver(`{"success": true, "server_id": "s", "type": "workers_info", "data": {"oops": 1}}`)
	h.deliver(`{"success": true, "server_id": "s", "type": "pending_tasks", "data": []}`)
	h.client.onMessage(h.client.gen, websocket.BinaryMessage, []byte(workersMsg("s")))

	if got := h.renderer.ids(); !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("expected widget 1 untouched, got %v", got)
	}
	if h.client.state != StateOpen || h.renderer.reloads != 0 {
		t.Fatalf("malformed input changed client state")
	}
}

func TestCompletedTasks_ReplacedWholesale(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	h.deliver(`{"success": true, "server_id": "s", "type": "completed_tasks", "data": {"results": [{"id": 1, "label": "a.mkv", "success": true, "finish_time": 1700000000, "human_readable_time": "Just Now"}, {"id": 2, "label": "b.mkv", "success": false}]}}`)
	if len(h.renderer.tasks) != 2 || h.renderer.tasks[0].Label != "a.mkv" {
		t.Fatalf("unexpected tasks %+v", h.renderer.tasks)
	}

	h.deliver(`{"success": true, "server_id": "s", "type": "completed_tasks", "data": [{"id": 9, "label": "z.mkv", "success": true}]}`)
	if len(h.renderer.tasks) != 1 || h.renderer.tasks[0].ID != 9 {
		t.Fatalf("expected list replaced, got %+v", h.renderer.tasks)
	}
	if h.renderer.taskReplaces != 2 {
		t.Fatalf("expected 2 replaces, got %d", h.renderer.taskReplaces)
	}
}

func TestOnError_NotifiesWithoutTransition(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	h.deliver(workersMsg("s", idleWorker(1)))

	h.client.onError(h.client.gen, errors.New("reset by peer"))

	if len(h.renderer.notifications) != 1 || h.renderer.notifications[0] != UnreachableMessage {
		t.Fatalf("expected unreachable notification, got %v", h.renderer.notifications)
	}
	if h.client.state != StateOpen {
		t.Fatalf("expected state open, got %s", h.client.state)
	}
	if h.clock.scheduled() != 0 {
		t.Fatalf("error alone must not schedule a reconnect")
	}
	if len(h.renderer.ids()) != 1 {
		t.Fatalf("error alone must not clear widgets")
	}
}

func TestOnClose_SchedulesExactlyOneReconnect(t *testing.T) {
	h := newHarness(t)
	conn := h.open(t)
	h.deliver(workersMsg("s", busyWorker(1, 50, "a.mkv")))

	h.client.onClose(h.client.gen, errors.New("gone"))
	h.client.onClose(h.client.gen, errors.New("gone again"))

	active := h.clock.active()
	if len(active) != 1 {
		t.Fatalf("expected 1 pending reconnect timer, got %d", len(active))
	}
	if active[0].delay != DefaultReconnectDelay {
		t.Fatalf("expected delay %s, got %s", DefaultReconnectDelay, active[0].delay)
	}
	if h.client.state != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", h.client.state)
	}
	if len(h.renderer.ids()) != 0 {
		t.Fatalf("expected worker widgets cleared on close, got %v", h.renderer.ids())
	}
	if !conn.isClosed() {
		t.Fatalf("expected socket released")
	}
}

func TestReconnectTimer_ReopensConnection(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	h.client.onClose(h.client.gen, errors.New("gone"))

	h.clock.active()[0].f()
	h.pumpUntil(t, evReconnect)
	h.pumpUntil(t, evOpen)

	if h.client.state != StateOpen {
		t.Fatalf("expected open after reconnect, got %s", h.client.state)
	}
	if h.client.timer != nil {
		t.Fatalf("expected no pending timer once open")
	}
	if got := h.dialer.calls.Load(); got != 2 {
		t.Fatalf("expected 2 dials, got %d", got)
	}
}

func TestReconnectTimer_CancelledTimerIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	h.client.onClose(h.client.gen, errors.New("gone"))
	stale := h.clock.active()[0]
	h.client.onClose(h.client.gen, errors.New("gone"))

	stale.f()
	h.pumpUntil(t, evReconnect)
	if h.client.state != StateDisconnected {
		t.Fatalf("cancelled timer must not reconnect, state=%s", h.client.state)
	}
	if got := h.dialer.calls.Load(); got != 1 {
		t.Fatalf("expected 1 dial, got %d", got)
	}
}

func TestDialFailure_SchedulesReconnect(t *testing.T) {
	h := newHarness(t)
	h.dialer.err = errors.New("connection refused")

	h.client.connect()
	h.pumpUntil(t, evClose)

	if len(h.renderer.notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(h.renderer.notifications))
	}
	if len(h.clock.active()) != 1 {
		t.Fatalf("expected reconnect scheduled after failed dial")
	}
	if h.client.state != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", h.client.state)
	}
}

func TestStaleGeneration_IsIgnored(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	oldGen := h.client.gen
	h.client.onClose(oldGen, errors.New("gone"))
	h.clock.active()[0].f()
	h.pumpUntil(t, evReconnect)
	h.pumpUntil(t, evOpen)
	h.deliver(workersMsg("s", idleWorker(1)))

	h.client.onMessage(oldGen, websocket.TextMessage, []byte(workersMsg("s", idleWorker(2))))
	h.client.onClose(oldGen, errors.New("late close"))
	h.client.onError(oldGen, errors.New("late error"))

	if got := h.renderer.ids(); !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("stale message leaked into view: %v", got)
	}
	if h.client.state != StateOpen {
		t.Fatalf("stale close changed state to %s", h.client.state)
	}
	if len(h.renderer.notifications) != 0 {
		t.Fatalf("stale error surfaced a notification")
	}
}

func TestReader_DeliversFramesAndNormalClose(t *testing.T) {
	h := newHarness(t)
	conn := h.open(t)

	conn.incoming <- frame{msgType: websocket.TextMessage, data: []byte(workersMsg("s", idleWorker(4)))}
	h.pumpUntil(t, evMessage)
	if got := h.renderer.ids(); !reflect.DeepEqual(got, []string{"4"}) {
		t.Fatalf("expected widget 4, got %v", got)
	}

	close(conn.incoming)
	h.pumpUntil(t, evClose)
	if len(h.renderer.notifications) != 0 {
		t.Fatalf("normal close must not raise an error notification")
	}
	if len(h.clock.active()) != 1 {
		t.Fatalf("expected reconnect scheduled")
	}
}

func TestRun_DisposesOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.client.Run(ctx) }()

	var conn *fakeConn
	deadline := time.After(2 * time.Second)
	for conn == nil {
		select {
		case <-deadline:
			t.Fatalf("client never dialed")
		case <-time.After(5 * time.Millisecond):
			conn = h.dialer.last()
		}
	}
	select {
	case <-conn.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatalf("client never subscribed")
	}

	if err := h.client.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if !conn.isClosed() {
		t.Fatalf("expected socket closed on dispose")
	}
	if h.client.state != StateDisconnected {
		t.Fatalf("expected disconnected after dispose, got %s", h.client.state)
	}
}

func waitClosed(t *testing.T, conn *fakeConn) {
	t.Helper()
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected socket closed")
	}
}

func TestDispose_ClosesSocketDialedAfterwards(t *testing.T) {
	h := newHarness(t)
	h.dialer.gate = make(chan struct{})
	h.client.connect()
	h.client.dispose()
	close(h.dialer.gate)

	var conn *fakeConn
	deadline := time.After(2 * time.Second)
	for conn == nil {
		select {
		case <-deadline:
			t.Fatalf("dial never completed")
		case <-time.After(5 * time.Millisecond):
			conn = h.dialer.last()
		}
	}
	waitClosed(t, conn)
}

func TestDispose_ClosesSocketNotYetAdopted(t *testing.T) {
	h := newHarness(t)
	h.client.connect()

	// Wait for the open event to be queued but leave it unhandled.
	deadline := time.After(2 * time.Second)
	for {
		h.client.dialMu.Lock()
		n := len(h.client.inflight)
		h.client.dialMu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("dial never completed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	h.client.dispose()
	waitClosed(t, h.dialer.last())
}
