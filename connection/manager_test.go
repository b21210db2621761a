package connection

import (
	"context"
	stderrors "errors"
	"net"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/vinayprograms/hostwatch/bus"
	"github.com/vinayprograms/hostwatch/clock"
	"github.com/vinayprograms/hostwatch/errors"
	"github.com/vinayprograms/hostwatch/logging"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// recordingHandler counts connection events.
type recordingHandler struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	messages    []bus.Message
	onConnect   func()
}

func (h *recordingHandler) OnConnect() {
	h.mu.Lock()
	h.connects++
	fn := h.onConnect
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *recordingHandler) OnMessage(msg bus.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *recordingHandler) OnDisconnected() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects++
}

func (h *recordingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connects, h.disconnects
}

func (h *recordingHandler) received() []bus.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bus.Message(nil), h.messages...)
}

// countingObserver records state transitions.
type countingObserver struct {
	mu       sync.Mutex
	states   []State
	attempts int
}

func (o *countingObserver) ObserveState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *countingObserver) ObserveReconnectAttempt() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
}

func (o *countingObserver) reconnectAttempts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempts
}

// gatedDialer wraps a MemoryBroker, remembers every Events sink and can
// hold handshakes until released.
type gatedDialer struct {
	broker *bus.MemoryBroker

	mu     sync.Mutex
	events []bus.Events
	gate   chan struct{}
}

func (d *gatedDialer) Dial(cfg bus.DialConfig, events bus.Events) bus.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events)
	return &gatedClient{Client: d.broker.Dial(cfg, events), gate: d.gate}
}

func (d *gatedDialer) hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
}

func (d *gatedDialer) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

func (d *gatedDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func (d *gatedDialer) last() bus.Events {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events[len(d.events)-1]
}

type gatedClient struct {
	bus.Client
	gate chan struct{}
}

func (c *gatedClient) Connect() error {
	if c.gate != nil {
		<-c.gate
	}
	return c.Client.Connect()
}

type harness struct {
	t        *testing.T
	broker   *bus.MemoryBroker
	dialer   *gatedDialer
	clock    *clock.FakeClock
	manager  *Manager
	handler  *recordingHandler
	observer *countingObserver
	cancel   context.CancelFunc
	finished chan struct{}
	err      error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	broker := bus.NewMemoryBroker()
	h := &harness{
		t:        t,
		broker:   broker,
		dialer:   &gatedDialer{broker: broker},
		clock:    clock.Fake(epoch),
		handler:  &recordingHandler{},
		observer: &countingObserver{},
		finished: make(chan struct{}),
	}
	m, err := New(Config{
		Host:              "broker.local",
		Port:              1883,
		ReconnectInterval: 5 * time.Second,
	}, h.dialer, WithClock(h.clock), WithLogger(logging.Discard()), WithObserver(h.observer))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	h.manager = m
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.err = h.manager.Run(ctx, h.handler)
		close(h.finished)
	}()
	h.t.Cleanup(func() {
		cancel()
		select {
		case <-h.finished:
		case <-time.After(2 * time.Second):
		}
	})
}

// flush waits until every event queued so far has run.
func (h *harness) flush() {
	h.t.Helper()
	done := make(chan struct{})
	h.manager.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		h.t.Fatal("event loop did not drain")
	}
}

func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) waitConnects(n int) {
	h.t.Helper()
	h.waitFor("connect", func() bool {
		c, _ := h.handler.counts()
		return c >= n
	})
}

func (h *harness) result() error {
	h.t.Helper()
	select {
	case <-h.finished:
		return h.err
	case <-time.After(2 * time.Second):
		h.t.Fatal("Run did not return")
		return nil
	}
}

func refused() error {
	return &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED},
	}
}

func unresolvable() error {
	return &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &net.DNSError{Err: "no such host", Name: "broker.local", IsNotFound: true},
	}
}

// --- Unit Tests ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Host: "localhost", Port: 1883}, false},
		{"missing host", Config{Port: 1883}, true},
		{"zero port", Config{Host: "localhost"}, true},
		{"port too large", Config{Host: "localhost", Port: 70000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeConfig) {
				t.Errorf("error code = %s, want CONFIG", errors.Code(err))
			}
		})
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	m, err := New(Config{Host: "localhost", Port: 1883}, bus.NewMemoryBroker())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	cfg := m.Config()
	if cfg.ReconnectInterval != DefaultReconnectInterval {
		t.Errorf("ReconnectInterval = %v", cfg.ReconnectInterval)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
	if cfg.KeepAlive != DefaultKeepAlive {
		t.Errorf("KeepAlive = %v", cfg.KeepAlive)
	}
	if m.State() != Disconnected {
		t.Errorf("initial state = %s", m.State())
	}
}

func TestNew_RequiresDialer(t *testing.T) {
	if _, err := New(Config{Host: "localhost", Port: 1883}, nil); err == nil {
		t.Fatal("expected error for nil dialer")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Connected, "connected"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	cfg := Config{Host: "broker.local", Port: 1883}

	tests := []struct {
		name         string
		err          error
		fatalConnect bool
		wantCode     errors.ErrorCode
		wantFatal    bool
		wantSyscall  string
	}{
		{"dns error", unresolvable(), false, errors.ErrCodeResolution, true, "getaddrinfo"},
		{"dns error string", stderrors.New("dial tcp: lookup nohost: no such host"), false, errors.ErrCodeResolution, true, "getaddrinfo"},
		{"refused before first connect", refused(), true, errors.ErrCodeConnect, true, "connect"},
		{"refused after first connect", refused(), false, errors.ErrCodeConnect, false, "connect"},
		{"op error without syscall", &net.OpError{Op: "read", Err: stderrors.New("reset")}, false, errors.ErrCodeConnect, false, "read"},
		{"opaque error", stderrors.New("not authorized"), false, errors.ErrCodeConnect, false, "connect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err, cfg, tt.fatalConnect)
			if got.Code() != tt.wantCode {
				t.Errorf("code = %s, want %s", got.Code(), tt.wantCode)
			}
			if got.Fatal() != tt.wantFatal {
				t.Errorf("fatal = %v, want %v", got.Fatal(), tt.wantFatal)
			}
			meta := got.Metadata()
			if meta["syscall"] != tt.wantSyscall {
				t.Errorf("syscall = %q, want %q", meta["syscall"], tt.wantSyscall)
			}
			if meta["host"] != "broker.local" || meta["port"] != "1883" {
				t.Errorf("metadata = %v", meta)
			}
			if meta["description"] == "" {
				t.Error("description metadata missing")
			}
			if !stderrors.Is(got, tt.err) {
				t.Error("cause not preserved")
			}
		})
	}
}

func TestManager_PublishWhenNotConnected(t *testing.T) {
	h := newHarness(t)
	if err := h.manager.Publish("/t", []byte("x"), bus.PublishOptions{}); err != bus.ErrNotConnected {
		t.Errorf("Publish = %v, want ErrNotConnected", err)
	}
	if err := h.manager.Subscribe("/t"); err != bus.ErrNotConnected {
		t.Errorf("Subscribe = %v, want ErrNotConnected", err)
	}
	if err := h.manager.Unsubscribe("/t"); err != bus.ErrNotConnected {
		t.Errorf("Unsubscribe = %v, want ErrNotConnected", err)
	}
}

func TestManager_RunTwice(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitConnects(1)

	err := h.manager.Run(context.Background(), h.handler)
	if !errors.Is(err, errors.ErrCodeInternal) {
		t.Errorf("second Run = %v, want INTERNAL", err)
	}
}

// --- Integration Tests ---

func TestManager_ConnectAndCancel(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitConnects(1)

	if h.manager.State() != Connected {
		t.Fatalf("state = %s, want connected", h.manager.State())
	}
	if h.broker.Sessions() != 1 {
		t.Errorf("Sessions = %d, want 1", h.broker.Sessions())
	}

	h.cancel()
	if err := h.result(); err != nil {
		t.Fatalf("Run returned %v, want nil", err)
	}
	if h.manager.State() != Disconnected {
		t.Errorf("state after cancel = %s", h.manager.State())
	}
	if h.broker.Sessions() != 0 {
		t.Errorf("Sessions after cancel = %d, want 0", h.broker.Sessions())
	}
}

func TestManager_CancelStopsTimers(t *testing.T) {
	h := newHarness(t)
	h.handler.onConnect = func() {
		h.manager.Every(time.Second, func() {})
		h.manager.Every(time.Minute, func() {})
	}
	h.start()
	h.waitConnects(1)
	h.flush()

	if h.clock.PendingCount() != 2 {
		t.Fatalf("PendingCount = %d, want 2", h.clock.PendingCount())
	}

	h.cancel()
	h.result()
	if h.clock.PendingCount() != 0 {
		t.Errorf("PendingCount after cancel = %d, want 0", h.clock.PendingCount())
	}
}

func TestManager_FirstConnectFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.broker.SetConnectError(refused())
	h.start()

	err := h.result()
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if !errors.Is(err, errors.ErrCodeConnect) {
		t.Errorf("code = %s, want CONNECT", errors.Code(err))
	}
	if !errors.IsFatal(err) {
		t.Error("first connect failure should be fatal")
	}
	if errors.ExitCode(err) != errors.ExitFatal {
		t.Errorf("ExitCode = %d, want %d", errors.ExitCode(err), errors.ExitFatal)
	}
	meta := errors.GetMetadata(err)
	if meta["syscall"] != "connect" || meta["host"] != "broker.local" {
		t.Errorf("metadata = %v", meta)
	}
	if h.clock.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", h.clock.PendingCount())
	}
}

func TestManager_ResolutionFailureAfterConnectIsFatal(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitConnects(1)

	h.broker.SetConnectError(unresolvable())
	h.broker.DropAll(stderrors.New("EOF"))
	h.clock.WaitForTimers(1)
	h.clock.Advance(5 * time.Second)

	err := h.result()
	if !errors.Is(err, errors.ErrCodeResolution) {
		t.Fatalf("Run = %v, want RESOLUTION", err)
	}
	if got := errors.GetMetadata(err)["syscall"]; got != "getaddrinfo" {
		t.Errorf("syscall = %q, want getaddrinfo", got)
	}
	if h.clock.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", h.clock.PendingCount())
	}
}

func TestManager_SingleReconnectTimer(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitConnects(1)

	events := h.dialer.last()
	h.broker.SetConnectError(refused())
	for i := 0; i < 3; i++ {
		events.ConnectionLost(stderrors.New("EOF"))
	}
	h.flush()

	if _, d := h.handler.counts(); d != 1 {
		t.Errorf("disconnects = %d, want 1", d)
	}
	if h.clock.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", h.clock.PendingCount())
	}

	// Failed attempts keep the one timer running.
	for i := 0; i < 3; i++ {
		h.clock.Advance(5 * time.Second)
		want := i + 2
		h.waitFor("reconnect attempt", func() bool {
			return h.broker.ConnectAttempts() >= want && h.manager.State() == Disconnected
		})
		h.flush()
		if h.clock.PendingCount() != 1 {
			t.Fatalf("after attempt %d PendingCount = %d, want 1", i+1, h.clock.PendingCount())
		}
	}
	if h.manager.State() != Disconnected {
		t.Errorf("state = %s, want disconnected", h.manager.State())
	}

	h.broker.SetConnectError(nil)
	h.clock.Advance(5 * time.Second)
	h.waitConnects(2)
	h.flush()

	if h.manager.State() != Connected {
		t.Errorf("state = %s, want connected", h.manager.State())
	}
	if h.clock.PendingCount() != 0 {
		t.Errorf("PendingCount after reconnect = %d, want 0", h.clock.PendingCount())
	}
	if h.observer.reconnectAttempts() != 4 {
		t.Errorf("reconnect attempts = %d, want 4", h.observer.reconnectAttempts())
	}
}

func TestManager_StaleSessionEventsIgnored(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitConnects(1)

	old := h.dialer.last()
	h.broker.DropAll(stderrors.New("EOF"))
	h.clock.WaitForTimers(1)
	h.clock.Advance(5 * time.Second)
	h.waitConnects(2)

	old.ConnectionLost(stderrors.New("late"))
	old.MessageReceived(bus.Message{Topic: "/stale"})
	h.flush()

	if _, d := h.handler.counts(); d != 1 {
		t.Errorf("disconnects = %d, want 1", d)
	}
	if h.manager.State() != Connected {
		t.Errorf("state = %s, want connected", h.manager.State())
	}
	if len(h.handler.received()) != 0 {
		t.Error("message from stale session delivered")
	}
}

func TestManager_TickSkippedWhileAttemptInFlight(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitConnects(1)

	h.dialer.hold()
	h.broker.DropAll(stderrors.New("EOF"))
	h.clock.WaitForTimers(1)

	h.clock.Advance(5 * time.Second)
	h.waitFor("second dial", func() bool { return h.dialer.dials() == 2 })
	h.flush()

	h.clock.Advance(5 * time.Second)
	h.flush()
	if h.dialer.dials() != 2 {
		t.Errorf("dials = %d, want 2 (tick should be skipped)", h.dialer.dials())
	}
	if h.manager.State() != Connecting {
		t.Errorf("state = %s, want connecting", h.manager.State())
	}

	h.dialer.release()
	h.waitConnects(2)
}

func TestManager_LostDuringHandshakeReconnects(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitConnects(1)

	h.dialer.hold()
	h.broker.DropAll(stderrors.New("EOF"))
	h.clock.WaitForTimers(1)
	h.clock.Advance(5 * time.Second)
	h.waitFor("second dial", func() bool { return h.dialer.dials() == 2 })
	h.flush()

	// The new session drops before its handshake returns.
	h.dialer.last().ConnectionLost(stderrors.New("EOF"))
	h.flush()
	h.dialer.release()

	h.waitFor("disconnected", func() bool {
		return h.manager.State() == Disconnected && h.clock.PendingCount() == 1
	})
	h.flush()
	if c, d := h.handler.counts(); c != 1 || d != 1 {
		t.Errorf("connects, disconnects = %d, %d; want 1, 1", c, d)
	}
	if h.clock.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", h.clock.PendingCount())
	}

	h.clock.Advance(5 * time.Second)
	h.waitConnects(2)
	h.flush()
	if h.manager.State() != Connected {
		t.Errorf("state = %s, want connected", h.manager.State())
	}
}

func TestManager_DeliversMessages(t *testing.T) {
	h := newHarness(t)
	h.handler.onConnect = func() {
		if err := h.manager.Subscribe("/monitoring/+/isUp"); err != nil {
			t.Errorf("Subscribe error: %v", err)
		}
	}
	h.broker.Publish("/monitoring/h1/isUp", []byte("true"), bus.PublishOptions{Retain: true})
	h.start()
	h.waitConnects(1)
	h.flush()

	h.broker.Publish("/monitoring/h2/isUp", []byte("false"), bus.PublishOptions{})
	h.broker.Publish("/monitoring/h2/systemInfo", []byte("{}"), bus.PublishOptions{})
	h.flush()

	msgs := h.handler.received()
	if len(msgs) != 2 {
		t.Fatalf("received %d messages, want 2", len(msgs))
	}
	if !msgs[0].Retained || msgs[0].Topic != "/monitoring/h1/isUp" {
		t.Errorf("first message = %+v, want retained h1", msgs[0])
	}
	if msgs[1].Retained || msgs[1].Topic != "/monitoring/h2/isUp" {
		t.Errorf("second message = %+v", msgs[1])
	}
}

func TestManager_PublishThroughLoop(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitConnects(1)

	errCh := make(chan error, 1)
	h.manager.Post(func() {
		errCh <- h.manager.Publish("/monitoring/h1/isUp", []byte("true"), bus.PublishOptions{Retain: true})
	})
	if err := <-errCh; err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if v, ok := h.broker.Retained("/monitoring/h1/isUp"); !ok || string(v) != "true" {
		t.Errorf("retained = %q, %v", v, ok)
	}
}

func TestManager_EveryAndStop(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitConnects(1)

	var mu sync.Mutex
	ticks := 0
	var timer *Timer
	h.manager.Post(func() {
		timer = h.manager.Every(time.Second, func() {
			mu.Lock()
			ticks++
			mu.Unlock()
		})
	})
	h.flush()

	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Second)
		h.flush()
	}
	h.manager.Post(func() { timer.Stop() })
	h.flush()
	h.clock.Advance(time.Second)
	h.flush()

	mu.Lock()
	defer mu.Unlock()
	if ticks != 3 {
		t.Errorf("ticks = %d, want 3", ticks)
	}
	if h.clock.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", h.clock.PendingCount())
	}
}

func TestManager_GoPostsContinuation(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.waitConnects(1)

	result := make(chan int, 1)
	h.manager.Post(func() {
		var n int
		h.manager.Go(func() { n = 42 }, func() { result <- n })
	})

	select {
	case got := <-result:
		if got != 42 {
			t.Errorf("continuation saw %d, want 42", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("continuation did not run")
	}
}
