package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remotepad/internal/config"
	"remotepad/internal/discovery"
	"remotepad/internal/input"
	"remotepad/internal/protocol"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 100)}
}

func (r *recorder) add(s string) error {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
	r.ch <- s
	return nil
}

func (r *recorder) TypeText(text string) error     { return r.add("text:" + text) }
func (r *recorder) MoveMouseBy(dx, dy int) error   { return r.add(fmt.Sprintf("move:%d,%d", dx, dy)) }
func (r *recorder) ClickMouse(button string) error { return r.add("click:" + button) }
func (r *recorder) PressKey(keycode, modifier uint8) error {
	return r.add(fmt.Sprintf("key:%02X/%02X", keycode, modifier))
}

func (r *recorder) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for injection")
		return ""
	}
}

// blockingInjector holds every key press until release is closed.
type blockingInjector struct {
	*recorder
	entered chan struct{}
	release chan struct{}
}

func (b *blockingInjector) PressKey(keycode, modifier uint8) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

type deniedInjector struct{ recorder }

func (*deniedInjector) CheckPermission() error { return input.ErrPermissionDenied }

func testConfig(t *testing.T, mode config.Mode) *config.Manager {
	t.Helper()
	cm := config.NewManagerAt(filepath.Join(t.TempDir(), "config.yaml"))
	cfg := cm.Get()
	cfg.General.Mode = mode
	cfg.Receiver.ListenAddr = "127.0.0.1:0"
	cfg.Receiver.AdvertiseIPs = []string{"127.0.0.1"}
	cfg.Discovery.ResolveTimeout = time.Second
	cfg.Controller.DialTimeout = time.Second
	cm.Set(cfg)
	return cm
}

func startManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m
}

func await(t *testing.T, m *Manager, cond func(State) bool) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s, err := m.Await(ctx, cond)
	require.NoError(t, err, "last state: %+v", s)
	return s
}

func startReceiver(t *testing.T, reg discovery.Registry, inj input.Injector) (*Manager, State) {
	t.Helper()
	m := startManager(t, Options{
		Config:     testConfig(t, config.ModeReceiver),
		Registry:   reg,
		Injector:   inj,
		DeviceName: "TestHost",
	})
	s := await(t, m, func(s State) bool { return s.Receiving })
	return m, s
}

func TestEndToEndKeyPress(t *testing.T) {
	reg := discovery.NewMemory()
	rec := newRecorder()
	_, rs := startReceiver(t, reg, rec)
	assert.Equal(t, "Ready - TestHost", rs.Status)
	assert.NotZero(t, rs.Port)

	responses := make(chan protocol.Frame, 10)
	ctrl := startManager(t, Options{
		Config:      testConfig(t, config.ModeController),
		Registry:    reg,
		Entitlement: StaticEntitlement(true),
		OnResponse:  func(f protocol.Frame) { responses <- f },
	})

	s := await(t, ctrl, func(s State) bool { return len(s.Devices) == 1 })
	assert.Equal(t, "TestHost", s.Devices[0].Name)
	assert.Equal(t, rs.Port, s.Devices[0].Port)

	require.NoError(t, ctrl.ConnectByName(context.Background(), "TestHost"))
	s = await(t, ctrl, func(s State) bool { return s.Outbound == OutboundReady })
	require.NotNil(t, s.Connected)
	assert.Equal(t, "TestHost", s.Connected.Name)
	assert.True(t, s.HasAttemptedConnection)

	require.NoError(t, ctrl.SendKeyPress(0x04, 0x02))
	assert.Equal(t, "key:04/02", rec.next(t))

	select {
	case f := <-responses:
		assert.Equal(t, 200, f.Status())
		assert.Equal(t, `{"success":true}`, string(f.Body))
	case <-time.After(3 * time.Second):
		t.Fatal("no response")
	}

	require.NoError(t, ctrl.SendText("Hi"))
	assert.Equal(t, "text:Hi", rec.next(t))
	require.NoError(t, ctrl.SendMouseClick("right"))
	assert.Equal(t, "click:right", rec.next(t))
}

func TestReceiverAnswersEveryFrameExactly(t *testing.T) {
	rec := newRecorder()
	_, rs := startReceiver(t, discovery.NewMemory(), rec)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", rs.Port))
	require.NoError(t, err)
	defer conn.Close()

	var wire []byte
	wire = append(wire, protocol.EncodeRequest(protocol.MouseMove{DeltaX: 5, DeltaY: -3})...)
	wire = append(wire, "POST /keyboard/key HTTP/1.1\r\nContent-Length: 9\r\n\r\n{\"foo\":1}"...)
	_, err = conn.Write(wire)
	require.NoError(t, err)

	want := protocol.SuccessResponse + protocol.SuccessResponse
	got := make([]byte, len(want))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))

	assert.Equal(t, "move:5,-3", rec.next(t))
	select {
	case s := <-rec.ch:
		t.Fatalf("unexpected injection %s", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestControllerConnectedFlag(t *testing.T) {
	m, rs := startReceiver(t, discovery.NewMemory(), newRecorder())
	addr := fmt.Sprintf("127.0.0.1:%d", rs.Port)

	a, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	s := await(t, m, func(s State) bool { return s.Connections == 1 })
	assert.True(t, s.ControllerConnected)
	assert.Equal(t, StatusControllerJoined, s.Status)

	b, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	await(t, m, func(s State) bool { return s.Connections == 2 })

	require.NoError(t, a.Close())
	s = await(t, m, func(s State) bool { return s.Connections == 1 })
	assert.True(t, s.ControllerConnected)

	require.NoError(t, b.Close())
	s = await(t, m, func(s State) bool { return s.Connections == 0 })
	assert.False(t, s.ControllerConnected)
	assert.Equal(t, StatusWaiting, s.Status)
}

func TestConnectionIDsAreNeverReused(t *testing.T) {
	m, rs := startReceiver(t, discovery.NewMemory(), newRecorder())
	addr := fmt.Sprintf("127.0.0.1:%d", rs.Port)

	for i := 0; i < 3; i++ {
		c, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		await(t, m, func(s State) bool { return s.Connections == 1 })
		require.NoError(t, c.Close())
		await(t, m, func(s State) bool { return s.Connections == 0 })
	}

	var next int
	require.NoError(t, m.do(context.Background(), func() { next = m.nextConnID }))
	assert.Equal(t, 3, next)
}

func TestPermissionDeniedBlocksReceiver(t *testing.T) {
	reg := discovery.NewMemory()
	m := startManager(t, Options{
		Config:   testConfig(t, config.ModeReceiver),
		Registry: reg,
		Injector: &deniedInjector{},
	})
	s := await(t, m, func(s State) bool { return s.Status == StatusPermission })
	assert.False(t, s.Receiving)
	assert.Zero(t, reg.Len())
}

func TestDiscoveredDevicesAreDeduplicatedAndSorted(t *testing.T) {
	m := startManager(t, Options{
		Config:   testConfig(t, config.ModeController),
		Registry: discovery.NewMemory(),
	})
	await(t, m, func(s State) bool { return s.Discovering })

	require.NoError(t, m.do(context.Background(), func() {
		m.onFound(m.gen, discovery.DiscoveredDevice{ID: "1", Name: "Zed", Host: "10.0.0.2", Port: 1})
		m.onFound(m.gen, discovery.DiscoveredDevice{ID: "2", Name: "Alpha", Host: "10.0.0.1", Port: 1})
		m.onFound(m.gen, discovery.DiscoveredDevice{ID: "3", Name: "Zed", Host: "10.0.0.9", Port: 9})
		m.onFound(m.gen-1, discovery.DiscoveredDevice{ID: "4", Name: "Stale", Host: "10.0.0.4", Port: 1})
	}))

	s := m.State()
	require.Len(t, s.Devices, 2)
	assert.Equal(t, "Alpha", s.Devices[0].Name)
	assert.Equal(t, "Zed", s.Devices[1].Name)
	assert.Equal(t, "1", s.Devices[1].ID)

	require.NoError(t, m.RefreshDiscovery(context.Background()))
	assert.Empty(t, m.State().Devices)
}

func pipeDialer(conns chan net.Conn) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		select {
		case c := <-conns:
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestMouseMoveIsSingleFlight(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conns := make(chan net.Conn, 1)
	conns <- client

	m := startManager(t, Options{
		Config:   testConfig(t, config.ModeController),
		Registry: discovery.NewMemory(),
		Dial:     pipeDialer(conns),
	})
	require.NoError(t, m.ConnectToDevice(context.Background(), discovery.DiscoveredDevice{Name: "pipe", Host: "127.0.0.1", Port: 1}))
	await(t, m, func(s State) bool { return s.Outbound == OutboundReady })

	require.NoError(t, m.SendMouseMove(3, 4))
	assert.ErrorIs(t, m.SendMouseMove(1, 1), ErrMoveInFlight)

	want := protocol.EncodeRequest(protocol.MouseMove{DeltaX: 3, DeltaY: 4})
	got := make([]byte, len(want))
	_, err := io.ReadFull(server, got)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	assert.Eventually(t, func() bool { return m.SendMouseMove(0, 1) == nil }, 2*time.Second, 5*time.Millisecond)
}

func TestMouseMoveDroppedWhileAnySendIsInFlight(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conns := make(chan net.Conn, 1)
	conns <- client

	m := startManager(t, Options{
		Config:      testConfig(t, config.ModeController),
		Registry:    discovery.NewMemory(),
		Entitlement: StaticEntitlement(true),
		Dial:        pipeDialer(conns),
	})
	require.NoError(t, m.ConnectToDevice(context.Background(), discovery.DiscoveredDevice{Name: "pipe", Host: "127.0.0.1", Port: 1}))
	await(t, m, func(s State) bool { return s.Outbound == OutboundReady })

	textDone := make(chan error, 1)
	go func() { textDone <- m.SendText("slow") }()
	require.Eventually(t, func() bool {
		o := m.out.Load()
		return o != nil && o.inFlight.Load() > 0
	}, 2*time.Second, time.Millisecond)

	assert.ErrorIs(t, m.SendMouseMove(1, 1), ErrMoveInFlight)

	want := protocol.EncodeRequest(protocol.Text{Text: "slow"})
	got := make([]byte, len(want))
	_, err := io.ReadFull(server, got)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
	require.NoError(t, <-textDone)

	assert.Eventually(t, func() bool { return m.SendMouseMove(0, 1) == nil }, 2*time.Second, 5*time.Millisecond)
}

func TestSlowInjectionDoesNotHoldBackResponses(t *testing.T) {
	inj := &blockingInjector{
		recorder: newRecorder(),
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	_, rs := startReceiver(t, discovery.NewMemory(), inj)
	defer close(inj.release)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", rs.Port))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(protocol.EncodeRequest(protocol.KeyPress{Keycode: 0x04}))
	require.NoError(t, err)
	select {
	case <-inj.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("key press never reached the injector")
	}

	// the key press is still held; its answer must already be on the wire
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	got := make([]byte, len(protocol.SuccessResponse))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, protocol.SuccessResponse, string(got))

	_, err = conn.Write(protocol.EncodeRequest(protocol.MouseClick{Button: "left"}))
	require.NoError(t, err)
	assert.Equal(t, "click:left", inj.next(t))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, protocol.SuccessResponse, string(got))
}

func TestSendsRequireReadyConnection(t *testing.T) {
	m := startManager(t, Options{
		Config:      testConfig(t, config.ModeController),
		Registry:    discovery.NewMemory(),
		Entitlement: StaticEntitlement(true),
	})
	await(t, m, func(s State) bool { return s.Discovering })

	assert.ErrorIs(t, m.SendText("x"), ErrNotConnected)
	assert.ErrorIs(t, m.SendKeyPress(4, 0), ErrNotConnected)
	assert.ErrorIs(t, m.SendMouseMove(1, 1), ErrNotConnected)
	assert.ErrorIs(t, m.SendMouseClick("left"), ErrNotConnected)
	assert.Equal(t, OutboundIdle, m.State().Outbound)
}

func TestProGate(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conns := make(chan net.Conn, 1)
	conns <- client

	m := startManager(t, Options{
		Config:      testConfig(t, config.ModeController),
		Registry:    discovery.NewMemory(),
		Entitlement: StaticEntitlement(false),
		Dial:        pipeDialer(conns),
	})
	require.NoError(t, m.ConnectToDevice(context.Background(), discovery.DiscoveredDevice{Name: "pipe", Host: "h", Port: 1}))
	await(t, m, func(s State) bool { return s.Outbound == OutboundReady })

	assert.ErrorIs(t, m.SendText("x"), ErrProRequired)
	assert.ErrorIs(t, m.SendKeyPress(4, 0), ErrProRequired)
	assert.ErrorIs(t, m.Send(protocol.Text{Text: "x"}), ErrProRequired)

	go func() { _, _ = io.Copy(io.Discard, server) }()
	assert.NoError(t, m.SendMouseClick("left"))
}

func TestEntitlementFollowsConfig(t *testing.T) {
	cm := testConfig(t, config.ModeController)
	m := startManager(t, Options{Config: cm, Registry: discovery.NewMemory()})
	assert.False(t, m.opts.Entitlement.IsPro())

	cfg := cm.Get()
	cfg.General.Pro = true
	cm.Set(cfg)
	assert.True(t, m.opts.Entitlement.IsPro())
}

func TestConfiguredDeviceNameIsAdvertised(t *testing.T) {
	reg := discovery.NewMemory()
	cm := testConfig(t, config.ModeReceiver)
	m := startManager(t, Options{Config: cm, Registry: reg, Injector: newRecorder(), DeviceName: "TestHost"})
	s := await(t, m, func(s State) bool { return s.Receiving })
	assert.Equal(t, "Ready - TestHost", s.Status)

	cfg := cm.Get()
	cfg.General.DeviceName = "Desk"
	cm.Set(cfg)
	require.NoError(t, m.SetMode(context.Background(), config.ModeReceiver))
	s = await(t, m, func(s State) bool { return s.Receiving })
	assert.Equal(t, "Ready - Desk", s.Status)
}

func TestNewConnectionReplacesOld(t *testing.T) {
	slow := make(chan net.Conn)
	fastClient, fastServer := net.Pipe()
	defer fastServer.Close()
	slowClient, slowServer := net.Pipe()
	defer slowServer.Close()

	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if addr == "10.0.0.1:1" {
			select {
			case c := <-slow:
				return c, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return fastClient, nil
	}

	m := startManager(t, Options{
		Config:   testConfig(t, config.ModeController),
		Registry: discovery.NewMemory(),
		Dial:     dial,
	})
	ctx := context.Background()
	require.NoError(t, m.ConnectToDevice(ctx, discovery.DiscoveredDevice{Name: "slow", Host: "10.0.0.1", Port: 1}))
	await(t, m, func(s State) bool { return s.Outbound == OutboundConnecting })

	require.NoError(t, m.ConnectToDevice(ctx, discovery.DiscoveredDevice{Name: "fast", Host: "10.0.0.2", Port: 1}))
	s := await(t, m, func(s State) bool { return s.Outbound == OutboundReady })
	assert.Equal(t, "fast", s.Connected.Name)

	// the superseded dial completes late and must be discarded
	slow <- slowClient
	buf := make([]byte, 1)
	require.NoError(t, slowServer.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err := slowServer.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "fast", m.State().Connected.Name)

	require.NoError(t, m.Disconnect(ctx))
	s = m.State()
	assert.Equal(t, OutboundIdle, s.Outbound)
	assert.Nil(t, s.Connected)
}

func TestFailedDialReportsFailure(t *testing.T) {
	m := startManager(t, Options{
		Config:   testConfig(t, config.ModeController),
		Registry: discovery.NewMemory(),
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})
	require.NoError(t, m.ConnectToDevice(context.Background(), discovery.DiscoveredDevice{Name: "gone", Host: "10.0.0.3", Port: 1}))
	s := await(t, m, func(s State) bool { return s.Outbound == OutboundFailed })
	assert.Contains(t, s.Status, "connection refused")
	assert.Nil(t, s.Connected)
}

func TestRemoteCloseReturnsToIdle(t *testing.T) {
	client, server := net.Pipe()
	conns := make(chan net.Conn, 1)
	conns <- client

	m := startManager(t, Options{
		Config:   testConfig(t, config.ModeController),
		Registry: discovery.NewMemory(),
		Dial:     pipeDialer(conns),
	})
	require.NoError(t, m.ConnectToDevice(context.Background(), discovery.DiscoveredDevice{Name: "pipe", Host: "h", Port: 1}))
	await(t, m, func(s State) bool { return s.Outbound == OutboundReady })

	require.NoError(t, server.Close())
	s := await(t, m, func(s State) bool { return s.Outbound == OutboundIdle })
	assert.Nil(t, s.Connected)
	assert.ErrorIs(t, m.SendMouseClick("left"), ErrNotConnected)
}

func TestConnectByNameUnknown(t *testing.T) {
	m := startManager(t, Options{
		Config:   testConfig(t, config.ModeController),
		Registry: discovery.NewMemory(),
	})
	err := m.ConnectByName(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestSetModeSwitchesRoles(t *testing.T) {
	reg := discovery.NewMemory()
	cm := testConfig(t, config.ModeReceiver)
	m := startManager(t, Options{Config: cm, Registry: reg, Injector: newRecorder(), DeviceName: "TestHost"})
	await(t, m, func(s State) bool { return s.Receiving })
	assert.Equal(t, 1, reg.Len())

	ctx := context.Background()
	require.NoError(t, m.SetMode(ctx, config.ModeController))
	s := await(t, m, func(s State) bool { return s.Discovering })
	assert.Equal(t, config.ModeController, s.Mode)
	assert.False(t, s.Receiving)
	assert.Zero(t, s.Port)
	assert.Zero(t, reg.Len())

	reloaded := config.NewManagerAt(cm.Path())
	require.NoError(t, reloaded.Load())
	assert.Equal(t, config.ModeController, reloaded.Get().General.Mode)

	require.NoError(t, m.SetMode(ctx, config.ModeReceiver))
	s = await(t, m, func(s State) bool { return s.Receiving })
	assert.False(t, s.Discovering)
	assert.Equal(t, 1, reg.Len())

	assert.Error(t, m.SetMode(ctx, config.Mode("host")))
}

func TestStopAllIsIdempotent(t *testing.T) {
	m, _ := startReceiver(t, discovery.NewMemory(), newRecorder())
	var first, second State
	require.NoError(t, m.do(context.Background(), func() {
		m.stopAll()
		first = m.State()
		m.stopAll()
		second = m.State()
	}))
	assert.Equal(t, first, second)
	assert.False(t, first.Receiving)
	assert.Equal(t, StatusStopped, first.Status)
}
