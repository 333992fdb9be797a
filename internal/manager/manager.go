// Package manager runs the receiver and controller roles.
//
// All connection and discovery state belongs to one event-loop goroutine
// started by Run. Accept loops, connection readers, dialers and browse
// callbacks never touch that state directly; they post closures to the
// loop. Readers outside the loop see an immutable State snapshot that the
// loop republishes after every change.
package manager

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"remotepad/internal/config"
	"remotepad/internal/discovery"
	"remotepad/internal/input"
	"remotepad/internal/logger"
	"remotepad/internal/protocol"
)

var log = logger.For("manager")

var (
	// ErrNotConnected is returned by sends while no outbound connection is ready.
	ErrNotConnected = errors.New("manager: not connected to a receiver")

	// ErrMoveInFlight is returned when a mouse move is dropped because the
	// previous one has not been written yet.
	ErrMoveInFlight = errors.New("manager: previous mouse move still in flight")

	// ErrProRequired is returned for text and key presses without the entitlement.
	ErrProRequired = errors.New("manager: text and key presses require pro")

	// ErrUnknownDevice is returned by ConnectByName for names not discovered.
	ErrUnknownDevice = errors.New("manager: no discovered device with that name")

	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("manager: stopped")
)

// Receiver status strings.
const (
	StatusNotStarted        = "Not Started"
	StatusPermission        = "Accessibility permission required"
	StatusControllerJoined  = "Controller connected"
	StatusWaiting           = "Waiting for connection"
	StatusStopped           = "Stopped"
	StatusSearching         = "Searching for devices"
	statusReadyPrefix       = "Ready - "
	statusErrorPrefix       = "Error: "
	statusConnectedPrefix   = "Connected to "
	statusConnectFailPrefix = "Connection failed: "
)

// OutboundState is the controller connection lifecycle.
type OutboundState string

const (
	OutboundIdle       OutboundState = "idle"
	OutboundConnecting OutboundState = "connecting"
	OutboundReady      OutboundState = "ready"
	OutboundFailed     OutboundState = "failed"
	OutboundCancelled  OutboundState = "cancelled"
)

// State is a snapshot of everything the UI surfaces show.
type State struct {
	Mode   config.Mode `json:"mode"`
	Status string      `json:"status"`

	// receiver
	Receiving           bool `json:"receiving"`
	Port                int  `json:"port,omitempty"`
	ControllerConnected bool `json:"controller_connected"`
	Connections         int  `json:"connections"`

	// controller
	Discovering            bool                         `json:"discovering"`
	Devices                []discovery.DiscoveredDevice `json:"devices"`
	Outbound               OutboundState                `json:"outbound"`
	Connected              *discovery.DiscoveredDevice  `json:"connected,omitempty"`
	HasAttemptedConnection bool                         `json:"has_attempted_connection"`
}

// Entitlement gates the commands reserved for paying users.
type Entitlement interface {
	IsPro() bool
}

// StaticEntitlement is an Entitlement fixed at construction.
type StaticEntitlement bool

func (s StaticEntitlement) IsPro() bool { return bool(s) }

// configEntitlement follows general.pro in the live configuration.
type configEntitlement struct{ cfg *config.Manager }

func (c configEntitlement) IsPro() bool { return c.cfg.Get().General.Pro }

// Options wires a Manager to its collaborators.
type Options struct {
	Config       *config.Manager
	Registry     discovery.Registry
	Injector     input.Injector
	Entitlement  Entitlement
	HostResolver discovery.HostResolver

	// DeviceName is the advertised instance name when general.device_name
	// is empty.
	DeviceName string
	Version    string

	// Dial opens outbound connections. Defaults to a net.Dialer.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	// OnResponse receives every response frame read from the receiver.
	OnResponse func(protocol.Frame)
}

// Manager owns the network roles. Create with New and drive with Run.
type Manager struct {
	opts Options

	events chan func()
	quit   chan struct{}
	once   sync.Once

	snapshot atomic.Pointer[State]
	out      atomic.Pointer[outbound]

	dispatch errgroup.Group
	readers  sync.WaitGroup

	// loop-owned from here on
	ctx    context.Context
	mode   config.Mode
	status string
	gen    int

	advertiser *discovery.Advertiser
	conns      map[int]net.Conn
	nextConnID int

	browser   *discovery.Browser
	devices   map[string]discovery.DiscoveredDevice
	pending   *outbound
	outState  OutboundState
	attempted bool

	subs    map[int]func(State)
	nextSub int
}

// New creates a manager in the mode stored in the configuration.
func New(opts Options) *Manager {
	if opts.Config == nil {
		opts.Config = config.NewManagerAt("")
	}
	if opts.Entitlement == nil {
		opts.Entitlement = configEntitlement{opts.Config}
	}
	if opts.Dial == nil {
		var d net.Dialer
		opts.Dial = d.DialContext
	}
	if opts.DeviceName == "" {
		opts.DeviceName = "remotepad"
	}

	m := &Manager{
		opts:     opts,
		events:   make(chan func(), 64),
		quit:     make(chan struct{}),
		mode:     opts.Config.Get().General.Mode,
		status:   StatusNotStarted,
		conns:    make(map[int]net.Conn),
		devices:  make(map[string]discovery.DiscoveredDevice),
		outState: OutboundIdle,
		subs:     make(map[int]func(State)),
	}
	m.snapshot.Store(&State{Mode: m.mode, Status: m.status, Outbound: m.outState})
	return m
}

// Run starts the configured role and processes events until ctx is done.
// Everything is torn down before it returns.
func (m *Manager) Run(ctx context.Context) error {
	m.ctx = ctx
	m.startMode()

	for {
		select {
		case <-ctx.Done():
			m.once.Do(func() { close(m.quit) })
			m.stopAll()
			m.readers.Wait()
			_ = m.dispatch.Wait()
			log.Info("Connection manager stopped")
			return nil
		case fn := <-m.events:
			fn()
		}
	}
}

// post queues fn on the loop. It reports false once the loop is shutting down.
func (m *Manager) post(fn func()) bool {
	select {
	case <-m.quit:
		return false
	default:
	}
	select {
	case m.events <- fn:
		return true
	case <-m.quit:
		return false
	}
}

// do runs fn on the loop and waits for it.
func (m *Manager) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !m.post(func() { fn(); close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-m.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the latest snapshot.
func (m *Manager) State() State {
	return *m.snapshot.Load()
}

// Subscribe calls fn with the current state and after every change, on the
// loop goroutine. fn must not block.
func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	var id int
	registered := make(chan struct{})
	if !m.post(func() {
		id = m.nextSub
		m.nextSub++
		m.subs[id] = fn
		fn(m.State())
		close(registered)
	}) {
		return func() {}
	}
	return func() {
		m.post(func() {
			<-registered
			delete(m.subs, id)
		})
	}
}

// Await blocks until cond holds for a published state.
func (m *Manager) Await(ctx context.Context, cond func(State) bool) (State, error) {
	matched := make(chan State, 1)
	cancel := m.Subscribe(func(s State) {
		if cond(s) {
			select {
			case matched <- s:
			default:
			}
		}
	})
	defer cancel()

	select {
	case s := <-matched:
		return s, nil
	case <-m.quit:
		return m.State(), ErrStopped
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}

// SetMode persists mode, stops the current role and starts the new one.
func (m *Manager) SetMode(ctx context.Context, mode config.Mode) error {
	if err := m.opts.Config.SetMode(mode); err != nil {
		return err
	}
	return m.do(ctx, func() {
		log.Infof("Switching to %s mode", mode)
		m.stopAll()
		m.mode = mode
		m.startMode()
	})
}

func (m *Manager) startMode() {
	switch m.mode {
	case config.ModeReceiver:
		m.startReceiver()
	case config.ModeController:
		m.startController()
	default:
		m.status = statusErrorPrefix + "unknown mode " + string(m.mode)
		m.publish()
	}
}

// stopAll tears down both roles. Safe to call repeatedly.
func (m *Manager) stopAll() {
	m.gen++

	if m.advertiser != nil {
		m.advertiser.Stop()
		m.advertiser = nil
	}
	for id, c := range m.conns {
		_ = c.Close()
		delete(m.conns, id)
	}

	if m.browser != nil {
		m.browser.Stop()
		m.browser = nil
	}
	m.devices = make(map[string]discovery.DiscoveredDevice)
	m.teardownOutbound(OutboundIdle)

	m.status = StatusStopped
	m.publish()
}

// publish builds a snapshot and hands it to subscribers.
func (m *Manager) publish() {
	s := &State{
		Mode:                   m.mode,
		Status:                 m.status,
		Receiving:              m.advertiser != nil && m.advertiser.State() == discovery.AdvertiserAdvertised,
		ControllerConnected:    len(m.conns) > 0,
		Connections:            len(m.conns),
		Discovering:            m.browser != nil && m.browser.Browsing(),
		Devices:                m.sortedDevices(),
		Outbound:               m.outState,
		HasAttemptedConnection: m.attempted,
	}
	if m.advertiser != nil {
		s.Port = m.advertiser.Port()
	}
	if o := m.out.Load(); o != nil {
		dev := o.device
		s.Connected = &dev
	}
	m.snapshot.Store(s)

	for _, fn := range m.subs {
		fn(*s)
	}
}

func (m *Manager) sortedDevices() []discovery.DiscoveredDevice {
	list := make([]discovery.DiscoveredDevice, 0, len(m.devices))
	for _, d := range m.devices {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
