package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"remotepad/internal/config"
	"remotepad/internal/discovery"
	"remotepad/internal/protocol"
)

// outbound is one controller connection. conn is set before the outbound is
// published and never changes afterwards.
type outbound struct {
	device discovery.DiscoveredDevice
	conn   net.Conn

	writeMu sync.Mutex
	timeout time.Duration

	// sends started and not yet written, of any kind
	inFlight atomic.Int32
}

func (o *outbound) write(b []byte) error {
	o.inFlight.Add(1)
	defer o.inFlight.Add(-1)
	return o.writeFrame(b)
}

func (o *outbound) writeFrame(b []byte) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if o.timeout > 0 {
		_ = o.conn.SetWriteDeadline(time.Now().Add(o.timeout))
	}
	_, err := o.conn.Write(b)
	return err
}

func (m *Manager) startController() {
	cfg := m.opts.Config.Get()
	b := discovery.NewBrowser(m.opts.Registry, discovery.BrowserConfig{
		ServiceType:    cfg.Discovery.ServiceType,
		Domain:         cfg.Discovery.Domain,
		ResolveTimeout: cfg.Discovery.ResolveTimeout,
		FallbackPort:   cfg.Discovery.FallbackPort,
	}, m.opts.HostResolver)

	gen := m.gen
	b.Start(m.ctx, func(dev discovery.DiscoveredDevice) {
		m.post(func() { m.onFound(gen, dev) })
	})
	m.browser = b
	m.status = StatusSearching
	m.publish()
}

func (m *Manager) onFound(gen int, dev discovery.DiscoveredDevice) {
	if gen != m.gen || m.browser == nil {
		return
	}
	if _, dup := m.devices[dev.Name]; dup {
		return
	}
	m.devices[dev.Name] = dev
	log.Infof("Discovered %q at %s", dev.Name, dev.Addr())
	m.publish()
}

// RefreshDiscovery clears the device list and browses again.
func (m *Manager) RefreshDiscovery(ctx context.Context) error {
	return m.do(ctx, func() {
		if m.mode != config.ModeController {
			return
		}
		if m.browser != nil {
			m.browser.Stop()
			m.browser = nil
		}
		m.gen++
		m.devices = make(map[string]discovery.DiscoveredDevice)
		m.startController()
	})
}

// ConnectToDevice drops any existing outbound connection and dials dev.
// It returns once the attempt has started; watch State for the outcome.
func (m *Manager) ConnectToDevice(ctx context.Context, dev discovery.DiscoveredDevice) error {
	return m.do(ctx, func() { m.connect(dev) })
}

// ConnectByName connects to a discovered device by its advertised name.
func (m *Manager) ConnectByName(ctx context.Context, name string) error {
	var err error
	if derr := m.do(ctx, func() {
		dev, ok := m.devices[name]
		if !ok {
			err = fmt.Errorf("%w: %q", ErrUnknownDevice, name)
			return
		}
		m.connect(dev)
	}); derr != nil {
		return derr
	}
	return err
}

// Disconnect closes the outbound connection, if any.
func (m *Manager) Disconnect(ctx context.Context) error {
	return m.do(ctx, func() {
		m.teardownOutbound(OutboundIdle)
		m.publish()
	})
}

func (m *Manager) connect(dev discovery.DiscoveredDevice) {
	m.teardownOutbound(OutboundCancelled)

	cfg := m.opts.Config.Get()
	o := &outbound{device: dev, timeout: cfg.Controller.WriteTimeout}
	m.pending = o
	m.outState = OutboundConnecting
	m.attempted = true
	m.publish()

	ctx, timeout := m.ctx, cfg.Controller.DialTimeout
	go func() {
		conn, err := m.dialDevice(ctx, dev, timeout)
		if !m.post(func() { m.onDialed(o, conn, err) }) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (m *Manager) dialDevice(ctx context.Context, dev discovery.DiscoveredDevice, timeout time.Duration) (net.Conn, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	host := dev.Host
	if m.opts.HostResolver != nil && strings.HasSuffix(strings.ToLower(host), ".local") {
		if ip, err := m.opts.HostResolver.LookupHost(ctx, host); err == nil {
			host = ip.String()
		} else {
			log.Debugf("Lookup %s: %v", host, err)
		}
	}

	conn, err := m.opts.Dial(ctx, "tcp", net.JoinHostPort(host, fmt.Sprint(dev.Port)))
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}

func (m *Manager) onDialed(o *outbound, conn net.Conn, err error) {
	if m.pending != o {
		// superseded or torn down while dialing
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.pending = nil

	if err != nil {
		log.Errorf("Connection to %q failed: %v", o.device.Name, err)
		m.outState = OutboundFailed
		m.status = statusConnectFailPrefix + err.Error()
		m.publish()
		return
	}

	o.conn = conn
	m.out.Store(o)
	m.outState = OutboundReady
	m.status = statusConnectedPrefix + o.device.Name
	log.Infof("Connected to %q at %s", o.device.Name, conn.RemoteAddr())
	m.publish()

	go m.readResponses(o)
}

func (m *Manager) readResponses(o *outbound) {
	var fr protocol.Framer
	buf := make([]byte, 1024)
	for {
		n, err := o.conn.Read(buf)
		if n > 0 {
			_, _ = fr.Write(buf[:n])
			for {
				frame, ok := fr.Next()
				if !ok {
					break
				}
				if m.opts.OnResponse != nil {
					m.opts.OnResponse(frame)
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warnf("Read from %q: %v", o.device.Name, err)
			}
			m.post(func() { m.onOutboundClosed(o) })
			return
		}
	}
}

func (m *Manager) onOutboundClosed(o *outbound) {
	if m.out.Load() != o {
		return
	}
	log.Infof("Receiver %q closed the connection", o.device.Name)
	m.teardownOutbound(OutboundIdle)
	m.publish()
}

// teardownOutbound closes the live or pending connection and records next
// as the outbound state when there was one.
func (m *Manager) teardownOutbound(next OutboundState) {
	had := m.pending != nil
	m.pending = nil
	if o := m.out.Swap(nil); o != nil {
		had = true
		_ = o.conn.Close()
	}
	if had {
		m.outState = next
	}
}

// SendText types text on the receiver.
func (m *Manager) SendText(text string) error {
	if !m.opts.Entitlement.IsPro() {
		return ErrProRequired
	}
	return m.send(protocol.Text{Text: text})
}

// SendKeyPress presses one key with modifiers on the receiver.
func (m *Manager) SendKeyPress(keycode, modifier uint8) error {
	if !m.opts.Entitlement.IsPro() {
		return ErrProRequired
	}
	return m.send(protocol.KeyPress{Keycode: keycode, Modifier: modifier})
}

// SendMouseClick clicks button on the receiver.
func (m *Manager) SendMouseClick(button string) error {
	return m.send(protocol.MouseClick{Button: button})
}

// SendMouseMove moves the receiver's cursor. While any earlier send is
// still being written the move is dropped with ErrMoveInFlight.
func (m *Manager) SendMouseMove(dx, dy int8) error {
	o := m.out.Load()
	if o == nil {
		log.Debug("Not connected, dropping mouse move")
		return ErrNotConnected
	}
	if !o.inFlight.CompareAndSwap(0, 1) {
		return ErrMoveInFlight
	}
	data := protocol.EncodeRequest(protocol.MouseMove{DeltaX: dx, DeltaY: dy})
	go func() {
		defer o.inFlight.Add(-1)
		if err := o.writeFrame(data); err != nil {
			log.Warnf("Mouse move to %q failed: %v", o.device.Name, err)
		}
	}()
	return nil
}

// Send writes any command, applying the same gating as the typed helpers.
func (m *Manager) Send(cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.Text:
		return m.SendText(c.Text)
	case protocol.KeyPress:
		return m.SendKeyPress(c.Keycode, c.Modifier)
	case protocol.MouseMove:
		return m.SendMouseMove(c.DeltaX, c.DeltaY)
	case protocol.MouseClick:
		return m.SendMouseClick(c.Button)
	}
	return fmt.Errorf("unknown command %T", cmd)
}

func (m *Manager) send(cmd protocol.Command) error {
	o := m.out.Load()
	if o == nil {
		log.Warnf("Not connected, dropping %s", cmd.Endpoint())
		return ErrNotConnected
	}
	if err := o.write(protocol.EncodeRequest(cmd)); err != nil {
		return fmt.Errorf("send %s to %q: %w", cmd.Endpoint(), o.device.Name, err)
	}
	return nil
}
