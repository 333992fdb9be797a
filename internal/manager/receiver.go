package manager

import (
	"errors"
	"fmt"
	"io"
	"net"

	"remotepad/internal/discovery"
	"remotepad/internal/input"
	"remotepad/internal/protocol"
)

var successResponse = []byte(protocol.SuccessResponse)

func (m *Manager) startReceiver() {
	if err := input.CheckPermission(m.opts.Injector); err != nil {
		log.Warnf("Receiver not started: %v", err)
		m.status = StatusPermission
		m.publish()
		return
	}

	cfg := m.opts.Config.Get()
	name := cfg.General.DeviceName
	if name == "" {
		name = m.opts.DeviceName
	}
	adv := discovery.NewAdvertiser(m.opts.Registry, discovery.AdvertiserConfig{
		Name:               name,
		ServiceType:        cfg.Discovery.ServiceType,
		Domain:             cfg.Discovery.Domain,
		ListenAddr:         cfg.Receiver.ListenAddr,
		IPs:                cfg.Receiver.AdvertiseIPs,
		AdvertiseAddresses: cfg.Discovery.AdvertiseAddresses,
		Version:            m.opts.Version,
	})
	ln, err := adv.Start()
	if err != nil {
		log.Errorf("Receiver failed to start: %v", err)
		if errors.Is(err, discovery.ErrAccessDenied) {
			m.status = statusErrorPrefix + "network access denied"
		} else {
			m.status = statusErrorPrefix + err.Error()
		}
		m.publish()
		return
	}

	m.advertiser = adv
	m.status = statusReadyPrefix + name
	m.publish()

	gen := m.gen
	go m.acceptLoop(gen, ln)
}

func (m *Manager) acceptLoop(gen int, ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Errorf("Accept failed: %v", err)
			}
			return
		}
		if tcp, ok := c.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		if !m.post(func() { m.onAccept(gen, c) }) {
			_ = c.Close()
			return
		}
	}
}

func (m *Manager) onAccept(gen int, c net.Conn) {
	if gen != m.gen {
		_ = c.Close()
		return
	}
	id := m.nextConnID
	m.nextConnID++
	m.conns[id] = c
	m.status = StatusControllerJoined
	log.Infof("Controller connected from %s (connection %d)", c.RemoteAddr(), id)
	m.publish()

	m.readers.Add(1)
	go m.serveConn(gen, id, c)
}

func (m *Manager) onConnClosed(gen, id int) {
	if gen != m.gen {
		return
	}
	c, ok := m.conns[id]
	if !ok {
		return
	}
	_ = c.Close()
	delete(m.conns, id)
	log.Infof("Connection %d closed", id)
	if len(m.conns) == 0 {
		m.status = StatusWaiting
	}
	m.publish()
}

// serveConn reads frames in arrival order and answers each one. Decoded
// commands run on the dispatcher so a slow injection never stalls the read.
func (m *Manager) serveConn(gen, id int, c net.Conn) {
	defer m.readers.Done()
	defer m.post(func() { m.onConnClosed(gen, id) })

	var fr protocol.Framer
	buf := make([]byte, 4096)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			_, _ = fr.Write(buf[:n])
			for {
				frame, ok := fr.Next()
				if !ok {
					break
				}
				if cmd, ok := protocol.Decode(frame); ok {
					m.dispatchCommand(cmd)
				} else {
					log.Debugf("Ignoring unroutable request %q on connection %d", frame.StartLine, id)
				}
				if _, werr := c.Write(successResponse); werr != nil {
					log.Debugf("Write on connection %d: %v", id, werr)
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warnf("Read on connection %d: %v", id, err)
			}
			if pending := fr.Buffered(); pending > 0 {
				log.Debugf("Connection %d closed with %d bytes of an unfinished request", id, pending)
			}
			return
		}
	}
}

func (m *Manager) dispatchCommand(cmd protocol.Command) {
	inj := m.opts.Injector
	if inj == nil {
		return
	}
	m.dispatch.Go(func() error {
		if err := inject(inj, cmd); err != nil {
			log.Errorf("Injecting %T failed: %v", cmd, err)
		}
		return nil
	})
}

func inject(inj input.Injector, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.Text:
		return inj.TypeText(c.Text)
	case protocol.KeyPress:
		return inj.PressKey(c.Keycode, c.Modifier)
	case protocol.MouseMove:
		return inj.MoveMouseBy(int(c.DeltaX), int(c.DeltaY))
	case protocol.MouseClick:
		return inj.ClickMouse(c.Button)
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
}
