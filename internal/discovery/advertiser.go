package discovery

import (
	"errors"
	"fmt"
	"net"
	"runtime"
)

// ErrAccessDenied is returned when the OS refuses to bind the listener,
// typically a firewall or policy block. It is terminal for that start.
var ErrAccessDenied = errors.New("discovery: access denied binding listener")

// AdvertiserState is the advertiser lifecycle.
type AdvertiserState int

const (
	AdvertiserStopped AdvertiserState = iota
	AdvertiserStarting
	AdvertiserAdvertised
	AdvertiserFailed
)

func (s AdvertiserState) String() string {
	switch s {
	case AdvertiserStopped:
		return "stopped"
	case AdvertiserStarting:
		return "starting"
	case AdvertiserAdvertised:
		return "advertised"
	case AdvertiserFailed:
		return "failed"
	}
	return "unknown"
}

// AdvertiserConfig describes the listener and the record to publish.
type AdvertiserConfig struct {
	Name        string
	ServiceType string
	Domain      string
	ListenAddr  string

	// IPs pins the advertised addresses. When empty and AdvertiseAddresses
	// is set, every up non-loopback IPv4 address is published.
	IPs                []string
	AdvertiseAddresses bool

	Version string
}

// Advertiser owns the receiver's listening socket and its DNS-SD record.
// It is not safe for concurrent use; one goroutine drives it.
type Advertiser struct {
	reg    Registry
	cfg    AdvertiserConfig
	listen func(network, addr string) (net.Listener, error)

	state        AdvertiserState
	ln           net.Listener
	registration Registration
}

// NewAdvertiser prepares an advertiser; nothing is bound until Start.
func NewAdvertiser(reg Registry, cfg AdvertiserConfig) *Advertiser {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":0"
	}
	return &Advertiser{reg: reg, cfg: cfg, listen: net.Listen}
}

// State returns the current lifecycle state.
func (a *Advertiser) State() AdvertiserState {
	return a.state
}

// Port returns the bound TCP port, or 0 when not listening.
func (a *Advertiser) Port() int {
	if a.ln == nil {
		return 0
	}
	if tcp, ok := a.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Start binds the listener and publishes the service. The caller accepts on
// the returned listener; Stop closes it.
func (a *Advertiser) Start() (net.Listener, error) {
	if a.state == AdvertiserAdvertised {
		return a.ln, nil
	}
	a.state = AdvertiserStarting

	ln, err := a.listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		a.state = AdvertiserFailed
		if isAccessDenied(err) {
			return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
		return nil, fmt.Errorf("listen %s: %w", a.cfg.ListenAddr, err)
	}
	a.ln = ln

	ips := a.cfg.IPs
	if len(ips) == 0 && a.cfg.AdvertiseAddresses {
		if ips, err = LocalIPv4s(); err != nil {
			log.Warnf("Could not list interface addresses: %v", err)
		}
	}

	svc := Service{
		Instance: a.cfg.Name,
		Type:     a.cfg.ServiceType,
		Domain:   a.cfg.Domain,
		Port:     a.Port(),
		IPs:      ips,
		Text:     []string{"version=" + a.cfg.Version, "os=" + runtime.GOOS},
	}
	reg, err := a.reg.Register(svc)
	if err != nil {
		a.state = AdvertiserFailed
		_ = ln.Close()
		a.ln = nil
		return nil, err
	}
	a.registration = reg
	a.state = AdvertiserAdvertised

	log.Infof("Advertising %q as %s on port %d (%d addresses)", svc.Instance, svc.Type, svc.Port, len(ips))
	return ln, nil
}

// Stop withdraws the record and closes the listener. Calling it again, or
// before Start, does nothing.
func (a *Advertiser) Stop() {
	if a.registration != nil {
		a.registration.Shutdown()
		a.registration = nil
	}
	if a.ln != nil {
		_ = a.ln.Close()
		a.ln = nil
	}
	if a.state != AdvertiserStopped {
		log.Debug("Advertiser stopped")
	}
	a.state = AdvertiserStopped
}
