package discovery

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BrowserConfig selects what to browse for and how to resolve it.
type BrowserConfig struct {
	ServiceType    string
	Domain         string
	ResolveTimeout time.Duration
	FallbackPort   int
}

// Browser finds receivers and resolves each one with a short-lived TCP
// connection, reading the peer address back from the socket. It is driven
// by one goroutine; found runs on browse goroutines.
type Browser struct {
	reg      Registry
	cfg      BrowserConfig
	resolver HostResolver
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)

	cancel context.CancelFunc
}

// NewBrowser creates a stopped browser. hr may be nil, in which case host
// names are dialed as they are.
func NewBrowser(reg Registry, cfg BrowserConfig, hr HostResolver) *Browser {
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 3 * time.Second
	}
	if cfg.FallbackPort <= 0 {
		cfg.FallbackPort = 8080
	}
	var d net.Dialer
	return &Browser{reg: reg, cfg: cfg, resolver: hr, dial: d.DialContext}
}

// Browsing reports whether Start has been called without a matching Stop.
func (b *Browser) Browsing() bool {
	return b.cancel != nil
}

// Start begins browsing in the background. Each instance is resolved on its
// own goroutine and handed to found. A running browse is restarted.
func (b *Browser) Start(ctx context.Context, found func(DiscoveredDevice)) {
	b.Stop()

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	go func() {
		err := b.reg.Browse(ctx, b.cfg.ServiceType, b.cfg.Domain, func(inst Instance) {
			go func() {
				dev := b.Resolve(ctx, inst)
				if ctx.Err() == nil {
					found(dev)
				}
			}()
		})
		if err != nil && ctx.Err() == nil {
			log.Errorf("Browse failed: %v", err)
		}
	}()
	log.Infof("Browsing for %s in %s", b.cfg.ServiceType, b.cfg.Domain)
}

// Stop cancels browsing and pending resolves. Safe to call repeatedly.
func (b *Browser) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	b.cancel = nil
	log.Debug("Browser stopped")
}

// Resolve turns an instance into a dialable device. On failure the device
// points at "<name>.local" and the fallback port.
func (b *Browser) Resolve(ctx context.Context, inst Instance) DiscoveredDevice {
	dev := DiscoveredDevice{ID: uuid.NewString(), Name: inst.Name}

	for _, addr := range b.candidates(ctx, inst) {
		dctx, cancel := context.WithTimeout(ctx, b.cfg.ResolveTimeout)
		start := time.Now()
		conn, err := b.dial(dctx, "tcp", addr)
		rtt := time.Since(start)
		cancel()
		if err != nil {
			log.Debugf("Resolve %q via %s: %v", inst.Name, addr, err)
			continue
		}
		remote := conn.RemoteAddr()
		_ = conn.Close()

		if tcp, ok := remote.(*net.TCPAddr); ok {
			dev.Host, dev.Port = tcp.IP.String(), tcp.Port
		} else if host, port, err := net.SplitHostPort(remote.String()); err == nil {
			dev.Host = host
			dev.Port = atoiOr(port, inst.Port)
		} else {
			continue
		}
		dev.Signal = SignalFor(rtt)
		log.Infof("Resolved %q to %s (%s)", inst.Name, dev.Addr(), dev.Signal)
		return dev
	}

	dev.Host = inst.Name + ".local"
	dev.Port = b.cfg.FallbackPort
	dev.Signal = SignalFair
	log.Warnf("Could not resolve %q, falling back to %s", inst.Name, dev.Addr())
	return dev
}

func (b *Browser) candidates(ctx context.Context, inst Instance) []string {
	if inst.Port <= 0 {
		return nil
	}
	port := itoa(inst.Port)
	var out []string
	for _, ip := range inst.IPv4 {
		out = append(out, net.JoinHostPort(ip.String(), port))
	}
	for _, ip := range inst.IPv6 {
		if ip.IsLinkLocalUnicast() {
			continue // needs a zone we do not have
		}
		out = append(out, net.JoinHostPort(ip.String(), port))
	}
	if host := strings.TrimSuffix(inst.HostName, "."); host != "" && len(out) == 0 {
		if b.resolver != nil {
			rctx, cancel := context.WithTimeout(ctx, b.cfg.ResolveTimeout)
			ip, err := b.resolver.LookupHost(rctx, host)
			cancel()
			if err == nil {
				host = ip.String()
			} else {
				log.Debugf("Lookup %s: %v", host, err)
			}
		}
		out = append(out, net.JoinHostPort(host, port))
	}
	return out
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
