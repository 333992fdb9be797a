package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/pion/mdns"
	"golang.org/x/net/ipv4"
)

// HostResolver maps a host name to an address.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) (net.IP, error)
}

// LocalResolver answers ".local" names with multicast DNS queries and hands
// everything else to the system resolver. The multicast socket is opened on
// first use.
type LocalResolver struct {
	mu   sync.Mutex
	conn *mdns.Conn
}

// NewLocalResolver creates a resolver; call Close when done.
func NewLocalResolver() *LocalResolver {
	return &LocalResolver{}
}

// LookupHost resolves host, which may carry a trailing dot.
func (r *LocalResolver) LookupHost(ctx context.Context, host string) (net.IP, error) {
	host = strings.TrimSuffix(host, ".")
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	if !strings.HasSuffix(strings.ToLower(host), ".local") {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, err
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("lookup %s: no addresses", host)
		}
		return addrs[0].IP, nil
	}

	conn, err := r.open()
	if err != nil {
		return nil, err
	}
	_, src, err := conn.Query(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("mdns query %s: %w", host, err)
	}
	switch a := src.(type) {
	case *net.IPAddr:
		return a.IP, nil
	case *net.UDPAddr:
		return a.IP, nil
	}
	if h, _, err := net.SplitHostPort(src.String()); err == nil {
		if ip := net.ParseIP(h); ip != nil {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("mdns query %s: unusable answer %v", host, src)
}

func (r *LocalResolver) open() (*mdns.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}

	addr, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddress)
	if err != nil {
		return nil, err
	}
	l, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("mdns listen: %w", err)
	}
	conn, err := mdns.Server(ipv4.NewPacketConn(l), &mdns.Config{})
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("mdns server: %w", err)
	}
	r.conn = conn
	return conn, nil
}

// Close releases the multicast socket.
func (r *LocalResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
