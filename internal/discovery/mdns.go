package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/grandcat/zeroconf"
)

// MDNS is the multicast DNS-SD registry used on a real network.
type MDNS struct {
	// Interfaces restricts announcements and queries. Nil means all.
	Interfaces []net.Interface
}

// Register announces s. With explicit IPs the record is published as a proxy
// so the A records carry exactly those addresses.
func (m *MDNS) Register(s Service) (Registration, error) {
	var (
		server *zeroconf.Server
		err    error
	)
	if len(s.IPs) > 0 {
		server, err = zeroconf.RegisterProxy(s.Instance, s.Type, s.Domain, s.Port,
			hostLabel(s.Instance), s.IPs, s.Text, m.Interfaces)
	} else {
		server, err = zeroconf.Register(s.Instance, s.Type, s.Domain, s.Port, s.Text, m.Interfaces)
	}
	if err != nil {
		return nil, fmt.Errorf("register %s.%s: %w", s.Instance, s.Type, err)
	}
	return server, nil
}

// Browse blocks until ctx is done, reporting every entry the resolver sees.
func (m *MDNS) Browse(ctx context.Context, serviceType, domain string, found func(Instance)) error {
	var opts []zeroconf.ClientOption
	if len(m.Interfaces) > 0 {
		opts = append(opts, zeroconf.SelectIfaces(m.Interfaces))
	}
	resolver, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, serviceType, domain, entries); err != nil {
		return fmt.Errorf("browse %s: %w", serviceType, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-entries:
			if !ok {
				return nil
			}
			found(Instance{
				Name:     e.Instance,
				Type:     e.Service,
				Domain:   e.Domain,
				HostName: e.HostName,
				Port:     e.Port,
				IPv4:     e.AddrIPv4,
				IPv6:     e.AddrIPv6,
				Text:     e.Text,
			})
		}
	}
}
