// Package discovery advertises and browses the DNS-SD service receivers
// publish, and resolves browse results to a dialable host and port.
package discovery

import (
	"context"
	"net"
	"time"

	"remotepad/internal/logger"
)

var log = logger.For("discovery")

// Service is what a receiver publishes.
type Service struct {
	Instance string
	Type     string // e.g. "_airtype._tcp"
	Domain   string // e.g. "local."
	Port     int
	IPs      []string // explicit A/AAAA records; empty lets the registry pick
	Text     []string
}

// Instance is a browse result before resolution.
type Instance struct {
	Name     string
	Type     string
	Domain   string
	HostName string
	Port     int
	IPv4     []net.IP
	IPv6     []net.IP
	Text     []string
}

// Registration is a live advertisement.
type Registration interface {
	Shutdown()
}

// Registry publishes and browses service instances.
type Registry interface {
	Register(s Service) (Registration, error)

	// Browse calls found for every instance seen until ctx is done.
	Browse(ctx context.Context, serviceType, domain string, found func(Instance)) error
}

// Signal labels shown next to a discovered device.
const (
	SignalExcellent = "Excellent"
	SignalGood      = "Good"
	SignalFair      = "Fair"
)

// SignalFor maps the resolve round trip to a label.
func SignalFor(rtt time.Duration) string {
	switch {
	case rtt < 10*time.Millisecond:
		return SignalExcellent
	case rtt < 50*time.Millisecond:
		return SignalGood
	default:
		return SignalFair
	}
}

// DiscoveredDevice is a resolved receiver.
type DiscoveredDevice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Signal string `json:"signal"`
}

// Addr returns host:port for dialing.
func (d DiscoveredDevice) Addr() string {
	return net.JoinHostPort(d.Host, itoa(d.Port))
}
