package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Memory is an in-process registry. Receivers and controllers sharing one
// Memory find each other without touching the network.
type Memory struct {
	mu       sync.Mutex
	services map[string]Service
	watchers map[*memWatcher]struct{}
}

type memWatcher struct {
	ctx         context.Context
	serviceType string
	domain      string
	found       func(Instance)
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{
		services: make(map[string]Service),
		watchers: make(map[*memWatcher]struct{}),
	}
}

func memKey(instance, serviceType, domain string) string {
	return instance + "." + serviceType + "." + domain
}

type memRegistration struct {
	once sync.Once
	m    *Memory
	key  string
}

func (r *memRegistration) Shutdown() {
	r.once.Do(func() {
		r.m.mu.Lock()
		delete(r.m.services, r.key)
		r.m.mu.Unlock()
	})
}

// Register publishes s and notifies running browsers.
func (m *Memory) Register(s Service) (Registration, error) {
	key := memKey(s.Instance, s.Type, s.Domain)

	m.mu.Lock()
	if _, dup := m.services[key]; dup {
		m.mu.Unlock()
		return nil, fmt.Errorf("register %s: instance already published", key)
	}
	m.services[key] = s
	var notify []*memWatcher
	for w := range m.watchers {
		if w.serviceType == s.Type && w.domain == s.Domain {
			notify = append(notify, w)
		}
	}
	m.mu.Unlock()

	inst := s.instance()
	for _, w := range notify {
		if w.ctx.Err() == nil {
			w.found(inst)
		}
	}
	return &memRegistration{m: m, key: key}, nil
}

// Browse reports current and future instances until ctx is done.
func (m *Memory) Browse(ctx context.Context, serviceType, domain string, found func(Instance)) error {
	w := &memWatcher{ctx: ctx, serviceType: serviceType, domain: domain, found: found}

	m.mu.Lock()
	var existing []Instance
	for _, s := range m.services {
		if s.Type == serviceType && s.Domain == domain {
			existing = append(existing, s.instance())
		}
	}
	m.watchers[w] = struct{}{}
	m.mu.Unlock()

	for _, inst := range existing {
		found(inst)
	}

	<-ctx.Done()

	m.mu.Lock()
	delete(m.watchers, w)
	m.mu.Unlock()
	return nil
}

// Len reports how many instances are published.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.services)
}

func (s Service) instance() Instance {
	inst := Instance{
		Name:     s.Instance,
		Type:     s.Type,
		Domain:   s.Domain,
		HostName: hostLabel(s.Instance) + ".local.",
		Port:     s.Port,
		Text:     s.Text,
	}
	for _, raw := range s.IPs {
		ip := net.ParseIP(raw)
		switch {
		case ip == nil:
		case ip.To4() != nil:
			inst.IPv4 = append(inst.IPv4, ip)
		default:
			inst.IPv6 = append(inst.IPv6, ip)
		}
	}
	if len(inst.IPv4) == 0 && len(inst.IPv6) == 0 {
		inst.IPv4 = []net.IP{net.IPv4(127, 0, 0, 1)}
	}
	return inst
}
