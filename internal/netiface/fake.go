package netiface

import (
	"net"
	"sync"
)

// Fake is an in-memory Binder for tests and non-Linux platforms: address
// add/remove calls are recorded rather than applied to a real interface,
// and link state is driven by SetLinkUp instead of netlink events.
type Fake struct {
	hwAddr net.HardwareAddr

	mu        sync.Mutex
	addrs     map[string]bool
	up        bool
	listeners []func(bool)
}

// NewFake returns a Fake Binder reporting hwAddr as its hardware address,
// initially link-up.
func NewFake(hwAddr net.HardwareAddr) *Fake {
	return &Fake{hwAddr: hwAddr, addrs: map[string]bool{}, up: true}
}

// HardwareAddr implements Binder.
func (f *Fake) HardwareAddr() (net.HardwareAddr, error) { return f.hwAddr, nil }

func key(ip net.IP, prefixLen int) string {
	return ip.String() + "/" + net.CIDRMask(prefixLen, 32).String()
}

// AddAddress implements Binder.
func (f *Fake) AddAddress(ip net.IP, prefixLen int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrs[key(ip, prefixLen)] = true
	return nil
}

// RemoveAddress implements Binder.
func (f *Fake) RemoveAddress(ip net.IP, prefixLen int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.addrs, key(ip, prefixLen))
	return nil
}

// Addresses reports every address currently believed bound, for test
// assertions.
func (f *Fake) Addresses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.addrs))
	for k := range f.addrs {
		out = append(out, k)
	}
	return out
}

// Subscribe implements Binder.
func (f *Fake) Subscribe(cb func(up bool)) func() {
	f.mu.Lock()
	idx := len(f.listeners)
	f.listeners = append(f.listeners, cb)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listeners[idx] = nil
	}
}

// SetLinkUp changes the fake link state and notifies every subscriber.
func (f *Fake) SetLinkUp(up bool) {
	f.mu.Lock()
	f.up = up
	cbs := make([]func(bool), len(f.listeners))
	copy(cbs, f.listeners)
	f.mu.Unlock()

	for _, cb := range cbs {
		if cb != nil {
			cb(up)
		}
	}
}
