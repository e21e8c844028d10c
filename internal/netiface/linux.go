//go:build linux

package netiface

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/vishvananda/netlink"
)

// LinuxBinder implements Binder over a real interface via netlink, the way
// dranet's driver package resolves and configures interfaces
// (netlink.LinkByName, netlink.LinkSetUp) rather than shelling out to ip(8).
type LinuxBinder struct {
	ifaceName string

	mu   sync.Mutex
	subs map[int]func(up bool)
	next int
}

// NewLinuxBinder returns a Binder bound to the named interface. The
// interface must already exist; NewLinuxBinder does not create one.
func NewLinuxBinder(ifaceName string) (*LinuxBinder, error) {
	if _, err := netlink.LinkByName(ifaceName); err != nil {
		return nil, fmt.Errorf("netiface: resolving interface %q: %w", ifaceName, err)
	}
	return &LinuxBinder{ifaceName: ifaceName, subs: map[int]func(up bool){}}, nil
}

func (b *LinuxBinder) link() (netlink.Link, error) {
	link, err := netlink.LinkByName(b.ifaceName)
	if err != nil {
		return nil, fmt.Errorf("netiface: resolving interface %q: %w", b.ifaceName, err)
	}
	return link, nil
}

// HardwareAddr implements Binder.
func (b *LinuxBinder) HardwareAddr() (net.HardwareAddr, error) {
	link, err := b.link()
	if err != nil {
		return nil, err
	}
	return link.Attrs().HardwareAddr, nil
}

// AddAddress implements Binder.
func (b *LinuxBinder) AddAddress(ip net.IP, prefixLen int) error {
	link, err := b.link()
	if err != nil {
		return err
	}
	addr := &netlink.Addr{IPNet: &net.IPNet{IP: ip, Mask: net.CIDRMask(prefixLen, 32)}}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("netiface: adding %s/%d to %q: %w", ip, prefixLen, b.ifaceName, err)
	}
	return nil
}

// RemoveAddress implements Binder.
func (b *LinuxBinder) RemoveAddress(ip net.IP, prefixLen int) error {
	link, err := b.link()
	if err != nil {
		return err
	}
	addr := &netlink.Addr{IPNet: &net.IPNet{IP: ip, Mask: net.CIDRMask(prefixLen, 32)}}
	if err := netlink.AddrDel(link, addr); err != nil {
		if errors.Is(err, syscall.EADDRNOTAVAIL) {
			return nil
		}
		return fmt.Errorf("netiface: removing %s/%d from %q: %w", ip, prefixLen, b.ifaceName, err)
	}
	return nil
}

// Subscribe implements Binder by watching link updates from
// netlink.LinkSubscribe in a background goroutine, dispatching to every registered callback.
func (b *LinuxBinder) Subscribe(cb func(up bool)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = cb
	first := len(b.subs) == 1
	b.mu.Unlock()

	if first {
		b.startWatch()
	}

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *LinuxBinder) startWatch() {
	updates := make(chan netlink.LinkUpdate)
	done := make(chan struct{})
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return
	}

	go func() {
		for upd := range updates {
			if upd.Link == nil || upd.Link.Attrs().Name != b.ifaceName {
				continue
			}
			up := upd.Link.Attrs().OperState == netlink.OperUp

			b.mu.Lock()
			cbs := make([]func(bool), 0, len(b.subs))
			for _, cb := range b.subs {
				cbs = append(cbs, cb)
			}
			empty := len(b.subs) == 0
			b.mu.Unlock()

			for _, cb := range cbs {
				cb(up)
			}
			if empty {
				close(done)
				return
			}
		}
	}()
}
