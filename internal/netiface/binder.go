// Package netiface implements the "interface / L3 binding" collaborator the
// client and server consume to read a network interface's hardware address
// and to add or remove IPv4 addresses bound to it.
package netiface

import "net"

// Binder is the narrow interface the client and server hold instead of
// talking to the host network stack directly, so tests can substitute a
// fake implementation.
type Binder interface {
	// HardwareAddr returns the interface's link-layer address.
	HardwareAddr() (net.HardwareAddr, error)
	// AddAddress binds ip/prefixLen to the interface.
	AddAddress(ip net.IP, prefixLen int) error
	// RemoveAddress unbinds a previously-added address. Removing an
	// address that isn't currently bound is not an error.
	RemoveAddress(ip net.IP, prefixLen int) error
	// Subscribe registers cb to run whenever the interface's link state
	// (up/down) changes, and returns a function that unregisters it.
	Subscribe(cb func(up bool)) (unsubscribe func())
}
