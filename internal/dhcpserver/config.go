// Package dhcpserver implements the server side of the DHCP exchange: an
// address pool, a lease table keyed by hardware address, DISCOVER/REQUEST
// handling, and periodic lease expiry.
package dhcpserver

import (
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"
)

// Default timer values, matching the reference implementation.
const (
	DefaultLeaseTime  = 30 * time.Second
	DefaultRenewTime  = 15 * time.Second
	DefaultRebindTime = 25 * time.Second
)

// errNilConfig is returned by Validate when called on a nil *Config.
const errNilConfig errors.Error = "nil config"

// Config is the server's pool and timer configuration.
type Config struct {
	PoolNetwork netip.Prefix
	ServerAddr  netip.Addr
	MinAddr     netip.Addr
	MaxAddr     netip.Addr

	// LeaseTime is both the dynamic-lease lifetime and the expiry sweep
	// period (§4.2 of the reference this package implements). Zero means
	// DefaultLeaseTime.
	LeaseTime time.Duration
	// RenewTime (T1) and RebindTime (T2) are advertised to clients in the
	// RENEW and REBIND options. Zero means the matching default.
	RenewTime  time.Duration
	RebindTime time.Duration

	// validated fields, set by Validate.
	mask   int
	minInt uint32
	maxInt uint32
}

// Validate normalizes c in place and reports whether it describes a usable
// pool: MinAddr, MaxAddr and ServerAddr must lie in PoolNetwork, MinAddr
// must not exceed MaxAddr, and ServerAddr must fall outside
// [MinAddr, MaxAddr].
func (c *Config) Validate() (err error) {
	defer func() { err = errors.Annotate(err, "dhcpserver: %w") }()

	if c == nil {
		return errNilConfig
	}

	if !c.PoolNetwork.IsValid() || !c.PoolNetwork.Addr().Is4() {
		return errors.Error("pool network is not a valid IPv4 prefix")
	}
	if !c.ServerAddr.Is4() {
		return errors.Error("server address is not IPv4")
	}
	if !c.MinAddr.Is4() || !c.MaxAddr.Is4() {
		return errors.Error("min/max address is not IPv4")
	}

	if !c.PoolNetwork.Contains(c.ServerAddr) {
		return errors.Error("server address is outside the pool network")
	}
	if !c.PoolNetwork.Contains(c.MinAddr) {
		return errors.Error("min address is outside the pool network")
	}
	if !c.PoolNetwork.Contains(c.MaxAddr) {
		return errors.Error("max address is outside the pool network")
	}

	minInt := addrToUint32(c.MinAddr)
	maxInt := addrToUint32(c.MaxAddr)
	srvInt := addrToUint32(c.ServerAddr)

	if minInt > maxInt {
		return errors.Error("min address is greater than max address")
	}
	if srvInt >= minInt && srvInt <= maxInt {
		return errors.Error("server address falls within the dynamic range")
	}

	c.mask = c.PoolNetwork.Bits()
	c.minInt = minInt
	c.maxInt = maxInt

	if c.LeaseTime == 0 {
		c.LeaseTime = DefaultLeaseTime
	}
	if c.RenewTime == 0 {
		c.RenewTime = DefaultRenewTime
	}
	if c.RebindTime == 0 {
		c.RebindTime = DefaultRebindTime
	}

	return nil
}

// poolSize returns the number of distinct addresses in [MinAddr, MaxAddr].
func (c *Config) poolSize() uint32 { return c.maxInt - c.minInt + 1 }

func addrToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func uint32ToAddr(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
