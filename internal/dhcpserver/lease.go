package dhcpserver

import (
	"net"
	"net/netip"
	"sync"
)

// Status is a lease's place in its lifecycle, replacing the reference
// implementation's overloaded state integer with an explicit enum (see the
// package's design notes on lease state).
type Status int

const (
	// StatusOffered means a DISCOVER was answered with an OFFER for this
	// address but no REQUEST has confirmed it yet.
	StatusOffered Status = iota
	// StatusLeased means a REQUEST was ACKed; the address is in active use.
	StatusLeased
	// StatusExpired means the entry's countdown reached zero (or an
	// OFFERED entry was never confirmed by the next sweep) and its
	// address is reclaimable.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusOffered:
		return "OFFERED"
	case StatusLeased:
		return "LEASED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Lease is one entry of the lease table, keyed by hardware address.
type Lease struct {
	HWAddr    string // net.HardwareAddr.String(), used as the map key
	IP        netip.Addr
	Status    Status
	Remaining uint32 // seconds
	// Static marks a lease created via Table.Reserve: it is never
	// reclaimed by the expiry sweep and never allocated to another MAC.
	Static bool
}

// Table is the server's lease table: one entry per client hardware
// address, plus the allocation cursor used to hand out fresh addresses.
type Table struct {
	cfg *Config

	mu      sync.Mutex
	byMAC   map[string]*Lease
	byIP    map[netip.Addr]*Lease
	nextSeq uint32
}

// NewTable returns an empty lease table for the given, already-Validated
// config.
func NewTable(cfg *Config) *Table {
	return &Table{
		cfg:   cfg,
		byMAC: map[string]*Lease{},
		byIP:  map[netip.Addr]*Lease{},
	}
}

func macKey(mac net.HardwareAddr) string { return mac.String() }

// Lookup returns the lease currently held by mac, if any.
func (t *Table) Lookup(mac net.HardwareAddr) (*Lease, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.byMAC[macKey(mac)]
	return l, ok
}

// findExpiredLocked returns the lowest-IP EXPIRED, non-static entry, or nil.
// Callers must hold t.mu.
func (t *Table) findExpiredLocked() *Lease {
	var best *Lease
	for _, l := range t.byMAC {
		if l.Status != StatusExpired || l.Static {
			continue
		}
		if best == nil || l.IP.Less(best.IP) {
			best = l
		}
	}
	return best
}

// nextFreeLocked returns the next never-allocated address from the cursor,
// skipping addresses already held by a reserved lease, or false if the
// cursor has exhausted the pool. Callers must hold t.mu.
func (t *Table) nextFreeLocked() (netip.Addr, bool) {
	for t.nextSeq < t.cfg.poolSize() {
		ip := uint32ToAddr(t.cfg.minInt + t.nextSeq)
		t.nextSeq++
		if _, taken := t.byIP[ip]; !taken {
			return ip, true
		}
	}
	return netip.Addr{}, false
}

// Offer implements the DISCOVER handler's address-choice precedence
// (§4.2): reuse a prior OFFERED/LEASED entry for this MAC, else reclaim the
// lowest-numbered EXPIRED entry, else bump the allocation cursor. It
// reports ok=false, changing nothing, if the pool is exhausted
// (PoolExhausted).
func (t *Table) Offer(mac net.HardwareAddr, leaseTime uint32) (ip netip.Addr, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := macKey(mac)
	if l, exists := t.byMAC[key]; exists && (l.Status == StatusOffered || l.Status == StatusLeased) {
		l.Remaining = leaseTime
		return l.IP, true
	}

	if reclaimed := t.findExpiredLocked(); reclaimed != nil {
		delete(t.byMAC, reclaimed.HWAddr)
		reclaimed.HWAddr = key
		reclaimed.Status = StatusOffered
		reclaimed.Remaining = leaseTime
		t.byMAC[key] = reclaimed
		t.byIP[reclaimed.IP] = reclaimed
		return reclaimed.IP, true
	}

	ip, has := t.nextFreeLocked()
	if !has {
		return netip.Addr{}, false
	}

	l := &Lease{HWAddr: key, IP: ip, Status: StatusOffered, Remaining: leaseTime}
	t.byMAC[key] = l
	t.byIP[ip] = l
	return ip, true
}

// Confirm implements the REQUEST handler's acceptance check (§4.2.2): it
// promotes mac's entry to LEASED if one exists mapping to req, and reports
// whether the promotion happened.
func (t *Table) Confirm(mac net.HardwareAddr, req netip.Addr, leaseTime uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.byMAC[macKey(mac)]
	if !ok || l.IP != req {
		return false
	}

	l.Status = StatusLeased
	l.Remaining = leaseTime
	return true
}

// Reserve pins mac to ip as a static/administrative lease outside the
// dynamic DISCOVER/REQUEST flow; the expiry sweep never reclaims it. It
// mirrors the reference's static-lease concept (without disk persistence,
// which is out of scope).
func (t *Table) Reserve(mac net.HardwareAddr, ip netip.Addr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := macKey(mac)
	l := &Lease{HWAddr: key, IP: ip, Status: StatusLeased, Static: true}
	t.byMAC[key] = l
	t.byIP[ip] = l
}

// Sweep runs one expiry pass (§4.2 TimerHandler / Open Question 3): LEASED
// entries count down by leaseTime seconds and expire at zero; OFFERED
// entries not upgraded to LEASED by this sweep expire immediately rather
// than surviving one extra tick. It returns the number of entries that
// transitioned to EXPIRED.
func (t *Table) Sweep(leaseTime uint32) (expired int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, l := range t.byMAC {
		if l.Static {
			continue
		}
		switch l.Status {
		case StatusLeased:
			if l.Remaining <= leaseTime {
				l.Status = StatusExpired
				l.Remaining = 0
				expired++
			} else {
				l.Remaining -= leaseTime
			}
		case StatusOffered:
			l.Status = StatusExpired
			l.Remaining = 0
			expired++
		}
	}
	return expired
}

// Len returns the number of entries currently tracked, for tests and
// diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byMAC)
}
