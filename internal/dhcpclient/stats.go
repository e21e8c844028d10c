package dhcpclient

import "sync/atomic"

// Stats holds running counters exposing the client's discover/request/ack
// activity as queryable instrumentation, mirroring the shape of Fuchsia
// netstack's dhcp.Client Stats/Info fields.
type Stats struct {
	DiscoversSent  atomic.Uint64
	OffersReceived atomic.Uint64
	RequestsSent   atomic.Uint64
	AcksReceived   atomic.Uint64
	NacksReceived  atomic.Uint64
	Renewals       atomic.Uint64
	Rebinds        atomic.Uint64
	Timeouts       atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	DiscoversSent  uint64
	OffersReceived uint64
	RequestsSent   uint64
	AcksReceived   uint64
	NacksReceived  uint64
	Renewals       uint64
	Rebinds        uint64
	Timeouts       uint64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		DiscoversSent:  s.DiscoversSent.Load(),
		OffersReceived: s.OffersReceived.Load(),
		RequestsSent:   s.RequestsSent.Load(),
		AcksReceived:   s.AcksReceived.Load(),
		NacksReceived:  s.NacksReceived.Load(),
		Renewals:       s.Renewals.Load(),
		Rebinds:        s.Rebinds.Load(),
		Timeouts:       s.Timeouts.Load(),
	}
}
