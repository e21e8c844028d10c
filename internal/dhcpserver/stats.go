package dhcpserver

import "sync/atomic"

// Stats holds running counters exposing the server's discover/request/ack
// activity, pool-exhaustion drops and expiries as queryable
// instrumentation.
type Stats struct {
	DiscoversReceived  atomic.Uint64
	OffersSent         atomic.Uint64
	RequestsReceived   atomic.Uint64
	AcksSent           atomic.Uint64
	NacksSent          atomic.Uint64
	PoolExhaustedDrops atomic.Uint64
	Expiries           atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats suitable for logging or
// exposing over an API, since atomic.Uint64 values themselves aren't
// copyable by value in a meaningful way once in use.
type Snapshot struct {
	DiscoversReceived  uint64
	OffersSent         uint64
	RequestsReceived   uint64
	AcksSent           uint64
	NacksSent          uint64
	PoolExhaustedDrops uint64
	Expiries           uint64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		DiscoversReceived:  s.DiscoversReceived.Load(),
		OffersSent:         s.OffersSent.Load(),
		RequestsReceived:   s.RequestsReceived.Load(),
		AcksSent:           s.AcksSent.Load(),
		NacksSent:          s.NacksSent.Load(),
		PoolExhaustedDrops: s.PoolExhaustedDrops.Load(),
		Expiries:           s.Expiries.Load(),
	}
}
