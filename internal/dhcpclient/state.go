package dhcpclient

// State is the client's place in the DORA handshake (§4.3).
type State int

const (
	// StateUnconfigured is the implicit state before the first DISCOVER,
	// and the state the client returns to on link-down. NACK and hard
	// lease expiry restart Boot directly, which leaves the client in
	// StateWaitOffer.
	StateUnconfigured State = iota
	// StateWaitOffer is entered on Boot: a DISCOVER has been sent and
	// the client is collecting OFFERs until the collection window
	// closes.
	StateWaitOffer
	// StateWaitAck is entered once an offer is selected: a REQUEST has
	// been sent and the client awaits ACK or NACK.
	StateWaitAck
	// StateRefreshLease is the bound state: the client holds a lease and
	// is tracking its renew/rebind/expiry timers.
	StateRefreshLease
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "UNCONFIGURED"
	case StateWaitOffer:
		return "WAIT_OFFER"
	case StateWaitAck:
		return "WAIT_ACK"
	case StateRefreshLease:
		return "REFRESH_LEASE"
	default:
		return "UNKNOWN"
	}
}
