// Package dhcpclient implements the client side of the DHCP exchange: the
// DORA state machine (discover → offer collection → request → ack → bound
// → renew → rebind), retransmission, and NACK recovery.
package dhcpclient

import (
	"time"

	"github.com/AdguardTeam/golibs/errors"
)

// Default timer values, matching the reference implementation (§4.3).
const (
	DefaultCollectWindow = 5 * time.Second
	DefaultRetransmit    = 2 * time.Second
	// DefaultRequestRetryCap bounds WAIT_ACK retransmission before the
	// client moves to the next queued offer (§4.3 Request).
	DefaultRequestRetryCap = 4
)

const errNilConfig errors.Error = "nil config"

// Config is the client's interface and timing configuration.
type Config struct {
	InterfaceName string

	// CollectWindow is how long the client gathers OFFERs after a
	// DISCOVER before selecting one. Zero means DefaultCollectWindow.
	CollectWindow time.Duration
	// Retransmit (rtrs) is the fixed retry interval used while waiting
	// for an OFFER or ACK. Zero means DefaultRetransmit.
	Retransmit time.Duration
	// RequestRetryCap bounds REQUEST retransmission before falling back
	// to the next queued offer. Zero means DefaultRequestRetryCap.
	RequestRetryCap int

	// Rand draws the transaction ID, regenerated each DISCOVER cycle. If
	// nil, a math/rand-backed source is used (see Open Question: no pack
	// library supplies a uniform-uint32 generator, so this one field
	// stays on the standard library by design).
	Rand func() uint32
}

// Validate normalizes c in place.
func (c *Config) Validate() error {
	if c == nil {
		return errNilConfig
	}
	if c.InterfaceName == "" {
		return errors.Error("dhcpclient: interface name is required")
	}
	if c.CollectWindow == 0 {
		c.CollectWindow = DefaultCollectWindow
	}
	if c.Retransmit == 0 {
		c.Retransmit = DefaultRetransmit
	}
	if c.RequestRetryCap == 0 {
		c.RequestRetryCap = DefaultRequestRetryCap
	}
	return nil
}
