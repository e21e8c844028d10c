package dhcpclient

import (
	"net"
	"net/netip"

	"github.com/dhcpstack/dhcpstack/internal/dhcpwire"
)

// boot starts (or restarts) the DORA handshake: clear collected offers,
// cancel every timer, draw a fresh transaction id, and broadcast a
// DISCOVER (§4.3 Boot).
func (c *Client) boot() {
	c.cancelAllTimers()

	c.mu.Lock()
	c.offers = nil
	c.retries = 0
	c.xid = c.cfg.Rand()
	c.state = StateWaitOffer
	xid := c.xid
	c.mu.Unlock()

	c.sendDiscover(xid)
	c.stats.DiscoversSent.Add(1)
	c.logger.Infof("dhcpclient[%s]: boot, xid=%#x", c.sessionID, xid)

	c.discoverTimer.Arm(c.cfg.Retransmit, func() { c.post(func() { c.retransmitDiscover() }) })
	c.nextOfferTimer.Arm(c.cfg.CollectWindow, func() { c.post(c.selectOffer) })
}

func (c *Client) retransmitDiscover() {
	c.mu.Lock()
	if c.state != StateWaitOffer {
		c.mu.Unlock()
		return
	}
	xid := c.xid
	c.mu.Unlock()

	c.sendDiscover(xid)
	c.stats.DiscoversSent.Add(1)
	c.discoverTimer.Arm(c.cfg.Retransmit, func() { c.post(func() { c.retransmitDiscover() }) })
}

func (c *Client) sendDiscover(xid uint32) {
	h := c.prologue(xid)
	h.Options.HasMsgType = true
	h.Options.MsgType = dhcpwire.MsgDiscover
	c.send(h, broadcast67)
}

// offerHandler collects an OFFER while WAIT_OFFER is open (§4.3
// OfferHandler). The collection window's NamedTimer is left running; it is
// what eventually triggers selectOffer.
func (c *Client) offerHandler(h *dhcpwire.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateWaitOffer {
		return
	}
	c.offers = append(c.offers, h)
	c.stats.OffersReceived.Add(1)
}

// selectOffer fires when the collection window closes. An empty offer list
// restarts Boot; otherwise the head offer is dequeued and Request begins
// (§4.3 Select).
func (c *Client) selectOffer() {
	c.mu.Lock()
	if c.state != StateWaitOffer {
		c.mu.Unlock()
		return
	}
	if len(c.offers) == 0 {
		c.mu.Unlock()
		c.boot()
		return
	}
	offer := c.offers[0]
	c.offers = c.offers[1:]
	c.mu.Unlock()

	c.discoverTimer.Cancel()
	c.request(offer)
}

// request records the offered address, mask, server, and lease timing, then
// sends a broadcast REQUEST for it and arms bounded retransmission (§4.3
// Request).
func (c *Client) request(offer *dhcpwire.Header) {
	c.mu.Lock()
	c.bnd.myAddr = netip.AddrFrom4(offer.YiAddr)
	if offer.Options.HasSubnetMask {
		ones, _ := net.IPMask(offer.Options.SubnetMask[:]).Size()
		c.bnd.prefixLen = ones
	} else {
		c.bnd.prefixLen = 32
	}
	if offer.Options.HasServerID {
		c.bnd.serverAddr = netip.AddrFrom4(offer.Options.ServerID)
	} else {
		c.bnd.serverAddr = netip.AddrFrom4(offer.SiAddr)
	}
	if offer.Options.HasLeaseTime {
		c.bnd.leaseSecs = offer.Options.LeaseTime
	}
	if offer.Options.HasRenewTime {
		c.bnd.renewSecs = offer.Options.RenewTime
	}
	if offer.Options.HasRebindTime {
		c.bnd.rebindSecs = offer.Options.RebindTime
	}
	c.retries = 0
	c.state = StateWaitAck
	xid := c.xid
	reqAddr := offer.YiAddr
	serverID := c.bnd.serverAddr
	c.mu.Unlock()

	c.sendRequest(xid, reqAddr, serverID, true)
	c.requestTimer.Arm(c.cfg.Retransmit, func() { c.post(c.retransmitRequest) })
}

func (c *Client) retransmitRequest() {
	c.mu.Lock()
	if c.state != StateWaitAck {
		c.mu.Unlock()
		return
	}
	c.retries++
	if c.retries >= c.cfg.RequestRetryCap {
		next := c.dequeueNextOfferLocked()
		c.mu.Unlock()
		if next != nil {
			c.discoverTimer.Cancel()
			c.request(next)
			return
		}
		c.boot()
		return
	}
	xid := c.xid
	reqAddr := c.bnd.myAddr.As4()
	serverID := c.bnd.serverAddr
	c.mu.Unlock()

	c.sendRequest(xid, reqAddr, serverID, true)
	c.requestTimer.Arm(c.cfg.Retransmit, func() { c.post(c.retransmitRequest) })
}

func (c *Client) dequeueNextOfferLocked() *dhcpwire.Header {
	if len(c.offers) == 0 {
		return nil
	}
	next := c.offers[0]
	c.offers = c.offers[1:]
	return next
}

func (c *Client) sendRequest(xid uint32, reqAddr [4]byte, serverID netip.Addr, includeAddReq bool) {
	h := c.prologue(xid)
	h.Options.HasMsgType = true
	h.Options.MsgType = dhcpwire.MsgRequest
	if includeAddReq {
		h.Options.HasRequestedAddr = true
		h.Options.RequestedAddr = reqAddr
	} else {
		h.CiAddr = reqAddr
	}
	if serverID.IsValid() {
		h.Options.HasServerID = true
		h.Options.ServerID = serverID.As4()
	}
	c.send(h, broadcast67)
	c.stats.RequestsSent.Add(1)
}

// acceptAck handles an ACK or NACK in WAIT_ACK or REFRESH_LEASE (§4.3
// AcceptAck).
func (c *Client) acceptAck(h *dhcpwire.Header) {
	if h.Options.MsgType == dhcpwire.MsgNack {
		c.stats.NacksReceived.Add(1)
		c.cancelAllTimers()
		c.boot()
		return
	}
	c.stats.AcksReceived.Add(1)

	c.mu.Lock()
	wasBound := c.state == StateRefreshLease
	c.bnd.myAddr = netip.AddrFrom4(h.YiAddr)
	if h.Options.HasSubnetMask {
		ones, _ := net.IPMask(h.Options.SubnetMask[:]).Size()
		c.bnd.prefixLen = ones
	}
	if h.Options.HasServerID {
		c.bnd.remoteAddr = netip.AddrFrom4(h.Options.ServerID)
	} else {
		c.bnd.remoteAddr = netip.AddrFrom4(h.SiAddr)
	}
	if h.Options.HasLeaseTime {
		c.bnd.leaseSecs = h.Options.LeaseTime
	}
	if h.Options.HasRenewTime {
		c.bnd.renewSecs = h.Options.RenewTime
	}
	if h.Options.HasRebindTime {
		c.bnd.rebindSecs = h.Options.RebindTime
	}
	c.state = StateRefreshLease
	addr := c.bnd.myAddr
	prefixLen := c.bnd.prefixLen
	renew := c.bnd.renewSecs
	rebind := c.bnd.rebindSecs
	lease := c.bnd.leaseSecs
	c.mu.Unlock()

	c.requestTimer.Cancel()
	c.nextOfferTimer.Cancel()

	if !wasBound {
		_ = c.binder.RemoveAddress(net.IPv4zero, 0)
		_ = c.binder.AddAddress(net.IP(addr.AsSlice()), prefixLen)
		c.logger.Infof("dhcpclient[%s]: bound %s/%d, lease=%ds", c.sessionID, addr, prefixLen, lease)
	}

	c.armLeaseTimers(renew, rebind, lease)
}

func (c *Client) armLeaseTimers(renewSecs, rebindSecs, leaseSecs uint32) {
	c.refreshTimer.Arm(secondsToDuration(renewSecs), func() { c.post(c.refresh) })
	c.rebindTimer.Arm(secondsToDuration(rebindSecs), func() { c.post(c.rebind) })
	c.timeoutTimer.Arm(secondsToDuration(leaseSecs), func() { c.post(c.timeout) })
}

// refresh unicasts a renewal REQUEST at T1: ciaddr set, no ADDREQ, no
// SERVID broadcast (§4.3 Refresh).
func (c *Client) refresh() {
	c.mu.Lock()
	if c.state != StateRefreshLease {
		c.mu.Unlock()
		return
	}
	xid := c.xid
	myAddr := c.bnd.myAddr.As4()
	server := c.bnd.remoteAddr
	c.mu.Unlock()

	h := c.prologue(xid)
	h.Options.HasMsgType = true
	h.Options.MsgType = dhcpwire.MsgRequest
	h.CiAddr = myAddr

	dst := &net.UDPAddr{IP: net.IP(server.AsSlice()), Port: serverPort}
	c.send(h, dst)
	c.stats.Renewals.Add(1)
}

// rebind broadcasts a renewal REQUEST at T2 when the original server hasn't
// answered (§4.3 Rebind).
func (c *Client) rebind() {
	c.mu.Lock()
	if c.state != StateRefreshLease {
		c.mu.Unlock()
		return
	}
	xid := c.xid
	myAddr := c.bnd.myAddr.As4()
	c.mu.Unlock()

	h := c.prologue(xid)
	h.Options.HasMsgType = true
	h.Options.MsgType = dhcpwire.MsgRequest
	h.CiAddr = myAddr

	c.send(h, broadcast67)
	c.stats.Rebinds.Add(1)
}

// timeout is the hard lease expiry: tear down the interface binding and
// return to Boot (§4.3 Timeout).
func (c *Client) timeout() {
	c.mu.Lock()
	if c.state != StateRefreshLease {
		c.mu.Unlock()
		return
	}
	addr := c.bnd.myAddr
	prefixLen := c.bnd.prefixLen
	c.bnd = bound{}
	c.mu.Unlock()

	_ = c.binder.RemoveAddress(net.IP(addr.AsSlice()), prefixLen)
	_ = c.binder.AddAddress(net.IPv4zero, 0)
	c.stats.Timeouts.Add(1)
	c.logger.Warnf("dhcpclient[%s]: lease on %s expired, rebooting", c.sessionID, addr)

	c.boot()
}

// netHandler parses an inbound datagram and dispatches it by message type
// and current state (§4.3 NetHandler). Messages whose transaction id
// doesn't match the current one are dropped; server-identity matching is
// not enforced in REFRESH_LEASE, since Rebind broadcasts to any reachable
// server.
func (c *Client) netHandler(data []byte, _ net.Addr) {
	h, err := dhcpwire.Deserialize(data)
	if err != nil {
		c.logger.Warnf("dhcpclient: dropping malformed datagram: %s", err)
		return
	}
	if !h.Options.HasMsgType {
		return
	}

	c.mu.Lock()
	xid := c.xid
	state := c.state
	c.mu.Unlock()

	if h.Xid != xid {
		return
	}

	switch {
	case h.Options.MsgType == dhcpwire.MsgOffer && state == StateWaitOffer:
		c.offerHandler(h)
	case (h.Options.MsgType == dhcpwire.MsgAck || h.Options.MsgType == dhcpwire.MsgNack) &&
		(state == StateWaitAck || state == StateRefreshLease):
		c.acceptAck(h)
	default:
	}
}

func (c *Client) prologue(xid uint32) *dhcpwire.Header {
	h := &dhcpwire.Header{
		Bootp: dhcpwire.OpBootRequest,
		HType: 1,
		HLen:  uint8(len(c.mac)),
		Xid:   xid,
	}
	copy(h.ChAddr[:], c.mac)
	return h
}

func (c *Client) send(h *dhcpwire.Header, addr net.Addr) {
	b := dhcpwire.Serialize(h)
	if _, err := c.conn.WriteTo(b, addr); err != nil {
		c.logger.Warnf("dhcpclient: send failed: %s", err)
	}
}
