package dhcpserver

import (
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/dhcpstack/dhcpstack/internal/dhcplog"
	"github.com/dhcpstack/dhcpstack/internal/dhcpsched"
	"github.com/dhcpstack/dhcpstack/internal/dhcpwire"
)

const (
	// ClientPort is the well-known DHCP client port.
	ClientPort = 68
	// ServerPort is the well-known DHCP server port.
	ServerPort = 67
	// defaultRateLimit bounds inbound datagram processing against a
	// malformed-packet flood (§11 of the package's expanded spec).
	defaultRateLimit = 100
)

var broadcastAddr = &net.UDPAddr{IP: net.IPv4bcast, Port: ClientPort}

// packetConn is the narrow socket surface Server needs, satisfied by
// *broadcastConn; tests substitute a fake to exercise the handlers without
// a real interface.
type packetConn interface {
	ReadFrom(b []byte) (n int, addr net.Addr, err error)
	WriteTo(b []byte, addr net.Addr) (n int, err error)
	Close() error
}

// Server owns an address pool, a lease table, and a UDP broadcast socket,
// answering DISCOVER with OFFER and REQUEST with ACK/NACK (§4.2).
type Server struct {
	cfg    *Config
	table  *Table
	sched  dhcpsched.Scheduler
	logger dhcplog.Logger
	stats  Stats

	ifaceName string
	iface     *net.Interface
	conn      packetConn

	sweepTimer *dhcpsched.NamedTimer

	actions chan func()
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New validates cfg and returns a Server ready to Start on ifaceName.
func New(cfg *Config, ifaceName string, sched dhcpsched.Scheduler, logger dhcplog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = dhcplog.Default
	}

	s := &Server{
		cfg:       cfg,
		table:     NewTable(cfg),
		sched:     sched,
		logger:    logger,
		ifaceName: ifaceName,
	}
	s.sweepTimer = dhcpsched.NewNamedTimer(sched)
	return s, nil
}

// Stats returns the server's running counters.
func (s *Server) Stats() Snapshot { return s.stats.Snapshot() }

// Table returns the server's lease table, e.g. to call Reserve for a
// static/administrative lease before Start.
func (s *Server) Table() *Table { return s.table }

// Start binds the broadcast socket on port 67 and arms the expiry sweep
// (§4.2 Startup).
func (s *Server) Start() error {
	iface, err := net.InterfaceByName(s.ifaceName)
	if err != nil {
		return fmt.Errorf("dhcpserver: resolving interface %q: %w", s.ifaceName, err)
	}
	s.iface = iface

	conn, err := listenBroadcast(iface, ServerPort, defaultRateLimit)
	if err != nil {
		return err
	}
	s.conn = conn

	s.actions = make(chan func(), 64)
	s.stopCh = make(chan struct{})

	s.wg.Add(2)
	go s.recvLoop()
	go s.dispatchLoop()

	s.armSweep()

	s.logger.Infof("dhcpserver: listening on %s:%d", s.ifaceName, ServerPort)
	return nil
}

// Stop cancels the sweep timer and closes the socket (§4.2 Shutdown).
func (s *Server) Stop() {
	s.sweepTimer.Cancel()
	if s.conn != nil {
		s.conn.Close()
	}
	if s.stopCh != nil {
		close(s.stopCh)
	}
	s.wg.Wait()
	s.logger.Infof("dhcpserver: stopped")
}

func (s *Server) recvLoop() {
	defer s.wg.Done()

	buf := make([]byte, 1500)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			// Closed by Stop, or a transient read error; either way
			// the recv side is done.
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case s.actions <- func() { s.handleDatagram(data, addr) }:
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) dispatchLoop() {
	defer s.wg.Done()

	for {
		select {
		case fn := <-s.actions:
			fn()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) armSweep() {
	s.sweepTimer.Arm(s.cfg.LeaseTime, func() {
		select {
		case s.actions <- s.handleSweep:
		case <-s.stopCh:
		}
	})
}

func (s *Server) handleSweep() {
	expired := s.table.Sweep(uint32(s.cfg.LeaseTime.Seconds()))
	if expired > 0 {
		s.stats.Expiries.Add(uint64(expired))
		s.logger.Debugf("dhcpserver: expiry sweep reclaimed %d lease(s)", expired)
	}
	s.armSweep()
}

func (s *Server) handleDatagram(data []byte, from net.Addr) {
	hdr, err := dhcpwire.Deserialize(data)
	if err != nil {
		s.logger.Warnf("dhcpserver: malformed packet from %s: %s", from, err)
		return
	}
	if !hdr.Options.HasMsgType {
		s.logger.Debugf("dhcpserver: dropping message with no msgtype from %s", from)
		return
	}

	switch hdr.Options.MsgType {
	case dhcpwire.MsgDiscover:
		s.stats.DiscoversReceived.Add(1)
		s.handleDiscover(hdr)
	case dhcpwire.MsgRequest:
		s.stats.RequestsReceived.Add(1)
		s.handleRequest(hdr)
	default:
		s.logger.Debugf("dhcpserver: dropping unsupported msgtype %s from %s", hdr.Options.MsgType, from)
	}
}

func chaddr(h *dhcpwire.Header) net.HardwareAddr {
	return net.HardwareAddr(append([]byte(nil), h.ChAddr[:h.HLen]...))
}

// handleDiscover implements SendOffer (§4.2).
func (s *Server) handleDiscover(req *dhcpwire.Header) {
	mac := chaddr(req)

	ip, ok := s.table.Offer(mac, uint32(s.cfg.LeaseTime.Seconds()))
	if !ok {
		s.stats.PoolExhaustedDrops.Add(1)
		s.logger.Warnf("dhcpserver: pool exhausted, dropping DISCOVER from %s", mac)
		return
	}

	resp := s.replyPrologue(req)
	resp.YiAddr = ip.As4()
	resp.Options.HasMsgType = true
	resp.Options.MsgType = dhcpwire.MsgOffer
	s.setLeaseOptions(resp)

	s.broadcast(resp)
	s.stats.OffersSent.Add(1)
}

// handleRequest implements SendAck (§4.2). The requested address is ADDREQ
// when present; a renewing client in REFRESH_LEASE (§4.3 Refresh) sends no
// ADDREQ and identifies itself by ciaddr instead, so that is the fallback.
func (s *Server) handleRequest(req *dhcpwire.Header) {
	mac := chaddr(req)

	reqBytes, hasReq := req.Options.RequestedAddr, req.Options.HasRequestedAddr
	if !hasReq && req.CiAddr != [4]byte{} {
		reqBytes, hasReq = req.CiAddr, true
	}

	if hasReq {
		reqIP := netip.AddrFrom4(reqBytes)
		reqInt := addrToUint32(reqIP)

		if reqInt >= s.cfg.minInt && reqInt <= s.cfg.maxInt &&
			s.table.Confirm(mac, reqIP, uint32(s.cfg.LeaseTime.Seconds())) {
			resp := s.replyPrologue(req)
			resp.YiAddr = reqIP.As4()
			resp.Options.HasMsgType = true
			resp.Options.MsgType = dhcpwire.MsgAck
			s.setLeaseOptions(resp)

			s.broadcast(resp)
			s.stats.AcksSent.Add(1)
			return
		}
	}

	resp := s.replyPrologue(req)
	resp.Options.HasMsgType = true
	resp.Options.MsgType = dhcpwire.MsgNack
	resp.Options.HasServerID = true
	resp.Options.ServerID = s.cfg.ServerAddr.As4()

	s.broadcast(resp)
	s.stats.NacksSent.Add(1)
}

// replyPrologue builds the common BOOTP prologue for an OFFER/ACK/NACK,
// copying xid and chaddr from the request as the DORA handshake requires.
func (s *Server) replyPrologue(req *dhcpwire.Header) *dhcpwire.Header {
	resp := &dhcpwire.Header{
		Bootp:  dhcpwire.OpBootReply,
		HType:  req.HType,
		HLen:   req.HLen,
		Xid:    req.Xid,
		SiAddr: s.cfg.ServerAddr.As4(),
	}
	copy(resp.ChAddr[:], req.ChAddr[:])
	return resp
}

func (s *Server) setLeaseOptions(resp *dhcpwire.Header) {
	resp.Options.HasServerID = true
	resp.Options.ServerID = s.cfg.ServerAddr.As4()
	resp.Options.HasSubnetMask = true
	mask := net.CIDRMask(s.cfg.mask, 32)
	resp.Options.SubnetMask = [4]byte{mask[0], mask[1], mask[2], mask[3]}
	resp.Options.HasLeaseTime = true
	resp.Options.LeaseTime = uint32(s.cfg.LeaseTime.Seconds())
	resp.Options.HasRenewTime = true
	resp.Options.RenewTime = uint32(s.cfg.RenewTime.Seconds())
	resp.Options.HasRebindTime = true
	resp.Options.RebindTime = uint32(s.cfg.RebindTime.Seconds())
}

func (s *Server) broadcast(h *dhcpwire.Header) {
	if _, err := s.conn.WriteTo(dhcpwire.Serialize(h), broadcastAddr); err != nil {
		s.logger.Warnf("dhcpserver: broadcasting %s: %s", h.Options.MsgType, err)
	}
}
