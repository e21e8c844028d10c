package dhcpserver

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"
)

// broadcastConn listens on a UDP port across all interfaces but, like the
// reference's filterConn, tags outgoing writes with a specific interface
// via IP_PKTINFO control messages rather than binding to one interface's
// address directly (binding to an address hides broadcast datagrams from
// clients that haven't configured one yet).
type broadcastConn struct {
	iface *net.Interface
	conn  *ipv4.PacketConn
	// limiter guards the lease table against a flood of malformed or
	// adversarial datagrams; it has no analogue in the reference
	// implementation, whose go.mod nonetheless already carries
	// golang.org/x/time/rate as an indirect dependency.
	limiter *rate.Limiter
}

// listenBroadcast opens a UDP listener on port, scoped to iface, with a
// token-bucket limiter admitting at most ratePerSec datagrams/second
// (burst of the same size).
func listenBroadcast(iface *net.Interface, port int, ratePerSec int) (*broadcastConn, error) {
	pc, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("dhcpserver: listening on port %d: %w", port, err)
	}

	p := ipv4.NewPacketConn(pc)
	if err := p.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		pc.Close()
		return nil, fmt.Errorf("dhcpserver: enabling interface control messages: %w", err)
	}

	return &broadcastConn{
		iface:   iface,
		conn:    p,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}, nil
}

// ReadFrom blocks until a datagram arrives on bc.iface, discarding ones
// from other interfaces and ones rejected by the rate limiter.
func (bc *broadcastConn) ReadFrom(b []byte) (n int, addr net.Addr, err error) {
	for {
		n, cm, addr, err := bc.conn.ReadFrom(b)
		if err != nil {
			return 0, addr, fmt.Errorf("dhcpserver: reading datagram: %w", err)
		}
		if cm != nil && cm.IfIndex != bc.iface.Index {
			continue
		}
		if !bc.limiter.Allow() {
			continue
		}
		return n, addr, nil
	}
}

// WriteTo broadcasts b to addr, tagged with bc.iface.
func (bc *broadcastConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	cm := &ipv4.ControlMessage{IfIndex: bc.iface.Index}
	n, err := bc.conn.WriteTo(b, cm, addr)
	if err != nil {
		return n, fmt.Errorf("dhcpserver: writing datagram to %s: %w", addr, err)
	}
	return n, nil
}

// Close closes the underlying socket.
func (bc *broadcastConn) Close() error { return bc.conn.Close() }
