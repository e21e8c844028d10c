package dhcpclient

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// clientConn is the client's UDP endpoint: bound to port 68 across all
// interfaces, scoped to one interface via IP_PKTINFO control messages, the
// same filtering trick the reference server package uses (see
// dhcpserver.broadcastConn / the teacher's filterConn).
type clientConn struct {
	iface *net.Interface
	conn  *ipv4.PacketConn
}

func listenClient(iface *net.Interface, port int) (*clientConn, error) {
	pc, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("dhcpclient: listening on port %d: %w", port, err)
	}

	p := ipv4.NewPacketConn(pc)
	if err := p.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		pc.Close()
		return nil, fmt.Errorf("dhcpclient: enabling interface control messages: %w", err)
	}

	return &clientConn{iface: iface, conn: p}, nil
}

// ReadFrom blocks until a datagram arrives on cc.iface.
func (cc *clientConn) ReadFrom(b []byte) (n int, addr net.Addr, err error) {
	for {
		n, cm, addr, err := cc.conn.ReadFrom(b)
		if err != nil {
			return 0, addr, fmt.Errorf("dhcpclient: reading datagram: %w", err)
		}
		if cm != nil && cm.IfIndex != cc.iface.Index {
			continue
		}
		return n, addr, nil
	}
}

// WriteTo sends b to addr (broadcast or unicast), tagged with cc.iface.
func (cc *clientConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	cm := &ipv4.ControlMessage{IfIndex: cc.iface.Index}
	n, err := cc.conn.WriteTo(b, cm, addr)
	if err != nil {
		return n, fmt.Errorf("dhcpclient: writing datagram to %s: %w", addr, err)
	}
	return n, nil
}

// Close closes the underlying socket.
func (cc *clientConn) Close() error { return cc.conn.Close() }
