package dhcpserver

import (
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcpstack/dhcpstack/internal/dhcplog"
	"github.com/dhcpstack/dhcpstack/internal/dhcpsched"
	"github.com/dhcpstack/dhcpstack/internal/dhcpwire"
)

// fakeConn records every WriteTo call instead of touching a real socket.
type fakeConn struct {
	mu  sync.Mutex
	out [][]byte
}

func (f *fakeConn) ReadFrom([]byte) (int, net.Addr, error) {
	select {} // never called in these tests; Server only needs WriteTo.
}

func (f *fakeConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), b...)
	f.out = append(f.out, cp)
	return len(b), nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) last(t *testing.T) *dhcpwire.Header {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.out)
	h, err := dhcpwire.Deserialize(f.out[len(f.out)-1])
	require.NoError(t, err)
	return h
}

func newTestServer(t *testing.T) (*Server, *fakeConn) {
	t.Helper()

	cfg := &Config{
		PoolNetwork: netip.MustParsePrefix("10.0.0.0/24"),
		ServerAddr:  netip.MustParseAddr("10.0.0.1"),
		MinAddr:     netip.MustParseAddr("10.0.0.10"),
		MaxAddr:     netip.MustParseAddr("10.0.0.100"),
		LeaseTime:   30 * time.Second,
		RenewTime:   15 * time.Second,
		RebindTime:  25 * time.Second,
	}
	s, err := New(cfg, "unused0", dhcpsched.NewFake(time.Unix(0, 0)), dhcplog.Empty{})
	require.NoError(t, err)

	conn := &fakeConn{}
	s.conn = conn
	return s, conn
}

func discoverHeader(xid uint32, mac net.HardwareAddr) *dhcpwire.Header {
	h := &dhcpwire.Header{
		Bootp: dhcpwire.OpBootRequest,
		HLen:  uint8(len(mac)),
		Xid:   xid,
	}
	copy(h.ChAddr[:], mac)
	h.Options.HasMsgType = true
	h.Options.MsgType = dhcpwire.MsgDiscover
	return h
}

func requestHeader(xid uint32, mac net.HardwareAddr, addreq netip.Addr) *dhcpwire.Header {
	h := &dhcpwire.Header{
		Bootp: dhcpwire.OpBootRequest,
		HLen:  uint8(len(mac)),
		Xid:   xid,
	}
	copy(h.ChAddr[:], mac)
	h.Options.HasMsgType = true
	h.Options.MsgType = dhcpwire.MsgRequest
	h.Options.HasRequestedAddr = true
	h.Options.RequestedAddr = addreq.As4()
	return h
}

func TestServerDiscoverSendsOffer(t *testing.T) {
	t.Parallel()

	s, conn := newTestServer(t)
	m := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

	s.handleDiscover(discoverHeader(0xdeadbeef, m))

	resp := conn.last(t)
	assert.Equal(t, dhcpwire.MsgOffer, resp.Options.MsgType)
	assert.Equal(t, uint32(0xdeadbeef), resp.Xid)
	assert.Equal(t, netip.MustParseAddr("10.0.0.10").As4(), resp.YiAddr)
	assert.Equal(t, uint64(1), s.Stats().OffersSent)
}

func TestServerDiscoverThenRequestAck(t *testing.T) {
	t.Parallel()

	s, conn := newTestServer(t)
	m := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

	s.handleDiscover(discoverHeader(1, m))
	offered := conn.last(t).YiAddr

	s.handleRequest(requestHeader(1, m, netip.AddrFrom4(offered)))
	resp := conn.last(t)

	assert.Equal(t, dhcpwire.MsgAck, resp.Options.MsgType)
	assert.Equal(t, offered, resp.YiAddr)
	assert.Equal(t, uint64(1), s.Stats().AcksSent)
}

func TestServerRequestOutsidePoolGetsNack(t *testing.T) {
	t.Parallel()

	s, conn := newTestServer(t)
	m := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

	s.handleRequest(requestHeader(1, m, netip.MustParseAddr("192.168.1.1")))
	resp := conn.last(t)

	assert.Equal(t, dhcpwire.MsgNack, resp.Options.MsgType)
	assert.Equal(t, uint64(1), s.Stats().NacksSent)
}

func TestServerPoolExhaustedDrops(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		PoolNetwork: netip.MustParsePrefix("10.0.0.0/24"),
		ServerAddr:  netip.MustParseAddr("10.0.0.12"),
		MinAddr:     netip.MustParseAddr("10.0.0.10"),
		MaxAddr:     netip.MustParseAddr("10.0.0.10"),
	}
	s, err := New(cfg, "unused0", dhcpsched.NewFake(time.Unix(0, 0)), dhcplog.Empty{})
	require.NoError(t, err)
	conn := &fakeConn{}
	s.conn = conn

	s.handleDiscover(discoverHeader(1, net.HardwareAddr{0, 0, 0, 0, 0, 1}))
	require.Len(t, conn.out, 1)

	s.handleDiscover(discoverHeader(2, net.HardwareAddr{0, 0, 0, 0, 0, 2}))
	assert.Len(t, conn.out, 1, "second DISCOVER should be dropped, not answered")
	assert.Equal(t, uint64(1), s.Stats().PoolExhaustedDrops)
}

func TestServerSweepExpiresAndReclaims(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		PoolNetwork: netip.MustParsePrefix("10.0.0.0/24"),
		ServerAddr:  netip.MustParseAddr("10.0.0.12"),
		MinAddr:     netip.MustParseAddr("10.0.0.10"),
		MaxAddr:     netip.MustParseAddr("10.0.0.10"),
		LeaseTime:   30 * time.Second,
	}
	s, err := New(cfg, "unused0", dhcpsched.NewFake(time.Unix(0, 0)), dhcplog.Empty{})
	require.NoError(t, err)
	conn := &fakeConn{}
	s.conn = conn

	m1 := net.HardwareAddr{0, 0, 0, 0, 0, 1}
	s.handleDiscover(discoverHeader(1, m1))
	offered := conn.last(t).YiAddr
	s.handleRequest(requestHeader(1, m1, netip.AddrFrom4(offered)))

	s.handleSweep()
	assert.Equal(t, uint64(1), s.Stats().Expiries)

	m2 := net.HardwareAddr{0, 0, 0, 0, 0, 2}
	s.handleDiscover(discoverHeader(2, m2))
	reallocated := conn.last(t).YiAddr
	assert.Equal(t, offered, reallocated)
}
