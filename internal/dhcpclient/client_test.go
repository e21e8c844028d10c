package dhcpclient

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
	"github.com/dhcpstack/dhcpstack/internal/netiface"
)

// fakeConn records every WriteTo call instead of touching a real socket.
type fakeConn struct {
	mu  sync.Mutex
	out []struct {
		data []byte
		addr net.Addr
	}
}

func (f *fakeConn) ReadFrom([]byte) (int, net.Addr, error) {
	select {} // never called: tests drive netHandler directly.
}

func (f *fakeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), b...)
	f.out = append(f.out, struct {
		data []byte
		addr net.Addr
	}{cp, addr})
	return len(b), nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) lastHeader(t *testing.T) *dhcpwire.Header {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.out)
	h, err := dhcpwire.Deserialize(f.out[len(f.out)-1].data)
	require.NoError(t, err)
	return h
}

func (f *fakeConn) lastAddr(t *testing.T) net.Addr {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.out)
	return f.out[len(f.out)-1].addr
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.out)
}

// drain runs every action currently queued on c.actions, in order, without
// starting the background dispatch goroutine; it stands in for dispatchLoop
// in tests that drive the scheduler and network events synchronously.
func drain(c *Client) {
	for {
		select {
		case fn := <-c.actions:
			fn()
		default:
			return
		}
	}
}

func newTestClient(t *testing.T) (*Client, *fakeConn, *netiface.Fake, *dhcpsched.Fake) {
	t.Helper()

	mac := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	var seq uint32
	cfg := &Config{
		InterfaceName: "unused0",
		Rand:          func() uint32 { seq++; return seq },
	}
	require.NoError(t, cfg.Validate())

	sched := dhcpsched.NewFake(time.Unix(0, 0))
	binder := netiface.NewFake(mac)

	c, err := New(cfg, binder, sched, dhcplog.Empty{})
	require.NoError(t, err)

	conn := &fakeConn{}
	c.mac = mac
	c.conn = conn
	c.actions = make(chan func(), 64)
	c.stopCh = make(chan struct{})

	return c, conn, binder, sched
}

func offerFor(req *dhcpwire.Header, offered netip.Addr, server netip.Addr) *dhcpwire.Header {
	h := &dhcpwire.Header{Bootp: dhcpwire.OpBootReply, HLen: req.HLen, Xid: req.Xid}
	h.ChAddr = req.ChAddr
	h.YiAddr = offered.As4()
	h.SiAddr = server.As4()
	h.Options.HasMsgType = true
	h.Options.MsgType = dhcpwire.MsgOffer
	h.Options.HasServerID = true
	h.Options.ServerID = server.As4()
	h.Options.HasSubnetMask = true
	h.Options.SubnetMask = netip.MustParseAddr("255.255.255.0").As4()
	h.Options.HasLeaseTime = true
	h.Options.LeaseTime = 30
	h.Options.HasRenewTime = true
	h.Options.RenewTime = 15
	h.Options.HasRebindTime = true
	h.Options.RebindTime = 25
	return h
}

func ackFor(req *dhcpwire.Header, leased netip.Addr, server netip.Addr) *dhcpwire.Header {
	h := offerFor(req, leased, server)
	h.Options.MsgType = dhcpwire.MsgAck
	return h
}

func nackFor(req *dhcpwire.Header, server netip.Addr) *dhcpwire.Header {
	h := &dhcpwire.Header{Bootp: dhcpwire.OpBootReply, HLen: req.HLen, Xid: req.Xid}
	h.ChAddr = req.ChAddr
	h.Options.HasMsgType = true
	h.Options.MsgType = dhcpwire.MsgNack
	h.Options.HasServerID = true
	h.Options.ServerID = server.As4()
	return h
}

func TestClientBootBroadcastsDiscover(t *testing.T) {
	t.Parallel()

	c, conn, _, _ := newTestClient(t)
	c.boot()

	req := conn.lastHeader(t)
	assert.Equal(t, dhcpwire.MsgDiscover, req.Options.MsgType)
	assert.Equal(t, StateWaitOffer, c.State())
	assert.Equal(t, uint64(1), c.Stats().DiscoversSent)
}

func TestClientFullHandshakeBindsInterface(t *testing.T) {
	t.Parallel()

	c, conn, binder, sched := newTestClient(t)
	c.boot()
	req := conn.lastHeader(t)

	server := netip.MustParseAddr("10.0.0.1")
	offered := netip.MustParseAddr("10.0.0.50")
	c.netHandler(dhcpwire.Serialize(offerFor(req, offered, server)), nil)

	sched.Advance(DefaultCollectWindow)
	drain(c)

	sentReq := conn.lastHeader(t)
	assert.Equal(t, dhcpwire.MsgRequest, sentReq.Options.MsgType)
	assert.Equal(t, offered.As4(), sentReq.Options.RequestedAddr)
	assert.Equal(t, StateWaitAck, c.State())

	c.netHandler(dhcpwire.Serialize(ackFor(sentReq, offered, server)), nil)

	assert.Equal(t, StateRefreshLease, c.State())
	assert.Contains(t, binder.Addresses(), "10.0.0.50/"+net.CIDRMask(24, 32).String())
	assert.Equal(t, uint64(1), c.Stats().AcksReceived)
}

func TestClientEmptyOfferListReboots(t *testing.T) {
	t.Parallel()

	c, conn, _, sched := newTestClient(t)
	c.boot()
	first := conn.lastHeader(t)

	sched.Advance(DefaultCollectWindow)
	drain(c)

	second := conn.lastHeader(t)
	assert.Equal(t, dhcpwire.MsgDiscover, second.Options.MsgType)
	assert.NotEqual(t, first.Xid, second.Xid)
	assert.Equal(t, StateWaitOffer, c.State())
}

func TestClientNackReturnsToBoot(t *testing.T) {
	t.Parallel()

	c, conn, _, sched := newTestClient(t)
	c.boot()
	req := conn.lastHeader(t)

	server := netip.MustParseAddr("10.0.0.1")
	offered := netip.MustParseAddr("10.0.0.50")
	c.netHandler(dhcpwire.Serialize(offerFor(req, offered, server)), nil)
	sched.Advance(DefaultCollectWindow)
	drain(c)

	sentReq := conn.lastHeader(t)
	c.netHandler(dhcpwire.Serialize(nackFor(sentReq, server)), nil)

	assert.Equal(t, StateWaitOffer, c.State())
	assert.Equal(t, uint64(1), c.Stats().NacksReceived)
	reboot := conn.lastHeader(t)
	assert.Equal(t, dhcpwire.MsgDiscover, reboot.Options.MsgType)
}

func TestClientRequestRetryCapFallsBackToNextOffer(t *testing.T) {
	t.Parallel()

	c, conn, _, sched := newTestClient(t)
	c.boot()
	req := conn.lastHeader(t)

	server1 := netip.MustParseAddr("10.0.0.1")
	server2 := netip.MustParseAddr("10.0.0.2")
	offerA := netip.MustParseAddr("10.0.0.50")
	offerB := netip.MustParseAddr("10.0.0.60")

	c.netHandler(dhcpwire.Serialize(offerFor(req, offerA, server1)), nil)
	c.netHandler(dhcpwire.Serialize(offerFor(req, offerB, server2)), nil)
	sched.Advance(DefaultCollectWindow)
	drain(c)

	firstReq := conn.lastHeader(t)
	assert.Equal(t, offerA.As4(), firstReq.Options.RequestedAddr)

	for i := 0; i < DefaultRequestRetryCap; i++ {
		sched.Advance(DefaultRetransmit)
		drain(c)
	}

	fallback := conn.lastHeader(t)
	assert.Equal(t, offerB.As4(), fallback.Options.RequestedAddr)
}

func TestClientRefreshUnicastsAtT1(t *testing.T) {
	t.Parallel()

	c, conn, _, sched := newTestClient(t)
	c.boot()
	req := conn.lastHeader(t)

	server := netip.MustParseAddr("10.0.0.1")
	offered := netip.MustParseAddr("10.0.0.50")
	c.netHandler(dhcpwire.Serialize(offerFor(req, offered, server)), nil)
	sched.Advance(DefaultCollectWindow)
	drain(c)

	sentReq := conn.lastHeader(t)
	c.netHandler(dhcpwire.Serialize(ackFor(sentReq, offered, server)), nil)

	sched.Advance(15 * time.Second)
	drain(c)

	renewal := conn.lastHeader(t)
	assert.Equal(t, dhcpwire.MsgRequest, renewal.Options.MsgType)
	assert.False(t, renewal.Options.HasRequestedAddr)
	assert.Equal(t, offered.As4(), renewal.CiAddr)
	assert.Equal(t, &net.UDPAddr{IP: net.IP(server.AsSlice()), Port: serverPort}, conn.lastAddr(t))
	assert.Equal(t, uint64(1), c.Stats().Renewals)
}

func TestClientRebindBroadcastsAtT2(t *testing.T) {
	t.Parallel()

	c, conn, _, sched := newTestClient(t)
	c.boot()
	req := conn.lastHeader(t)

	server := netip.MustParseAddr("10.0.0.1")
	offered := netip.MustParseAddr("10.0.0.50")
	c.netHandler(dhcpwire.Serialize(offerFor(req, offered, server)), nil)
	sched.Advance(DefaultCollectWindow)
	drain(c)

	sentReq := conn.lastHeader(t)
	c.netHandler(dhcpwire.Serialize(ackFor(sentReq, offered, server)), nil)

	sched.Advance(25 * time.Second)
	drain(c)

	rebindReq := conn.lastHeader(t)
	assert.Equal(t, dhcpwire.MsgRequest, rebindReq.Options.MsgType)
	assert.Equal(t, offered.As4(), rebindReq.CiAddr)
	assert.Equal(t, broadcast67, conn.lastAddr(t))
	assert.Equal(t, uint64(1), c.Stats().Rebinds)
}

func TestClientTimeoutTearsDownBindingAndReboots(t *testing.T) {
	t.Parallel()

	c, conn, binder, sched := newTestClient(t)
	c.boot()
	req := conn.lastHeader(t)

	server := netip.MustParseAddr("10.0.0.1")
	offered := netip.MustParseAddr("10.0.0.50")
	c.netHandler(dhcpwire.Serialize(offerFor(req, offered, server)), nil)
	sched.Advance(DefaultCollectWindow)
	drain(c)

	sentReq := conn.lastHeader(t)
	c.netHandler(dhcpwire.Serialize(ackFor(sentReq, offered, server)), nil)
	require.Contains(t, binder.Addresses(), "10.0.0.50/"+net.CIDRMask(24, 32).String())

	sched.Advance(30 * time.Second)
	drain(c)

	assert.Equal(t, StateWaitOffer, c.State())
	assert.Equal(t, uint64(1), c.Stats().Timeouts)
	assert.NotContains(t, binder.Addresses(), "10.0.0.50/"+net.CIDRMask(24, 32).String())

	reboot := conn.lastHeader(t)
	assert.Equal(t, dhcpwire.MsgDiscover, reboot.Options.MsgType)
}
