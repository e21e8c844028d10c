package dhcpclient

import (
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhcpstack/dhcpstack/internal/dhcplog"
	"github.com/dhcpstack/dhcpstack/internal/dhcpsched"
	"github.com/dhcpstack/dhcpstack/internal/dhcpwire"
	"github.com/dhcpstack/dhcpstack/internal/netiface"
)

func secondsToDuration(secs uint32) time.Duration { return time.Duration(secs) * time.Second }

const (
	serverPort = 67
	clientPort = 68
)

var broadcast67 = &net.UDPAddr{IP: net.IPv4bcast, Port: serverPort}

// packetConn is the narrow socket surface Client needs, satisfied by
// *clientConn; tests substitute a fake to exercise the state machine
// without a real interface.
type packetConn interface {
	ReadFrom(b []byte) (n int, addr net.Addr, err error)
	WriteTo(b []byte, addr net.Addr) (n int, err error)
	Close() error
}

// bound holds the client's current interface binding and lease bookkeeping
// (§3 Client entities).
type bound struct {
	myAddr     netip.Addr
	prefixLen  int
	serverAddr netip.Addr
	remoteAddr netip.Addr

	leaseSecs  uint32
	renewSecs  uint32
	rebindSecs uint32
}

// Client drives the DORA handshake on one interface.
type Client struct {
	cfg    *Config
	binder netiface.Binder
	sched  dhcpsched.Scheduler
	logger dhcplog.Logger
	stats  Stats

	// sessionID correlates this Client instance's log lines across a
	// DORA cycle and its renewals; it has nothing to do with the wire
	// xid, which must stay a 32-bit field per the header format.
	sessionID string

	iface *net.Interface
	mac   net.HardwareAddr
	conn  packetConn

	mu      sync.Mutex
	state   State
	xid     uint32
	offers  []*dhcpwire.Header
	bnd     bound
	retries int
	unsub   func()

	discoverTimer  *dhcpsched.NamedTimer
	nextOfferTimer *dhcpsched.NamedTimer
	requestTimer   *dhcpsched.NamedTimer
	refreshTimer   *dhcpsched.NamedTimer
	rebindTimer    *dhcpsched.NamedTimer
	timeoutTimer   *dhcpsched.NamedTimer

	actions chan func()
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New validates cfg and returns a Client ready to Start.
func New(cfg *Config, binder netiface.Binder, sched dhcpsched.Scheduler, logger dhcplog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = dhcplog.Default
	}
	if cfg.Rand == nil {
		src := rand.New(rand.NewSource(1))
		cfg.Rand = func() uint32 { return src.Uint32() }
	}

	c := &Client{
		cfg:       cfg,
		binder:    binder,
		sched:     sched,
		logger:    logger,
		state:     StateUnconfigured,
		sessionID: uuid.NewString(),
	}
	c.discoverTimer = dhcpsched.NewNamedTimer(sched)
	c.nextOfferTimer = dhcpsched.NewNamedTimer(sched)
	c.requestTimer = dhcpsched.NewNamedTimer(sched)
	c.refreshTimer = dhcpsched.NewNamedTimer(sched)
	c.rebindTimer = dhcpsched.NewNamedTimer(sched)
	c.timeoutTimer = dhcpsched.NewNamedTimer(sched)
	return c, nil
}

// State returns the client's current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns the client's running counters.
func (c *Client) Stats() Snapshot { return c.stats.Snapshot() }

// Start resolves the interface, binds the unnumbered address, subscribes
// to link state, and begins the DORA handshake (§4.3 Startup).
func (c *Client) Start() error {
	iface, err := net.InterfaceByName(c.cfg.InterfaceName)
	if err != nil {
		return err
	}
	c.iface = iface

	mac, err := c.binder.HardwareAddr()
	if err != nil {
		return err
	}
	c.mac = mac

	if err := c.binder.AddAddress(net.IPv4zero, 0); err != nil {
		return err
	}

	conn, err := listenClient(iface, clientPort)
	if err != nil {
		return err
	}
	c.conn = conn

	c.actions = make(chan func(), 64)
	c.stopCh = make(chan struct{})

	c.wg.Add(2)
	go c.recvLoop()
	go c.dispatchLoop()

	c.unsub = c.binder.Subscribe(c.onLinkStateChanged)

	c.post(c.boot)
	return nil
}

// Stop cancels every timer, closes the socket, and reverts the interface
// binding to 0.0.0.0/0 (§4.3 Shutdown).
func (c *Client) Stop() {
	c.cancelAllTimers()
	if c.unsub != nil {
		c.unsub()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	if c.stopCh != nil {
		close(c.stopCh)
	}
	c.wg.Wait()

	c.mu.Lock()
	wasBound := c.state == StateRefreshLease
	addr, prefixLen := c.bnd.myAddr, c.bnd.prefixLen
	c.mu.Unlock()
	if wasBound && addr.IsValid() {
		_ = c.binder.RemoveAddress(net.IP(addr.AsSlice()), prefixLen)
	}
	_ = c.binder.AddAddress(net.IPv4zero, 0)
}

func (c *Client) post(fn func()) {
	select {
	case c.actions <- fn:
	case <-c.stopCh:
	}
}

func (c *Client) recvLoop() {
	defer c.wg.Done()

	buf := make([]byte, 1500)
	for {
		n, addr, err := c.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		c.post(func() { c.netHandler(data, addr) })
	}
}

func (c *Client) dispatchLoop() {
	defer c.wg.Done()
	for {
		select {
		case fn := <-c.actions:
			fn()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) onLinkStateChanged(up bool) {
	c.post(func() {
		if up {
			c.boot()
			return
		}
		c.cancelAllTimers()
		c.mu.Lock()
		c.state = StateUnconfigured
		c.mu.Unlock()
	})
}

func (c *Client) cancelAllTimers() {
	c.discoverTimer.Cancel()
	c.nextOfferTimer.Cancel()
	c.requestTimer.Cancel()
	c.refreshTimer.Cancel()
	c.rebindTimer.Cancel()
	c.timeoutTimer.Cancel()
}
