// Command dhcp-server-demo runs a dhcpserver.Server on a real interface
// until interrupted. It is a thin wiring example, not a production
// supervisor: see cmd/dhcp-client-demo for the client side.
package main

import (
	"flag"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AdguardTeam/golibs/log"

	"github.com/dhcpstack/dhcpstack/internal/dhcplog"
	"github.com/dhcpstack/dhcpstack/internal/dhcpsched"
	"github.com/dhcpstack/dhcpstack/internal/dhcpserver"
)

func main() {
	iface := flag.String("iface", "", "interface name to serve on")
	pool := flag.String("pool", "192.168.7.0/24", "pool network, CIDR")
	server := flag.String("server", "192.168.7.1", "server's own address")
	min := flag.String("min", "192.168.7.10", "first dynamically assignable address")
	max := flag.String("max", "192.168.7.110", "last dynamically assignable address")
	static := flag.String("static", "", "comma-separated mac=ip static leases, e.g. aa:bb:cc:dd:ee:ff=192.168.7.5")
	flag.Parse()

	if *iface == "" {
		log.Printf("usage: %s -iface <name> [-pool ...] [-server ...] [-min ...] [-max ...] [-static mac=ip,...]", os.Args[0])
		os.Exit(64)
	}

	cfg := &dhcpserver.Config{
		PoolNetwork: netip.MustParsePrefix(*pool),
		ServerAddr:  netip.MustParseAddr(*server),
		MinAddr:     netip.MustParseAddr(*min),
		MaxAddr:     netip.MustParseAddr(*max),
	}

	srv, err := dhcpserver.New(cfg, *iface, dhcpsched.NewRealTime(), dhcplog.Default)
	if err != nil {
		log.Fatalf("building server: %s", err)
	}

	for _, lease := range parseStaticLeases(*static) {
		srv.Table().Reserve(lease.mac, lease.ip)
		log.Printf("reserved static lease %s -> %s", lease.mac, lease.ip)
	}

	log.Printf("starting DHCP server on %s, pool %s", *iface, *pool)
	if err := srv.Start(); err != nil {
		log.Fatalf("starting server: %s", err)
	}
	defer srv.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Printf("stopping DHCP server, served %d leases", srv.Table().Len())
}

type staticLease struct {
	mac net.HardwareAddr
	ip  netip.Addr
}

// parseStaticLeases parses a "mac=ip,mac=ip" flag value, skipping and
// logging entries it can't parse rather than aborting startup over one
// typo.
func parseStaticLeases(spec string) []staticLease {
	if spec == "" {
		return nil
	}
	var out []staticLease
	for _, pair := range strings.Split(spec, ",") {
		macStr, ipStr, ok := strings.Cut(pair, "=")
		if !ok {
			log.Printf("ignoring malformed -static entry %q, want mac=ip", pair)
			continue
		}
		mac, err := net.ParseMAC(macStr)
		if err != nil {
			log.Printf("ignoring -static entry %q: %s", pair, err)
			continue
		}
		ip, err := netip.ParseAddr(ipStr)
		if err != nil {
			log.Printf("ignoring -static entry %q: %s", pair, err)
			continue
		}
		out = append(out, staticLease{mac: mac, ip: ip})
	}
	return out
}
