// Command dhcp-client-demo runs a dhcpclient.Client on a real interface
// until interrupted.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdguardTeam/golibs/log"

	"github.com/dhcpstack/dhcpstack/internal/dhcpclient"
	"github.com/dhcpstack/dhcpstack/internal/dhcplog"
	"github.com/dhcpstack/dhcpstack/internal/dhcpsched"
	"github.com/dhcpstack/dhcpstack/internal/netiface"
)

func main() {
	iface := flag.String("iface", "", "interface name to run DHCP on")
	flag.Parse()

	if *iface == "" {
		log.Printf("usage: %s -iface <name>", os.Args[0])
		os.Exit(64)
	}

	binder, err := netiface.NewLinuxBinder(*iface)
	if err != nil {
		log.Fatalf("resolving interface: %s", err)
	}

	cfg := &dhcpclient.Config{InterfaceName: *iface}
	cl, err := dhcpclient.New(cfg, binder, dhcpsched.NewRealTime(), dhcplog.Default)
	if err != nil {
		log.Fatalf("building client: %s", err)
	}

	log.Printf("starting DHCP client on %s", *iface)
	if err := cl.Start(); err != nil {
		log.Fatalf("starting client: %s", err)
	}
	defer cl.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stats := cl.Stats()
	log.Printf("stopping DHCP client, state %s, %d acks received", cl.State(), stats.AcksReceived)
}
