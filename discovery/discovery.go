// Package discovery announces hubs on the local network over mDNS and finds
// them again from clients.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

const (
	// Service is the mDNS service type hubs register under.
	Service = "_smartshare._tcp"
	Domain  = "local."
)

var (
	// ErrNoHub indicates that no hub answered before the lookup gave up.
	ErrNoHub = errors.New("no hub found on the local network")
)

// Announce registers a hub listening on port. Shut the returned server down
// to withdraw the announcement.
func Announce(port int, logger logrus.FieldLogger) (*zeroconf.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "hub"
	}

	server, err := zeroconf.Register(
		fmt.Sprintf("smartshare-%s", host),
		Service,
		Domain,
		port,
		[]string{"txtv=0"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	logger.WithFields(logrus.Fields{"service": Service, "port": port}).Info("mDNS service registered")
	return server, nil
}

// Find returns the address of the first hub that answers before ctx is done.
func Find(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("create mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return "", fmt.Errorf("browse mDNS services: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ErrNoHub
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoHub
			}
			if addr, ok := entryAddr(entry); ok {
				return addr, nil
			}
		}
	}
}

// entryAddr picks a dialable address from entry, preferring IPv4.
func entryAddr(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port == 0 {
		return "", false
	}
	port := strconv.Itoa(entry.Port)

	switch {
	case len(entry.AddrIPv4) > 0:
		return net.JoinHostPort(entry.AddrIPv4[0].String(), port), true
	case len(entry.AddrIPv6) > 0:
		return net.JoinHostPort(entry.AddrIPv6[0].String(), port), true
	case entry.HostName != "":
		return net.JoinHostPort(entry.HostName, port), true
	}
	return "", false
}
