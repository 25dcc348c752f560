// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service types LXI instruments advertise.
const (
	ServiceSCPIRaw = "_scpi-raw._tcp"
	ServiceLXI     = "_lxi._tcp"

	lxiDomain        = "local."
	lxiBrowseTimeout = 3 * time.Second
)

// LXIEnumerator discovers LAN instruments via mDNS and yields raw-socket
// VISA addresses for them. Instruments advertising both service types are
// reported once.
type LXIEnumerator struct {
	// Services to browse. Defaults to ServiceSCPIRaw and ServiceLXI.
	Services []string
	// Timeout bounds each browse. Defaults to lxiBrowseTimeout.
	Timeout time.Duration
	// Browse logger
	Logger logger
}

// Enumerate browses the configured services and returns
// "TCPIP0::<host>::<port>::SOCKET" addresses for every instrument found.
func (e *LXIEnumerator) Enumerate(ctx context.Context) ([]string, error) {
	services := e.Services
	if len(services) == 0 {
		services = []string{ServiceSCPIRaw, ServiceLXI}
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = lxiBrowseTimeout
	}

	var addrs []string
	seen := make(map[string]struct{})
	for _, service := range services {
		found, err := e.browse(ctx, service, timeout)
		if err != nil {
			return nil, err
		}
		for _, addr := range found {
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

func (e *LXIEnumerator) browse(ctx context.Context, service string, timeout time.Duration) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	// Browse blocks until the context expires, closing both channels.
	errc := make(chan error, 1)
	go func() {
		errc <- zeroconf.Browse(ctx, service, lxiDomain, entries, removed)
	}()

	var addrs []string
	for entries != nil || removed != nil {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			if addr, ok := entryAddress(entry); ok {
				e.logf("scpi: mdns %s answered %s", entry.Instance, addr)
				addrs = append(addrs, addr)
			}
		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			_ = entry
		case <-ctx.Done():
			return addrs, nil
		}
	}
	if err := <-errc; err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("scpi: mdns browse of %s failed: %w", service, err)
	}
	return addrs, nil
}

func (e *LXIEnumerator) logf(format string, v ...interface{}) {
	if e.Logger != nil {
		e.Logger.Printf(format, v...)
	}
}

// entryAddress renders a browse result as a raw-socket VISA address,
// preferring IPv4 and falling back to the advertised host name.
func entryAddress(entry *zeroconf.ServiceEntry) (string, bool) {
	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return "", false
	}
	port := entry.Port
	if port == 0 {
		port = DefaultSocketPort
	}
	addr := Address{Interface: InterfaceTCPIP, Host: host, Port: port, Socket: true}
	return addr.String(), true
}
