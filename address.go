// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultSocketPort is the IANA registered port for raw SCPI sockets.
const DefaultSocketPort = 5025

// InterfaceType is the bus interface part of a VISA resource address.
type InterfaceType string

// Interface types understood by ParseAddress.
const (
	InterfaceTCPIP InterfaceType = "TCPIP"
	InterfaceASRL  InterfaceType = "ASRL"
	InterfaceGPIB  InterfaceType = "GPIB"
	InterfaceUSB   InterfaceType = "USB"
)

// Address is a parsed VISA resource address, e.g. "TCPIP0::10.0.0.7::5025::SOCKET",
// "ASRL/dev/ttyUSB0::INSTR" or "GPIB0::14::INSTR". Drivers treat addresses as
// opaque beyond the transport dispatch encoded here.
type Address struct {
	Interface InterfaceType
	// Board is the interface number, e.g. the 0 in "TCPIP0". Serial
	// addresses carry the port in Device instead.
	Board int
	// Host is the host name or IP address of a TCPIP resource.
	Host string
	// Port is the TCP port of a TCPIP SOCKET resource. Zero selects
	// DefaultSocketPort.
	Port int
	// Socket selects a raw socket session for TCPIP resources.
	Socket bool
	// Device holds the interface-specific locator: the serial port for
	// ASRL, the primary address for GPIB, vendor/product/serial for USB.
	Device string
}

// ParseAddress parses a VISA resource address string.
func ParseAddress(raw string) (Address, error) {
	parts := strings.Split(strings.TrimSpace(raw), "::")
	if len(parts) < 2 {
		return Address{}, fmt.Errorf("scpi: resource address '%s' must have at least two '::' separated fields", raw)
	}

	head := parts[0]
	n := 0
	for n < len(head) && isLetter(head[n]) {
		n++
	}
	addr := Address{Interface: InterfaceType(strings.ToUpper(head[:n]))}
	rest := head[n:]

	suffix := strings.ToUpper(parts[len(parts)-1])
	mid := parts[1 : len(parts)-1]

	switch addr.Interface {
	case InterfaceTCPIP:
		if rest != "" {
			board, err := strconv.Atoi(rest)
			if err != nil {
				return Address{}, fmt.Errorf("scpi: invalid interface number '%s' in '%s'", rest, raw)
			}
			addr.Board = board
		}
		switch suffix {
		case "SOCKET":
			addr.Socket = true
			switch len(mid) {
			case 1:
				addr.Host = mid[0]
			case 2:
				port, err := strconv.Atoi(mid[1])
				if err != nil {
					return Address{}, fmt.Errorf("scpi: invalid port '%s' in '%s'", mid[1], raw)
				}
				addr.Host, addr.Port = mid[0], port
			default:
				return Address{}, fmt.Errorf("scpi: TCPIP SOCKET address '%s' must be TCPIP[n]::host[::port]::SOCKET", raw)
			}
		case "INSTR":
			if len(mid) < 1 || len(mid) > 2 {
				return Address{}, fmt.Errorf("scpi: TCPIP INSTR address '%s' must be TCPIP[n]::host[::device]::INSTR", raw)
			}
			addr.Host = mid[0]
			if len(mid) == 2 {
				addr.Device = mid[1]
			}
		default:
			return Address{}, fmt.Errorf("scpi: unknown session type '%s' in '%s'", suffix, raw)
		}
		if addr.Host == "" {
			return Address{}, fmt.Errorf("scpi: missing host in '%s'", raw)
		}

	case InterfaceASRL:
		if suffix != "INSTR" || len(mid) != 0 {
			return Address{}, fmt.Errorf("scpi: serial address '%s' must be ASRL<port>::INSTR", raw)
		}
		if rest == "" {
			return Address{}, fmt.Errorf("scpi: missing serial port in '%s'", raw)
		}
		addr.Device = rest

	case InterfaceGPIB, InterfaceUSB:
		if rest != "" {
			board, err := strconv.Atoi(rest)
			if err != nil {
				return Address{}, fmt.Errorf("scpi: invalid interface number '%s' in '%s'", rest, raw)
			}
			addr.Board = board
		}
		if suffix != "INSTR" || len(mid) < 1 {
			return Address{}, fmt.Errorf("scpi: address '%s' must be %s[n]::<locator>::INSTR", raw, addr.Interface)
		}
		addr.Device = strings.Join(mid, "::")

	default:
		return Address{}, fmt.Errorf("scpi: unknown interface type in '%s'", raw)
	}
	return addr, nil
}

// String renders the address in canonical VISA form.
func (a Address) String() string {
	switch a.Interface {
	case InterfaceTCPIP:
		if a.Socket {
			return fmt.Sprintf("%s%d::%s::%d::SOCKET", a.Interface, a.Board, a.Host, a.portOrDefault())
		}
		if a.Device != "" {
			return fmt.Sprintf("%s%d::%s::%s::INSTR", a.Interface, a.Board, a.Host, a.Device)
		}
		return fmt.Sprintf("%s%d::%s::INSTR", a.Interface, a.Board, a.Host)
	case InterfaceASRL:
		return fmt.Sprintf("%s%s::INSTR", a.Interface, a.Device)
	default:
		return fmt.Sprintf("%s%d::%s::INSTR", a.Interface, a.Board, a.Device)
	}
}

func (a Address) portOrDefault() int {
	if a.Port == 0 {
		return DefaultSocketPort
	}
	return a.Port
}

// hostPort returns the dial target for a TCPIP resource.
func (a Address) hostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.portOrDefault()))
}

func isLetter(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}
