// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"fmt"
	"time"
)

// Transporter specifies the session layer: newline-terminated ASCII
// commands out, single-line ASCII replies back.
type Transporter interface {
	// Send writes a command with no expected reply.
	Send(cmd string) error
	// Query writes a command and reads one reply line within the
	// configured timeout. The reply is returned without its line
	// terminator.
	Query(cmd string) (reply string, err error)
}

// Connector exposes the underlying handler capability to open and close the
// transport channel. Close is idempotent.
type Connector interface {
	Connect() error
	Close() error
}

// Handler is the interface that groups the Transporter and Connector methods.
type Handler interface {
	Transporter
	Connector
}

// NewHandler builds a transport handler for a VISA resource address with
// default timeouts. TCPIP addresses map to a TCPHandler, ASRL addresses to
// a SerialHandler. GPIB and USB addresses parse but have no host-side
// transport here and fail with a ConnectionError.
func NewHandler(address string) (Handler, error) {
	return newHandler(address, 0, nil)
}

func newHandler(address string, timeout time.Duration, l logger) (Handler, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, &ConnectionError{Address: address, Err: err}
	}
	switch addr.Interface {
	case InterfaceTCPIP:
		h := NewTCPHandler(addr.hostPort())
		if timeout > 0 {
			h.Timeout = timeout
		}
		h.Logger = l
		return h, nil
	case InterfaceASRL:
		h := NewSerialHandler(addr.Device)
		if timeout > 0 {
			h.Config.Timeout = timeout
		}
		h.Logger = l
		return h, nil
	default:
		return nil, &ConnectionError{
			Address: address,
			Err:     fmt.Errorf("no transport for %s interfaces", addr.Interface),
		}
	}
}
