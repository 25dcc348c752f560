// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

/*
Package scpi provides drivers for bench test instruments that speak
newline-terminated ASCII command protocols (SCPI and IEEE 488.2) over
session-oriented buses.

The package is layered: Handler implementations provide the raw text
session (TCP socket, serial port), Driver adds command/query execution
and connection lifecycle on top of a Handler, and Device adds typed,
range-validated set/get/measure operations driven by a per-model
Profile. Discover probes a set of candidate resource addresses and
classifies each as an identified instrument or a failure.
*/
package scpi

import (
	"fmt"
)

// IEEE 488.2 common commands, supported by all SCPI compatible instruments.
const (
	// CmdIdentify requests the identification string
	// (manufacturer, model, serial, firmware).
	CmdIdentify = "*IDN?"
	// CmdReset executes a device reset.
	CmdReset = "*RST"
	// CmdClearStatus clears the status byte and event registers.
	CmdClearStatus = "*CLS"
	// CmdOperationComplete queries whether pending operations finished.
	CmdOperationComplete = "*OPC?"
)

// logger is the interface to the required logging functions
type logger interface {
	Printf(format string, v ...interface{})
}

// ConnectionError reports that a resource address could not be opened,
// either because it is malformed or because the endpoint is unreachable.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("scpi: could not connect to resource at '%s': %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransportError reports an I/O failure on an established session.
type TransportError struct {
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("scpi: transport failure for command '%s': %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that no reply arrived within the configured deadline.
type TimeoutError struct {
	Command string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scpi: no reply to command '%s' within %s", e.Command, e.Timeout)
}

// ValidationError reports a caller-supplied value or mode outside the
// domain declared by the instrument's profile. It is returned before any
// command is sent.
type ValidationError struct {
	Quantity string
	Value    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scpi: invalid %s '%s': %s", e.Quantity, e.Value, e.Reason)
}

// ParseError reports a reply that was received but does not match the
// expected shape.
type ParseError struct {
	Reply  string
	Expect string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("scpi: cannot parse reply '%s': expected %s", e.Reply, e.Expect)
}
