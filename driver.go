// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"strconv"
	"strings"
	"time"
)

// Driver is the generic, model-agnostic instrument driver. It owns exactly
// one transport handler, created when the driver is constructed and released
// by Close. A Driver is synchronous: Send and Query block until the
// instrument responds or the timeout elapses.
type Driver struct {
	address string
	handler Handler
	closed  bool
}

// Option configures a Driver during Connect.
type Option func(*driverConfig)

type driverConfig struct {
	timeout time.Duration
	logger  logger
	handler Handler
}

// WithTimeout sets the per-operation I/O timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *driverConfig) { c.timeout = d }
}

// WithLogger sets a transmission logger on the transport handler.
func WithLogger(l logger) Option {
	return func(c *driverConfig) { c.logger = l }
}

// WithHandler injects a custom transport handler instead of deriving one
// from the resource address.
func WithHandler(h Handler) Option {
	return func(c *driverConfig) { c.handler = h }
}

// Connect opens a driver for the instrument at the given VISA resource
// address. It fails with a ConnectionError if the address is malformed or
// the endpoint is unreachable.
func Connect(address string, opts ...Option) (*Driver, error) {
	var cfg driverConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	handler := cfg.handler
	if handler == nil {
		var err error
		handler, err = newHandler(address, cfg.timeout, cfg.logger)
		if err != nil {
			return nil, err
		}
	}
	if err := handler.Connect(); err != nil {
		if _, ok := err.(*ConnectionError); ok {
			return nil, err
		}
		return nil, &ConnectionError{Address: address, Err: err}
	}
	return &Driver{address: address, handler: handler}, nil
}

// Address returns the resource address the driver was constructed with.
func (d *Driver) Address() string { return d.address }

// Send writes a command with no expected reply.
func (d *Driver) Send(cmd string) error {
	return d.handler.Send(cmd)
}

// Query writes a command and returns one reply line with surrounding
// whitespace trimmed.
func (d *Driver) Query(cmd string) (string, error) {
	reply, err := d.handler.Query(cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// Close releases the connection. It is idempotent: closing an already
// closed driver is a no-op and never triggers a second transport teardown.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.handler.Close()
}

// Identify issues the identification query and parses the reply.
func (d *Driver) Identify() (IdentificationRecord, error) {
	reply, err := d.Query(CmdIdentify)
	if err != nil {
		return IdentificationRecord{}, err
	}
	return ParseIdentification(reply)
}

// Reset executes a device reset and cancels any pending operations.
func (d *Driver) Reset() error {
	return d.Send(CmdReset)
}

// ClearStatus empties the instrument's error queue and clears all event
// registers.
func (d *Driver) ClearStatus() error {
	return d.Send(CmdClearStatus)
}

// OperationComplete reports whether all pending overlapped operations have
// finished.
func (d *Driver) OperationComplete() (bool, error) {
	reply, err := d.Query(CmdOperationComplete)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(reply)
	if err != nil {
		return false, &ParseError{Reply: reply, Expect: "boolean operation-complete flag"}
	}
	return v, nil
}
