// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// defaultProbeTimeout bounds each discovery probe. Unresponsive addresses
// cost one timeout each, so a scan over n dead addresses takes n times this.
const defaultProbeTimeout = time.Second

// Enumerator lists candidate resource addresses. Order is preserved in the
// discovery result but carries no meaning.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]string, error)
}

// StaticEnumerator enumerates a fixed address list.
type StaticEnumerator []string

// Enumerate returns a copy of the configured addresses.
func (e StaticEnumerator) Enumerate(context.Context) ([]string, error) {
	return append([]string(nil), e...), nil
}

// ProbeState classifies the outcome of probing one address. All states are
// terminal; Discover never retries an address within one pass.
type ProbeState int

const (
	// StateIdentified means the address answered the identification
	// query with a well-formed record.
	StateIdentified ProbeState = iota
	// StateNoReply means a connection opened but no reply arrived
	// within the probe timeout.
	StateNoReply
	// StateMalformed means a reply arrived but could not be parsed as
	// an identification record, e.g. a non-instrument device.
	StateMalformed
	// StateTransportFailure means the connection could not be opened or
	// failed below the command layer.
	StateTransportFailure
)

func (s ProbeState) String() string {
	switch s {
	case StateIdentified:
		return "identified"
	case StateNoReply:
		return "no reply"
	case StateMalformed:
		return "malformed reply"
	case StateTransportFailure:
		return "transport failure"
	}
	return fmt.Sprintf("ProbeState(%d)", int(s))
}

// Probe is the classified outcome for one address.
type Probe struct {
	Address string
	State   ProbeState
	// ID is set when State is StateIdentified.
	ID IdentificationRecord
	// Err is the classified cause for non-identified states.
	Err error
}

// Result maps probed addresses to their outcome. A Result is built fresh on
// every Discover call and preserves enumeration order.
type Result struct {
	order  []string
	probes map[string]Probe
}

// Lookup returns the probe outcome for an address.
func (r *Result) Lookup(address string) (Probe, bool) {
	p, ok := r.probes[address]
	return p, ok
}

// Addresses returns all probed addresses in enumeration order.
func (r *Result) Addresses() []string {
	return append([]string(nil), r.order...)
}

// Identified returns the probes that answered with a valid identification,
// in enumeration order.
func (r *Result) Identified() []Probe {
	return r.filter(func(p Probe) bool { return p.State == StateIdentified })
}

// Unidentified returns the probes that failed, in enumeration order.
func (r *Result) Unidentified() []Probe {
	return r.filter(func(p Probe) bool { return p.State != StateIdentified })
}

func (r *Result) filter(keep func(Probe) bool) []Probe {
	var probes []Probe
	for _, addr := range r.order {
		if p := r.probes[addr]; keep(p) {
			probes = append(probes, p)
		}
	}
	return probes
}

// Report renders a human-readable summary grouping identified instruments
// and unidentified devices. The exact formatting is not a stable contract.
func (r *Result) Report(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSTATE\tIDENTIFICATION")
	for _, p := range r.Identified() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Address, p.State, p.ID)
	}
	for _, p := range r.Unidentified() {
		fmt.Fprintf(tw, "%s\t%s\t%v\n", p.Address, p.State, p.Err)
	}
	return tw.Flush()
}

// Session is the connection surface a discovery probe needs. *Driver
// satisfies it.
type Session interface {
	Query(cmd string) (string, error)
	Close() error
}

// OpenFunc opens a short-timeout session to one address during discovery.
type OpenFunc func(address string, timeout time.Duration) (Session, error)

// DiscoverOption configures a Discover call.
type DiscoverOption func(*discoverConfig)

type discoverConfig struct {
	timeout time.Duration
	open    OpenFunc
}

// WithProbeTimeout sets the per-address probe timeout.
func WithProbeTimeout(d time.Duration) DiscoverOption {
	return func(c *discoverConfig) { c.timeout = d }
}

// WithOpener replaces how probe sessions are opened. Tests and exotic
// transports hook in here.
func WithOpener(open OpenFunc) DiscoverOption {
	return func(c *discoverConfig) { c.open = open }
}

func defaultOpen(address string, timeout time.Duration) (Session, error) {
	return Connect(address, WithTimeout(timeout))
}

// Discover enumerates candidate addresses and probes each one with the
// identification query, classifying the outcome per address. A failing
// address never aborts the scan. Probing is sequential and each probe
// connection is closed before the next address is opened, so at most one
// probe connection is live at a time.
//
// Discover returns an error only when enumeration itself fails or ctx is
// cancelled; in the latter case the partial result covers the addresses
// probed so far.
func Discover(ctx context.Context, enum Enumerator, opts ...DiscoverOption) (*Result, error) {
	cfg := discoverConfig{timeout: defaultProbeTimeout, open: defaultOpen}
	for _, opt := range opts {
		opt(&cfg)
	}

	addrs, err := enum.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("scpi: resource enumeration failed: %w", err)
	}

	result := &Result{probes: make(map[string]Probe, len(addrs))}
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.order = append(result.order, addr)
		result.probes[addr] = probe(addr, cfg.timeout, cfg.open)
	}
	return result, nil
}

// probe opens, identifies and closes a single address. The connection is
// released before probe returns, whatever the outcome.
func probe(address string, timeout time.Duration, open OpenFunc) Probe {
	sess, err := open(address, timeout)
	if err != nil {
		return Probe{Address: address, State: StateTransportFailure, Err: err}
	}
	defer sess.Close()

	reply, err := sess.Query(CmdIdentify)
	if err != nil {
		return Probe{Address: address, State: classify(err), Err: err}
	}
	rec, err := ParseIdentification(reply)
	if err != nil {
		return Probe{Address: address, State: StateMalformed, Err: err}
	}
	return Probe{Address: address, State: StateIdentified, ID: rec}
}

// classify distinguishes a silent device from a broken session.
func classify(err error) ProbeState {
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return StateNoReply
	}
	return StateTransportFailure
}
