// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Well-known logical quantity names used by the convenience accessors.
// Profiles are free to declare additional quantities.
const (
	QuantityVoltage   = "voltage"
	QuantityCurrent   = "current"
	QuantityPower     = "power"
	QuantityFrequency = "frequency"
)

// CommandSender is the command/query surface the accessor layer drives.
// *Driver satisfies it; accessors never reach the transport directly.
type CommandSender interface {
	Send(cmd string) error
	Query(cmd string) (string, error)
}

// Device exposes typed, range-validated operations for one instrument,
// translating them into wire commands through its command profile.
type Device struct {
	drv     CommandSender
	profile *Profile
}

// NewDevice binds a driver to a command profile. The profile is validated
// once here and never swapped afterwards.
func NewDevice(drv CommandSender, profile *Profile) (*Device, error) {
	if profile == nil {
		return nil, fmt.Errorf("scpi: device requires a profile")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &Device{drv: drv, profile: profile}, nil
}

// Profile returns the device's command profile.
func (d *Device) Profile() *Profile { return d.profile }

// Set writes the setpoint for a quantity. The value is validated against
// the profile's declared range before any command is sent, so an invalid
// value has no partial side effect.
func (d *Device) Set(quantity string, value float64) error {
	q, ok := d.profile.Quantity(quantity)
	if !ok || q.Set == "" {
		return &ValidationError{
			Quantity: quantity,
			Value:    formatValue(value),
			Reason:   fmt.Sprintf("profile '%s' declares no setpoint for it", d.profile.Model),
		}
	}
	if value < q.Min || value > q.Max {
		return &ValidationError{
			Quantity: quantity,
			Value:    formatValue(value),
			Reason:   fmt.Sprintf("outside range [%g, %g] %s", q.Min, q.Max, q.Unit),
		}
	}
	if err := d.drv.Send(fmt.Sprintf(q.Set, value)); err != nil {
		return err
	}
	if q.Verify {
		return d.verify(quantity, q, value)
	}
	return nil
}

// verify reads the setpoint back after a set command for profiles that
// require confirmation.
func (d *Device) verify(quantity string, q Quantity, want float64) error {
	got, err := d.query(q.Get)
	if err != nil {
		return err
	}
	if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
		return fmt.Errorf("scpi: %s readback %g does not match setpoint %g", quantity, got, want)
	}
	return nil
}

// Get reads a quantity's setpoint.
func (d *Device) Get(quantity string) (float64, error) {
	q, ok := d.profile.Quantity(quantity)
	if !ok || q.Get == "" {
		return 0, &ValidationError{
			Quantity: quantity,
			Reason:   fmt.Sprintf("profile '%s' declares no setpoint query for it", d.profile.Model),
		}
	}
	return d.query(q.Get)
}

// Measure reads a quantity's measured value.
func (d *Device) Measure(quantity string) (float64, error) {
	q, ok := d.profile.Quantity(quantity)
	if !ok || q.Measure == "" {
		return 0, &ValidationError{
			Quantity: quantity,
			Reason:   fmt.Sprintf("profile '%s' declares no measurement for it", d.profile.Model),
		}
	}
	return d.query(q.Measure)
}

// query issues a numeric query and parses the decimal ASCII reply.
func (d *Device) query(cmd string) (float64, error) {
	reply, err := d.drv.Query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, &ParseError{Reply: reply, Expect: "decimal ASCII number"}
	}
	return v, nil
}

// SetState enables or disables the instrument's output, mapping the
// boolean onto the profile's token vocabulary.
func (d *Device) SetState(on bool) error {
	if d.profile.StateSet == "" {
		return &ValidationError{
			Quantity: "state",
			Value:    strconv.FormatBool(on),
			Reason:   fmt.Sprintf("profile '%s' declares no state command", d.profile.Model),
		}
	}
	return d.drv.Send(fmt.Sprintf(d.profile.StateSet, d.profile.stateToken(on)))
}

// GetState reads the instrument's output state. Callers never see the
// model-specific tokens.
func (d *Device) GetState() (bool, error) {
	if d.profile.StateGet == "" {
		return false, &ValidationError{
			Quantity: "state",
			Value:    "",
			Reason:   fmt.Sprintf("profile '%s' declares no state query", d.profile.Model),
		}
	}
	reply, err := d.drv.Query(d.profile.StateGet)
	if err != nil {
		return false, err
	}
	return d.profile.parseState(reply)
}

// On enables the output. Equivalent to SetState(true).
func (d *Device) On() error { return d.SetState(true) }

// Off disables the output. Equivalent to SetState(false).
func (d *Device) Off() error { return d.SetState(false) }

// Toggle reverses the current output state.
func (d *Device) Toggle() error {
	state, err := d.GetState()
	if err != nil {
		return err
	}
	return d.SetState(!state)
}

// SetMode selects an operating mode. The token is validated against the
// profile's declared mode set before any command is sent.
func (d *Device) SetMode(mode string) error {
	if d.profile.ModeSet == "" {
		return &ValidationError{
			Quantity: "mode",
			Value:    mode,
			Reason:   fmt.Sprintf("profile '%s' declares no modes", d.profile.Model),
		}
	}
	canonical, ok := d.profile.CanonicalMode(mode)
	if !ok {
		return &ValidationError{
			Quantity: "mode",
			Value:    mode,
			Reason:   fmt.Sprintf("not one of %s", strings.Join(d.profile.Modes, ", ")),
		}
	}
	return d.drv.Send(fmt.Sprintf(d.profile.ModeSet, canonical))
}

// Mode reads the current operating mode as one of the profile's declared
// tokens.
func (d *Device) Mode() (string, error) {
	if d.profile.ModeGet == "" {
		return "", &ValidationError{
			Quantity: "mode",
			Value:    "",
			Reason:   fmt.Sprintf("profile '%s' declares no mode query", d.profile.Model),
		}
	}
	reply, err := d.drv.Query(d.profile.ModeGet)
	if err != nil {
		return "", err
	}
	canonical, ok := d.profile.CanonicalMode(strings.TrimSpace(reply))
	if !ok {
		return "", &ParseError{
			Reply:  reply,
			Expect: fmt.Sprintf("one of %s", strings.Join(d.profile.Modes, ", ")),
		}
	}
	return canonical, nil
}

// SetVoltage sets the voltage setpoint in the unit the profile declares.
func (d *Device) SetVoltage(v float64) error { return d.Set(QuantityVoltage, v) }

// SetCurrent sets the current setpoint in the unit the profile declares.
func (d *Device) SetCurrent(v float64) error { return d.Set(QuantityCurrent, v) }

// GetVoltage reads the voltage setpoint.
func (d *Device) GetVoltage() (float64, error) { return d.Get(QuantityVoltage) }

// GetCurrent reads the current setpoint.
func (d *Device) GetCurrent() (float64, error) { return d.Get(QuantityCurrent) }

// MeasureVoltage measures the output voltage.
func (d *Device) MeasureVoltage() (float64, error) { return d.Measure(QuantityVoltage) }

// MeasureCurrent measures the output current.
func (d *Device) MeasureCurrent() (float64, error) { return d.Measure(QuantityCurrent) }

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
