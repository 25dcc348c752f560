// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInstrument implements CommandSender and emulates a supply with an
// output relay, setpoints and canned measurement replies.
type fakeInstrument struct {
	sends   []string
	queries []string
	replies map[string]string

	output   bool
	setpoint map[string]string
}

func newFakeInstrument() *fakeInstrument {
	return &fakeInstrument{
		replies:  make(map[string]string),
		setpoint: make(map[string]string),
	}
}

func (f *fakeInstrument) Send(cmd string) error {
	f.sends = append(f.sends, cmd)
	switch {
	case cmd == "CONF:OUTP 1":
		f.output = true
	case cmd == "CONF:OUTP 0":
		f.output = false
	case strings.HasPrefix(cmd, "SOUR:VOLT "):
		f.setpoint["SOUR:VOLT?"] = strings.TrimPrefix(cmd, "SOUR:VOLT ")
	case strings.HasPrefix(cmd, "SOUR:CURR "):
		f.setpoint["SOUR:CURR?"] = strings.TrimPrefix(cmd, "SOUR:CURR ")
	}
	return nil
}

func (f *fakeInstrument) Query(cmd string) (string, error) {
	f.queries = append(f.queries, cmd)
	if cmd == "CONF:OUTP?" {
		if f.output {
			return "ON", nil
		}
		return "OFF", nil
	}
	if v, ok := f.setpoint[cmd]; ok {
		return v, nil
	}
	if v, ok := f.replies[cmd]; ok {
		return v, nil
	}
	return "", &TimeoutError{Command: cmd, Timeout: "1s"}
}

func (f *fakeInstrument) transportCalls() int {
	return len(f.sends) + len(f.queries)
}

func testProfile() *Profile {
	return &Profile{
		Model:    "Test Supply",
		StateSet: "CONF:OUTP %s",
		StateGet: "CONF:OUTP?",
		On:       "1",
		Off:      "0",
		OnReply:  "ON",
		OffReply: "OFF",
		Quantities: map[string]Quantity{
			QuantityVoltage: {
				Set:     "SOUR:VOLT %g",
				Get:     "SOUR:VOLT?",
				Measure: "MEAS:VOLT?",
				Min:     0,
				Max:     60,
				Unit:    "V",
			},
			QuantityCurrent: {
				Set:    "SOUR:CURR %g",
				Get:    "SOUR:CURR?",
				Min:    0,
				Max:    10,
				Unit:   "A",
				Verify: true,
			},
			QuantityPower: {
				Measure: "MEAS:POW?",
				Unit:    "W",
			},
		},
		ModeSet: "FUNC %s",
		ModeGet: "FUNC?",
		Modes:   []string{"CC", "CR", "CV", "CP"},
	}
}

func newTestDevice(t *testing.T) (*Device, *fakeInstrument) {
	t.Helper()
	fake := newFakeInstrument()
	dev, err := NewDevice(fake, testProfile())
	require.NoError(t, err)
	return dev, fake
}

func TestDeviceSetFormatsCommand(t *testing.T) {
	dev, fake := newTestDevice(t)

	require.NoError(t, dev.SetVoltage(12.5))
	assert.Equal(t, []string{"SOUR:VOLT 12.5"}, fake.sends)
}

func TestDeviceSetOutOfRangeFailsBeforeTransport(t *testing.T) {
	dev, fake := newTestDevice(t)

	for _, v := range []float64{-0.001, 60.001, 1e9} {
		err := dev.SetVoltage(v)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "value %g", v)
	}
	assert.Zero(t, fake.transportCalls(), "validation must fail before any command is sent")
}

func TestDeviceSetRangeBoundsAreValid(t *testing.T) {
	dev, _ := newTestDevice(t)

	assert.NoError(t, dev.SetVoltage(0))
	assert.NoError(t, dev.SetVoltage(60))
}

func TestDeviceSetUnknownQuantity(t *testing.T) {
	dev, fake := newTestDevice(t)

	err := dev.Set("temperature", 25)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, fake.transportCalls())
}

func TestDeviceSetVerifyReadsBack(t *testing.T) {
	dev, fake := newTestDevice(t)

	require.NoError(t, dev.SetCurrent(5))
	assert.Equal(t, []string{"SOUR:CURR 5"}, fake.sends)
	assert.Equal(t, []string{"SOUR:CURR?"}, fake.queries)
}

// cannedSender answers queries from a fixed table, so a readback cannot
// follow the setpoint.
type cannedSender struct {
	replies map[string]string
}

func (c *cannedSender) Send(string) error { return nil }

func (c *cannedSender) Query(cmd string) (string, error) {
	return c.replies[cmd], nil
}

func TestDeviceSetVerifyMismatch(t *testing.T) {
	sender := &cannedSender{replies: map[string]string{"SOUR:CURR?": "4.5"}}
	dev, err := NewDevice(sender, testProfile())
	require.NoError(t, err)

	err = dev.SetCurrent(5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readback")
}

func TestDeviceMeasureParsesReply(t *testing.T) {
	dev, fake := newTestDevice(t)
	fake.replies["MEAS:VOLT?"] = "47.98645785\n"

	v, err := dev.MeasureVoltage()
	require.NoError(t, err)
	assert.Equal(t, 47.98645785, v)
}

func TestDeviceMeasureScientificNotation(t *testing.T) {
	dev, fake := newTestDevice(t)
	fake.replies["MEAS:POW?"] = "+1.250000E+02"

	v, err := dev.Measure(QuantityPower)
	require.NoError(t, err)
	assert.Equal(t, 125.0, v)
}

func TestDeviceMeasureParseError(t *testing.T) {
	dev, fake := newTestDevice(t)
	fake.replies["MEAS:VOLT?"] = "FNORD"

	_, err := dev.MeasureVoltage()
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestDeviceMeasureUndeclaredQuantity(t *testing.T) {
	dev, _ := newTestDevice(t)

	_, err := dev.Measure(QuantityCurrent) // no measure template declared
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDeviceStateRoundTrip(t *testing.T) {
	dev, _ := newTestDevice(t)

	for _, want := range []bool{true, false, true} {
		require.NoError(t, dev.SetState(want))
		got, err := dev.GetState()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDeviceOnOffToggle(t *testing.T) {
	dev, fake := newTestDevice(t)

	require.NoError(t, dev.On())
	assert.True(t, fake.output)
	require.NoError(t, dev.Toggle())
	assert.False(t, fake.output)
	require.NoError(t, dev.Off())
	assert.False(t, fake.output)
}

func TestDeviceSetModeCanonicalizes(t *testing.T) {
	dev, fake := newTestDevice(t)

	require.NoError(t, dev.SetMode("cc"))
	assert.Equal(t, []string{"FUNC CC"}, fake.sends)
}

func TestDeviceSetModeRejectsUnknownToken(t *testing.T) {
	dev, fake := newTestDevice(t)

	err := dev.SetMode("CZ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, fake.transportCalls())
}

func TestDeviceMode(t *testing.T) {
	dev, fake := newTestDevice(t)
	fake.replies["FUNC?"] = "CR\n"

	mode, err := dev.Mode()
	require.NoError(t, err)
	assert.Equal(t, "CR", mode)

	fake.replies["FUNC?"] = "???"
	_, err = dev.Mode()
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestNewDeviceValidatesProfile(t *testing.T) {
	broken := testProfile()
	broken.Quantities["voltage"] = Quantity{Set: "SOUR:VOLT %g", Min: 10, Max: 0}

	_, err := NewDevice(newFakeInstrument(), broken)
	require.Error(t, err)

	_, err = NewDevice(newFakeInstrument(), nil)
	require.Error(t, err)
}

func TestDeviceSetFormatsLargeAndSmallValues(t *testing.T) {
	profile := testProfile()
	q := profile.Quantities[QuantityVoltage]
	q.Min, q.Max = -1e6, 1e6
	profile.Quantities[QuantityVoltage] = q

	fake := newFakeInstrument()
	dev, err := NewDevice(fake, profile)
	require.NoError(t, err)

	for i, tt := range []struct {
		value float64
		want  string
	}{
		{0.001, "SOUR:VOLT 0.001"},
		{250000, "SOUR:VOLT 250000"},
		{-12.125, "SOUR:VOLT -12.125"},
	} {
		require.NoError(t, dev.SetVoltage(tt.value))
		assert.Equal(t, tt.want, fake.sends[i], fmt.Sprintf("value %g", tt.value))
	}
}
