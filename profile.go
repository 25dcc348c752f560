// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Quantity declares one settable or measurable physical quantity of an
// instrument model: its command templates, its valid range and its unit.
// Templates are printf-style with a single %g verb for the value.
type Quantity struct {
	// Set is the template of the setpoint command, e.g. "SOUR:VOLT %g".
	// Empty for read-only quantities.
	Set string `yaml:"set"`
	// Get is the setpoint query, e.g. "SOUR:VOLT?".
	Get string `yaml:"get"`
	// Measure is the measurement query, e.g. "MEAS:VOLT?". Empty for
	// quantities that are setpoints only.
	Measure string `yaml:"measure"`
	// Min and Max bound the settable range, in Unit.
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
	// Unit is documentation only; values pass through unconverted.
	Unit string `yaml:"unit"`
	// Verify makes Set read the setpoint back and compare.
	Verify bool `yaml:"verify"`
}

// Profile is the immutable per-model command table. It maps the logical
// operations of the accessor layer to wire commands, token vocabularies
// and declared ranges. A profile is selected once at device construction,
// is never mutated at runtime and may be shared by any number of devices.
type Profile struct {
	// Model names the instrument model family, e.g. "Chroma 62000P".
	Model string `yaml:"model"`

	// StateSet and StateGet control the output relay, e.g.
	// "CONF:OUTP %s" / "CONF:OUTP?".
	StateSet string `yaml:"state_set"`
	StateGet string `yaml:"state_get"`
	// On and Off are the model's enable tokens for StateSet; models vary
	// between "1"/"0" and "ON"/"OFF".
	On  string `yaml:"on"`
	Off string `yaml:"off"`
	// OnReply and OffReply are the tokens the StateGet query returns.
	// They default to On and Off; some models set with "1"/"0" but
	// report "ON"/"OFF".
	OnReply  string `yaml:"on_reply"`
	OffReply string `yaml:"off_reply"`

	// Quantities maps logical quantity names ("voltage", "current", ...)
	// to their command entries.
	Quantities map[string]Quantity `yaml:"quantities"`

	// ModeSet, ModeGet and Modes declare the operating-mode vocabulary,
	// e.g. ModeSet "MODE %s" with Modes [CC, CV, CR, CP] for a load.
	ModeSet string   `yaml:"mode_set"`
	ModeGet string   `yaml:"mode_get"`
	Modes   []string `yaml:"modes"`
}

// LoadProfile reads and validates a YAML profile.
func LoadProfile(r io.Reader) (*Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("scpi: cannot decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadProfileFile reads and validates a YAML profile from a file.
func LoadProfileFile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scpi: cannot open profile: %w", err)
	}
	defer f.Close()

	p, err := LoadProfile(f)
	if err != nil {
		return nil, fmt.Errorf("%w (from %s)", err, path)
	}
	return p, nil
}

// Validate checks the profile for well-formedness.
func (p *Profile) Validate() error {
	if p.Model == "" {
		return fmt.Errorf("scpi: profile must name a model")
	}
	if p.StateSet != "" {
		if p.On == "" || p.Off == "" {
			return fmt.Errorf("scpi: profile '%s' declares state commands without on/off tokens", p.Model)
		}
		if p.On == p.Off {
			return fmt.Errorf("scpi: profile '%s' uses the same token for on and off", p.Model)
		}
	}
	for name, q := range p.Quantities {
		if q.Set == "" && q.Get == "" && q.Measure == "" {
			return fmt.Errorf("scpi: quantity '%s' of profile '%s' has no commands", name, p.Model)
		}
		if q.Set != "" && q.Min > q.Max {
			return fmt.Errorf("scpi: quantity '%s' of profile '%s' has range [%g, %g] with min > max",
				name, p.Model, q.Min, q.Max)
		}
		if q.Verify && q.Get == "" {
			return fmt.Errorf("scpi: quantity '%s' of profile '%s' requires verification but has no get query",
				name, p.Model)
		}
	}
	if p.ModeSet != "" && len(p.Modes) == 0 {
		return fmt.Errorf("scpi: profile '%s' declares a mode command without mode tokens", p.Model)
	}
	return nil
}

// Quantity looks up a quantity entry by its logical name.
func (p *Profile) Quantity(name string) (Quantity, bool) {
	q, ok := p.Quantities[name]
	return q, ok
}

// CanonicalMode returns the profile's spelling of mode and whether the
// token is part of the declared mode set. Matching is case-insensitive.
func (p *Profile) CanonicalMode(mode string) (string, bool) {
	for _, m := range p.Modes {
		if strings.EqualFold(m, mode) {
			return m, true
		}
	}
	return "", false
}

func (p *Profile) stateToken(on bool) string {
	if on {
		return p.On
	}
	return p.Off
}

// parseState maps a state query reply back to a boolean, accepting the
// reply tokens first and the set tokens as fallback.
func (p *Profile) parseState(reply string) (bool, error) {
	token := strings.TrimSpace(reply)
	switch {
	case equalsToken(token, p.OnReply), equalsToken(token, p.On):
		return true, nil
	case equalsToken(token, p.OffReply), equalsToken(token, p.Off):
		return false, nil
	}
	return false, &ParseError{
		Reply:  reply,
		Expect: fmt.Sprintf("state token '%s' or '%s'", p.onReplyToken(), p.offReplyToken()),
	}
}

func (p *Profile) onReplyToken() string {
	if p.OnReply != "" {
		return p.OnReply
	}
	return p.On
}

func (p *Profile) offReplyToken() string {
	if p.OffReply != "" {
		return p.OffReply
	}
	return p.Off
}

func equalsToken(reply, token string) bool {
	return token != "" && strings.EqualFold(reply, token)
}
