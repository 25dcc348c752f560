// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"
)

func TestParseIdentification(t *testing.T) {
	got, err := ParseIdentification("Chroma ATE, 62012P-80-60, 03.30, 12345678")
	if err != nil {
		t.Fatal(err)
	}
	want := IdentificationRecord{
		Manufacturer: "Chroma ATE",
		Model:        "62012P-80-60",
		Serial:       "03.30",
		Firmware:     "12345678",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected record (-want +got):\n%s", diff)
	}
}

func TestParseIdentificationErrors(t *testing.T) {
	bad := []string{
		"",
		"hello",
		"a,b,c",
		"a,b,c,d,e",
	}
	for _, reply := range bad {
		_, err := ParseIdentification(reply)
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("ParseIdentification(%q) expected a ParseError, got %v", reply, err)
		}
	}
}

func TestParseIdentificationRoundTrip(t *testing.T) {
	field := rapid.StringMatching(`[A-Za-z0-9._-]{1,12}`)
	rapid.Check(t, func(t *rapid.T) {
		want := IdentificationRecord{
			Manufacturer: field.Draw(t, "manufacturer"),
			Model:        field.Draw(t, "model"),
			Serial:       field.Draw(t, "serial"),
			Firmware:     field.Draw(t, "firmware"),
		}
		reply := strings.Join([]string{want.Manufacturer, want.Model, want.Serial, want.Firmware}, ",")
		got, err := ParseIdentification(reply)
		if err != nil {
			t.Fatalf("error while parsing %q: %+v", reply, err)
		}
		if !cmp.Equal(want, got) {
			t.Errorf("invalid record: %s", cmp.Diff(want, got))
		}
	})
}
