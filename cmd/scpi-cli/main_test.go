// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseSetArg(t *testing.T) {
	tests := []struct {
		arg         string
		quantity    string
		value       float64
		expectError bool
	}{
		{arg: "voltage=12.5", quantity: "voltage", value: 12.5},
		{arg: "current=1e-3", quantity: "current", value: 0.001},
		{arg: "frequency=-50", quantity: "frequency", value: -50},
		{arg: "voltage", expectError: true},
		{arg: "=12.5", expectError: true},
		{arg: "voltage=twelve", expectError: true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			quantity, value, err := parseSetArg(tt.arg)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if quantity != tt.quantity || value != tt.value {
				t.Fatalf("expected (%s, %g), actual (%s, %g)", tt.quantity, tt.value, quantity, value)
			}
		})
	}
}

func TestParseStateArg(t *testing.T) {
	for arg, want := range map[string]bool{"on": true, "ON": true, "1": true, "off": false, "0": false} {
		got, err := parseStateArg(arg)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("parseStateArg(%q): expected %v, actual %v", arg, want, got)
		}
	}
	if _, err := parseStateArg("maybe"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" TCPIP0::a::SOCKET , ,ASRL1::INSTR")
	want := []string{"TCPIP0::a::SOCKET", "ASRL1::INSTR"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected list (-want +got):\n%s", diff)
	}
}
