// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

// Package test holds integration tests that need a reachable instrument.
// Set SCPI_TEST_ADDRESS to a VISA resource address to run them, e.g.
//
//	SCPI_TEST_ADDRESS="TCPIP0::10.0.0.7::5025::SOCKET" go test ./test/
package test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/benchkit/scpi"
)

func liveAddress(t *testing.T) string {
	t.Helper()
	address := os.Getenv("SCPI_TEST_ADDRESS")
	if address == "" {
		t.Skip("SCPI_TEST_ADDRESS not set")
	}
	return address
}

func TestLiveIdentify(t *testing.T) {
	driver, err := scpi.Connect(liveAddress(t), scpi.WithTimeout(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer driver.Close()

	id, err := driver.Identify()
	if err != nil {
		t.Fatal(err)
	}
	if id.Manufacturer == "" || id.Model == "" {
		t.Fatalf("incomplete identification: %+v", id)
	}
	t.Logf("instrument: %s", id)
}

func TestLiveClearStatus(t *testing.T) {
	driver, err := scpi.Connect(liveAddress(t), scpi.WithTimeout(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	defer driver.Close()

	if err := driver.ClearStatus(); err != nil {
		t.Fatal(err)
	}
	done, err := driver.OperationComplete()
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("instrument busy after *CLS")
	}
}

func TestLiveDiscoverStatic(t *testing.T) {
	address := liveAddress(t)

	result, err := scpi.Discover(context.Background(),
		scpi.StaticEnumerator{address}, scpi.WithProbeTimeout(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	probe, ok := result.Lookup(address)
	if !ok || probe.State != scpi.StateIdentified {
		t.Fatalf("instrument not identified: %+v", probe)
	}
	if err := result.Report(os.Stdout); err != nil {
		t.Fatal(err)
	}
}
