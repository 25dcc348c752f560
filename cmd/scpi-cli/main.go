// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benchkit/scpi"
)

type option struct {
	address string
	timeout time.Duration
	logIO   bool

	scan     bool
	scanList string
	lxi      bool

	query   string
	send    string
	profile string
	set     string
	measure string
	state   string
}

func main() {
	var opt option
	// general
	flag.StringVar(&opt.address, "address", "", "Example: TCPIP0::10.0.0.7::5025::SOCKET, ASRL/dev/ttyUSB0::INSTR")
	flag.DurationVar(&opt.timeout, "timeout", 5*time.Second, "Per-operation I/O timeout")
	flag.BoolVar(&opt.logIO, "log-io", false, "prints transmitted and received lines to stdout")
	// discovery
	flag.BoolVar(&opt.scan, "scan", false, "probe candidate addresses and report identification results")
	flag.StringVar(&opt.scanList, "scan-addresses", "", "comma-separated resource addresses to probe")
	flag.BoolVar(&opt.lxi, "lxi", false, "enumerate LAN instruments via mDNS for -scan")
	// raw operations
	flag.StringVar(&opt.query, "query", "", "raw query, e.g. 'MEAS:VOLT?'")
	flag.StringVar(&opt.send, "send", "", "raw command with no expected reply, e.g. '*RST'")
	// typed operations
	flag.StringVar(&opt.profile, "profile", "", "YAML command profile for typed operations")
	flag.StringVar(&opt.set, "set", "", "setpoint as quantity=value, e.g. voltage=12.5 (needs -profile)")
	flag.StringVar(&opt.measure, "measure", "", "quantity to measure, e.g. current (needs -profile)")
	flag.StringVar(&opt.state, "state", "", "output state: on or off (needs -profile)")

	flag.Parse()

	if len(os.Args) == 1 {
		flag.PrintDefaults()
		return
	}

	logger := slog.Default()
	if err := run(opt, logger); err != nil {
		logger.Error(err.Error())
		os.Exit(-1)
	}
}

func run(opt option, logger *slog.Logger) error {
	if opt.scan {
		return runScan(opt)
	}
	if opt.address == "" {
		return errors.New("an -address is required")
	}

	opts := []scpi.Option{scpi.WithTimeout(opt.timeout)}
	if opt.logIO {
		opts = append(opts, scpi.WithLogger(&debugAdapter{logger}))
	}

	driver, err := scpi.Connect(opt.address, opts...)
	if err != nil {
		return err
	}
	defer driver.Close()

	switch {
	case opt.send != "":
		return driver.Send(opt.send)
	case opt.query != "":
		reply, err := driver.Query(opt.query)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	case opt.profile != "":
		return runTyped(driver, opt)
	default:
		id, err := driver.Identify()
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	}
}

func runScan(opt option) error {
	var enum scpi.Enumerator
	switch {
	case opt.lxi:
		enum = &scpi.LXIEnumerator{}
	case opt.scanList != "":
		enum = scpi.StaticEnumerator(splitList(opt.scanList))
	default:
		return errors.New("-scan needs -scan-addresses or -lxi")
	}

	result, err := scpi.Discover(context.Background(), enum, scpi.WithProbeTimeout(opt.timeout))
	if err != nil {
		return err
	}
	return result.Report(os.Stdout)
}

func runTyped(driver *scpi.Driver, opt option) error {
	profile, err := scpi.LoadProfileFile(opt.profile)
	if err != nil {
		return err
	}
	dev, err := scpi.NewDevice(driver, profile)
	if err != nil {
		return err
	}

	switch {
	case opt.set != "":
		quantity, value, err := parseSetArg(opt.set)
		if err != nil {
			return err
		}
		return dev.Set(quantity, value)
	case opt.measure != "":
		value, err := dev.Measure(opt.measure)
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	case opt.state != "":
		on, err := parseStateArg(opt.state)
		if err != nil {
			return err
		}
		return dev.SetState(on)
	default:
		return errors.New("-profile needs one of -set, -measure or -state")
	}
}

func parseSetArg(arg string) (string, float64, error) {
	quantity, raw, found := strings.Cut(arg, "=")
	if !found || quantity == "" {
		return "", 0, fmt.Errorf("-set argument '%s' must be quantity=value", arg)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", 0, fmt.Errorf("-set argument '%s' has no numeric value", arg)
	}
	return quantity, value, nil
}

func parseStateArg(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on", "1":
		return true, nil
	case "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("-state argument '%s' must be on or off", arg)
}

func splitList(list string) []string {
	var addrs []string
	for _, addr := range strings.Split(list, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}
