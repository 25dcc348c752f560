// Copyright 2024 The benchkit authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package scpi

import (
	"fmt"
	"strings"
)

// IdentificationRecord is the parsed reply to the identification query.
// The four fields follow the IEEE 488.2 *IDN? convention.
type IdentificationRecord struct {
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
}

// ParseIdentification parses an identification reply of exactly four
// comma-separated fields: manufacturer, model, serial, firmware.
func ParseIdentification(reply string) (IdentificationRecord, error) {
	fields := strings.Split(reply, ",")
	if len(fields) != 4 {
		return IdentificationRecord{}, &ParseError{
			Reply:  reply,
			Expect: "four comma-separated identification fields",
		}
	}
	return IdentificationRecord{
		Manufacturer: strings.TrimSpace(fields[0]),
		Model:        strings.TrimSpace(fields[1]),
		Serial:       strings.TrimSpace(fields[2]),
		Firmware:     strings.TrimSpace(fields[3]),
	}, nil
}

func (r IdentificationRecord) String() string {
	return fmt.Sprintf("%s %s (serial %s, firmware %s)", r.Manufacturer, r.Model, r.Serial, r.Firmware)
}
