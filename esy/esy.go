// WMBUS - A wireless M-Bus telegram decoder for metering gateways.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package esy registers the record profile of EasyMeter electricity meters.
package esy

import "github.com/bemasher/wmbus/record"

const Manufacturer = "ESY"

func init() {
	record.RegisterProfile(NewProfile())
}

// VIFs of the per phase power readings sent after a 0xFF VIF.
var VIFs = record.Table{
	{Type: "phase_number", TypeMask: 0x7E, Match: 0x28, Unit: "phase #", Transform: record.Numeric},
	{Type: "phase_power", TypeMask: 0x40, Match: 0x00, Bias: -2, Unit: "W", Transform: record.Numeric},
}

// ExtensionValue takes the third byte of the VIB in hundreds as the value
// of every VIFE. Shorter VIBs keep the VIFE code.
func ExtensionValue(vib []byte) (record.Value, bool) {
	if len(vib) < 3 {
		return record.Value{}, false
	}
	return record.IntValue(int64(vib[2]) * 100), true
}

func NewProfile() record.Profile {
	return record.Profile{
		Manufacturer:   Manufacturer,
		VIFs:           VIFs,
		ReverseStrings: true,
		ExtensionValue: ExtensionValue,
	}
}
