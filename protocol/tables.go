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

package protocol

import "strings"

// EN 13757-3, 4.2.3.
var deviceTypes = map[uint8]string{
	0x00: "Other",
	0x01: "Oil",
	0x02: "Electricity",
	0x03: "Gas",
	0x04: "Heat",
	0x05: "Steam",
	0x06: "Warm Water (30 °C ... 90 °C)",
	0x07: "Water",
	0x08: "Heat Cost Allocator",
	0x09: "Compressed Air",
	0x0a: "Cooling load meter (Volume measured at return temperature: outlet)",
	0x0b: "Cooling load meter (Volume measured at flow temperature: inlet)",
	0x0c: "Heat (Volume measured at flow temperature: inlet)",
	0x0d: "Heat / Cooling load meter",
	0x0e: "Bus / System component",
	0x0f: "Unknown Medium",
	0x10: "Reserved for utility meter",
	0x11: "Reserved for utility meter",
	0x12: "Reserved for utility meter",
	0x13: "Reserved for utility meter",
	0x14: "Calorific value",
	0x15: "Hot water (> 90 °C)",
	0x16: "Cold water",
	0x17: "Dual register (hot/cold) Water meter",
	0x18: "Pressure",
	0x19: "A/D Converter",
	0x1a: "Smokedetector",
	0x1b: "Room sensor (e.g. temperature or humidity)",
	0x1c: "Gasdetector",
	0x1d: "Reserved for sensors",
	0x1e: "Reserved for sensors",
	0x1f: "Reserved for sensors",
	0x20: "Breaker (electricity)",
	0x21: "Valve (gas)",
	0x22: "Reserved for switching devices",
	0x23: "Reserved for switching devices",
	0x24: "Reserved for switching devices",
	0x25: "Customer unit (Display device)",
	0x26: "Reserved for customer units",
	0x27: "Reserved for customer units",
	0x28: "Waste water",
	0x29: "Garbage",
	0x2a: "Carbon dioxide",
	0x2b: "Environmental meter",
	0x2c: "Environmental meter",
	0x2d: "Environmental meter",
	0x2e: "Environmental meter",
	0x2f: "Environmental meter",
	0x31: "OMS MUC",
	0x32: "OMS unidirectional repeater",
	0x33: "OMS bidirectional repeater",
	0x37: "Radio converter (Meter side)",
}

func DeviceTypeName(t uint8) string {
	if name, ok := deviceTypes[t]; ok {
		return name
	}
	return "unknown"
}

// The two low bits of the status byte form a code, the remaining bits are
// independent flags. EN 13757-3, 4.2.3.2.
var statusCodes = [4]string{
	"no errors",
	"application busy",
	"any application error",
	"abnormal condition/alarm",
}

var statusFlags = []struct {
	mask uint8
	name string
}{
	{0x04, "battery low"},
	{0x08, "permanent error"},
	{0x10, "temporary error"},
	{0x20, "specific to manufacturer"},
	{0x40, "specific to manufacturer"},
	{0x80, "specific to manufacturer"},
}

// StatusConditions lists the conditions set in a status byte.
func StatusConditions(status uint8) (conditions []string) {
	if status == 0 {
		return []string{statusCodes[0]}
	}
	if code := status & 0x03; code != 0 {
		conditions = append(conditions, statusCodes[code])
	}
	for _, flag := range statusFlags {
		if status&flag.mask != 0 {
			conditions = append(conditions, flag.name)
		}
	}
	return conditions
}

func StatusText(status uint8) string {
	return strings.Join(StatusConditions(status), ", ")
}
