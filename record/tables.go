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

package record

// VIFInfo describes a family of value information codes. A code belongs to
// the family when code&TypeMask == Match. The scale factor of a code is
// 10^(Bias + code&ExpMask).
type VIFInfo struct {
	Type      string
	TypeMask  byte
	ExpMask   byte
	Match     byte
	Bias      int
	Unit      string
	Transform Transform
}

// A Table is searched in order, the first matching entry wins.
type Table []VIFInfo

// Lookup returns the first entry matching the low seven bits of code.
func (t Table) Lookup(code byte) (VIFInfo, bool) {
	code &= 0x7F
	for _, info := range t {
		if code&info.TypeMask == info.Match {
			return info, true
		}
	}
	return VIFInfo{}, false
}

// Primary VIF codes. EN 13757-3, 8.4.3.
var Primary = Table{
	{"energy_wh", 0x78, 0x07, 0x00, -3, "Wh", Numeric},
	{"energy_j", 0x78, 0x07, 0x08, 0, "J", Numeric},
	{"volume", 0x78, 0x07, 0x10, -6, "m³", Numeric},
	{"mass", 0x78, 0x07, 0x18, -3, "kg", Numeric},
	{"on_time_seconds", 0x7F, 0x00, 0x20, 0, "sec", Numeric},
	{"on_time_minutes", 0x7F, 0x00, 0x21, 0, "min", Numeric},
	{"on_time_hours", 0x7F, 0x00, 0x22, 0, "hours", None},
	{"on_time_days", 0x7F, 0x00, 0x23, 0, "days", None},
	{"operating_time_seconds", 0x7F, 0x00, 0x24, 0, "sec", None},
	{"operating_time_minutes", 0x7F, 0x00, 0x25, 0, "min", None},
	{"operating_time_hours", 0x7F, 0x00, 0x26, 0, "hours", None},
	{"operating_time_days", 0x7F, 0x00, 0x27, 0, "days", None},
	{"power_w", 0x78, 0x07, 0x28, -3, "W", Numeric},
	{"power_jh", 0x78, 0x07, 0x30, 0, "J/h", Numeric},
	{"volume_flow_h", 0x78, 0x07, 0x38, -6, "m³/h", Numeric},
	{"volume_flow_min", 0x78, 0x07, 0x40, -7, "m³/min", Numeric},
	{"volume_flow_s", 0x78, 0x07, 0x48, -9, "m³/s", Numeric},
	{"mass_flow", 0x78, 0x07, 0x50, -3, "kg/h", Numeric},
	{"flow_temperature", 0x7C, 0x03, 0x58, -3, "°C", Numeric},
	{"return_temperature", 0x7C, 0x03, 0x5C, -3, "°C", Numeric},
	{"temperature_difference", 0x7C, 0x03, 0x60, -3, "mK", Numeric},
	{"external_temperature", 0x7C, 0x03, 0x64, -3, "°C", Numeric},
	{"pressure", 0x7C, 0x03, 0x68, -3, "bar", Numeric},
	{"date", 0x7F, 0x00, 0x6C, 0, "", Date},
	{"date_time", 0x7F, 0x00, 0x6D, 0, "", DateTime},
	{"hca_units", 0x7F, 0x00, 0x6E, 0, "", Numeric},
	{"fabrication_number", 0x7F, 0x00, 0x78, 0, "", Numeric},
	{"owner_number", 0x7F, 0x00, 0x79, 0, "", None},
	{"averaging_duration_seconds", 0x7F, 0x00, 0x70, 0, "sec", Numeric},
	{"averaging_duration_minutes", 0x7F, 0x00, 0x71, 0, "min", Numeric},
	{"averaging_duration_hours", 0x7F, 0x00, 0x72, 0, "hours", None},
	{"averaging_duration_days", 0x7F, 0x00, 0x73, 0, "days", None},
	{"actuality_duration_seconds", 0x7F, 0x00, 0x74, 0, "sec", Numeric},
	{"actuality_duration_minutes", 0x7F, 0x00, 0x75, 0, "min", Numeric},
	{"actuality_duration_hours", 0x7F, 0x00, 0x76, 0, "hours", None},
	{"actuality_duration_days", 0x7F, 0x00, 0x77, 0, "days", None},
}

// Codes following the 0xFD extension indicator. EN 13757-3, 8.4.4 a.
var ExtensionFD = Table{
	{"credit", 0x7C, 0x03, 0x00, -3, "€", Numeric},
	{"debit", 0x7C, 0x03, 0x04, -3, "€", Numeric},
	{"access_number", 0x7F, 0x00, 0x08, 0, "", Numeric},
	{"medium", 0x7F, 0x00, 0x09, 0, "", Numeric},
	{"model_version", 0x7F, 0x00, 0x0C, 0, "", Numeric},
	{"error_flags", 0x7F, 0x00, 0x17, 0, "", Hex},
	{"duration_since_readout", 0x7C, 0x03, 0x2C, 0, "s", TimePeriod},
	{"voltage", 0x70, 0x0F, 0x40, -9, "V", Numeric},
	{"current", 0x70, 0x0F, 0x50, -12, "A", Numeric},
	{"reception_level", 0x7F, 0x00, 0x71, 0, "dBm", Numeric},
	{"reserved", 0x70, 0x00, 0x70, 0, "Reserved", None},
}

// Codes following the 0xFB extension indicator. EN 13757-3, 8.4.4 b.
var ExtensionFB = Table{
	{"energy_mwh", 0x7E, 0x01, 0x00, -1, "MWh", Numeric},
}

// Orthogonal VIFE codes that refine the primary VIF. EN 13757-3, 8.4.5.
var Other = Table{
	{"error_none", 0x7F, 0x00, 0x00, 0, "No error", None},
	{"too_many_difes", 0x7F, 0x00, 0x01, 0, "Too many DIFEs", None},
	{"illegal_vif_group", 0x7F, 0x00, 0x0C, 0, "Illegal VIF-Group", None},
	{"per_second", 0x7F, 0x00, 0x20, 0, "per second", None},
	{"per_minute", 0x7F, 0x00, 0x21, 0, "per minute", None},
	{"per_hour", 0x7F, 0x00, 0x22, 0, "per hour", None},
	{"per_day", 0x7F, 0x00, 0x23, 0, "per day", None},
	{"per_week", 0x7F, 0x00, 0x24, 0, "per week", None},
	{"per_month", 0x7F, 0x00, 0x25, 0, "per month", None},
	{"per_year", 0x7F, 0x00, 0x26, 0, "per year", None},
	{"per_revolution", 0x7F, 0x00, 0x27, 0, "per revolution/measurement", None},
	{"increment_per_input_pulse", 0x7E, 0x00, 0x28, 0, "increment per input pulse on input channel #", Numeric},
	{"increment_per_output_pulse", 0x7E, 0x00, 0x2A, 0, "increment per output pulse on output channel #", Numeric},
	{"per_liter", 0x7F, 0x00, 0x2C, 0, "per liter", None},
	{"start_date_time", 0x7F, 0x00, 0x39, 0, "start date(/time) of", None},
	{"accumulation_if_positive", 0x7F, 0x00, 0x3B, 0, "Accumulation only if positive contribution", None},
	{"number_of_exceeds", 0x77, 0x00, 0x41, 0, "# of exceeds", Limit},
	{"duration_of_limit_exceeded", 0x70, 0x00, 0x50, 0, "duration of limit exceeded", LimitDuration},
	{"correction_factor", 0x78, 0x07, 0x70, -6, "", None},
	{"correction_factor_1000", 0x7F, 0x00, 0x7D, 0, "", Correction1000},
	{"future_value", 0x7F, 0x00, 0x7E, 0, "", None},
	{"manufacturer_specific", 0x7F, 0x00, 0x7F, 0, "manufacturer specific", None},
}

var functionFields = [4]string{
	"Instantaneous value",
	"Maximum value",
	"Minimum value",
	"Value during error state",
}

// Units of a time period, selected by the exponent bits.
var timeUnits = [4]string{"s", "m", "h", "d"}
