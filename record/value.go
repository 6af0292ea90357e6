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

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type ValueType int

const (
	Empty ValueType = iota
	Integer
	Float
	Text
)

// Value is a raw or computed record value.
type Value struct {
	Type  ValueType
	Int   int64
	Float float64
	Text  string
	// Decimals fixes the number of digits after the point of a Float,
	// zero prints the shortest representation.
	Decimals int
}

func IntValue(v int64) Value { return Value{Type: Integer, Int: v} }

func FloatValue(v float64, decimals int) Value {
	return Value{Type: Float, Float: v, Decimals: decimals}
}

func TextValue(s string) Value { return Value{Type: Text, Text: s} }

func (v Value) String() string {
	switch v.Type {
	case Integer:
		return strconv.FormatInt(v.Int, 10)
	case Float:
		if v.Decimals > 0 {
			return strconv.FormatFloat(v.Float, 'f', v.Decimals, 64)
		}
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case Text:
		return v.Text
	}
	return ""
}

// Number returns the value as a float for numeric values.
func (v Value) Number() (float64, bool) {
	switch v.Type {
	case Integer:
		return float64(v.Int), true
	case Float:
		return v.Float, true
	}
	return 0, false
}

func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Type {
	case Integer, Float:
		return []byte(v.String()), nil
	case Text:
		return json.Marshal(v.Text)
	}
	return []byte("null"), nil
}

// Transform selects how a raw value becomes a computed value.
type Transform int

const (
	None Transform = iota
	Numeric
	Date
	DateTime
	Hex
	Limit
	LimitDuration
	Correction1000
	TimePeriod
)

var transformNames = [...]string{
	"none",
	"numeric",
	"date",
	"date_time",
	"hex",
	"limit",
	"limit_duration",
	"correction_1000",
	"time_period",
}

func (t Transform) String() string {
	if t >= 0 && int(t) < len(transformNames) {
		return transformNames[t]
	}
	return fmt.Sprintf("Transform(%d)", int(t))
}

// FormatDate renders t with a pattern made of the tokens YYYY, MM, DD, hh
// and mm.
func FormatDate(t time.Time, pattern string) string {
	return strings.NewReplacer(
		"YYYY", fmt.Sprintf("%04d", t.Year()),
		"MM", fmt.Sprintf("%02d", int(t.Month())),
		"DD", fmt.Sprintf("%02d", t.Day()),
		"hh", fmt.Sprintf("%02d", t.Hour()),
		"mm", fmt.Sprintf("%02d", t.Minute()),
	).Replace(pattern)
}

type DateFormatter func(t time.Time, pattern string) string

// apply computes the value of vif from raw. Unit and value updates that
// belong to the record, rather than to vif, go to rec.
func (d Decoder) apply(raw Value, vif *VIF, rec *DataRecord) Value {
	switch vif.Transform {
	case Numeric:
		return scale(raw, vif.Bias+vif.Exponent)
	case Date:
		if raw.Type != Integer {
			return raw
		}
		return TextValue(d.date(uint16(raw.Int)))
	case DateTime:
		if raw.Type != Integer {
			return raw
		}
		return TextValue(d.dateTime(uint32(raw.Int)))
	case Hex:
		if raw.Type != Integer {
			return raw
		}
		return TextValue(strconv.FormatUint(uint64(raw.Int), 16))
	case Limit:
		return TextValue(limit(raw.Int))
	case LimitDuration:
		return TextValue(limitDuration(raw.Int))
	case Correction1000:
		rec.Value = scale(rec.Value, 3)
		return TextValue("correction by factor 1000")
	case TimePeriod:
		rec.VIF.Unit = timeUnits[vif.Exponent&0x03]
		return raw
	}
	return raw
}

// Largest power of ten an int64 holds.
const maxPow10 = 18

// scale multiplies numeric values by 10^exp. Integers scaled by a negative
// power of ten stay integers when no fraction remains, otherwise they keep
// -exp decimals. Integers the product would overflow become floats.
func scale(v Value, exp int) Value {
	switch v.Type {
	case Integer:
		if exp >= 0 {
			if exp > maxPow10 {
				return FloatValue(float64(v.Int)*math.Pow10(exp), 0)
			}
			mult := int64(math.Pow10(exp))
			if v.Int > math.MaxInt64/mult || v.Int < math.MinInt64/mult {
				return FloatValue(float64(v.Int)*float64(mult), 0)
			}
			return IntValue(v.Int * mult)
		}
		if -exp > maxPow10 {
			return FloatValue(float64(v.Int)*math.Pow10(exp), -exp)
		}
		div := int64(math.Pow10(-exp))
		if v.Int%div == 0 {
			return IntValue(v.Int / div)
		}
		return FloatValue(float64(v.Int)/float64(div), -exp)
	case Float:
		f := v.Float * math.Pow10(exp)
		if exp < 0 && f != math.Trunc(f) {
			return FloatValue(f, -exp)
		}
		return FloatValue(f, 0)
	}
	return v
}

func invalid(v uint64) string {
	return fmt.Sprintf("invalid: %d", v)
}

// Type G: day in bits 0-4, month in bits 8-11, year split over bits 5-7
// and 12-15.
func splitDate(v uint16) (year, month, day int) {
	day = int(v & 0x1F)
	month = int(v & 0x0F00 >> 8)
	year = int(v&0xF000>>9|v&0xE0>>5) + 2000
	return
}

func validDate(year, month, day int) (time.Time, bool) {
	if day < 1 || day > 31 || month < 1 || month > 12 || year > 2099 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t, t.Day() == day
}

func (d Decoder) date(v uint16) string {
	t, ok := validDate(splitDate(v))
	if !ok {
		d.Log.Errorf("invalid date 0x%04X", v)
		return invalid(uint64(v))
	}
	return d.FormatDate(t, "YYYY-MM-DD")
}

// Type F: type G date in the high word, minute in bits 0-5, invalid flag
// in bit 7, hour in bits 8-12 and summer time in bit 15.
func (d Decoder) dateTime(v uint32) string {
	t, ok := validDate(splitDate(uint16(v >> 16)))
	if !ok {
		d.Log.Errorf("invalid date time 0x%08X", v)
		return invalid(uint64(v))
	}
	if v&0x80 != 0 {
		return d.FormatDate(t, "YYYY-MM-DD")
	}

	minute := int(v & 0x3F)
	hour := int(v >> 8 & 0x1F)
	if minute > 59 || hour > 23 {
		return invalid(uint64(v))
	}

	s := d.FormatDate(t.Add(time.Duration(hour)*time.Hour+time.Duration(minute)*time.Minute), "YYYY-MM-DD hh:mm")
	if v&0x8000 != 0 {
		s += " DST"
	}
	return s
}

func limit(v int64) string {
	if v&0x08 != 0 {
		return "upper limit"
	}
	return "lower limit"
}

func limitDuration(v int64) string {
	s := limit(v)
	if v&0x04 != 0 {
		s += ", first"
	} else {
		s += ", last"
	}
	return fmt.Sprintf("%s, duration %d", s, v&0x03)
}
