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

import (
	"fmt"
	"strconv"
	"strings"
)

// IDDigits is the width of device and meter identifiers.
const IDDigits = 8

// DecodeBCD interprets digits/2 bytes of data as little endian digit pairs,
// each byte holding a tens digit in its high nibble and a units digit in its
// low nibble.
func DecodeBCD(digits int, data []byte) (val uint64) {
	mult := uint64(1)
	for idx := 0; idx < digits/2 && idx < len(data); idx++ {
		b := data[idx]
		val += uint64(b&0x0F+(b>>4)*10) * mult
		mult *= 100
	}
	return
}

// FormatID renders n in decimal, left padded with zeros to width digits.
func FormatID(n uint64, width int) string {
	s := strconv.FormatUint(n, 10)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// EncodeManufacturer packs three uppercase letters into a manufacturer id,
// five bits per letter, most significant letter first.
func EncodeManufacturer(code string) (uint16, error) {
	if len(code) != 3 {
		return 0, fmt.Errorf("manufacturer code must be 3 letters, got %q", code)
	}

	var id uint16
	for idx := 0; idx < 3; idx++ {
		c := code[idx]
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("manufacturer code must be uppercase letters, got %q", code)
		}
		id = id<<5 | uint16(c-64)
	}
	return id, nil
}

// DecodeManufacturer unpacks a manufacturer id. Some devices send lower
// case letters, the result is always upper case.
func DecodeManufacturer(id uint16) string {
	letters := []byte{
		byte(id>>10&0x1F) + 64,
		byte(id>>5&0x1F) + 64,
		byte(id&0x1F) + 64,
	}
	return strings.ToUpper(string(letters))
}
