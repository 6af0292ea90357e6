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

// Package crc implements table driven, non-reflected 16-bit CRCs.
package crc

import "fmt"

// EN13757 is the checksum protecting every wireless M-Bus block.
var EN13757 = NewCRC("EN13757", 0, 0x3D65, 0xFFFF)

type CRC struct {
	Name   string
	Init   uint16
	Poly   uint16
	XorOut uint16

	tbl Table
}

func NewCRC(name string, init, poly, xorOut uint16) (crc CRC) {
	crc.Name = name
	crc.Init = init
	crc.Poly = poly
	crc.XorOut = xorOut
	crc.tbl = NewTable(crc.Poly)

	return
}

func (crc CRC) String() string {
	return fmt.Sprintf("{Name:%s Init:0x%04X Poly:0x%04X XorOut:0x%04X}", crc.Name, crc.Init, crc.Poly, crc.XorOut)
}

// Checksum returns the register after all of data has been shifted in,
// XORed with XorOut.
func (crc CRC) Checksum(data []byte) uint16 {
	return Checksum(crc.Init, data, crc.tbl) ^ crc.XorOut
}

// Verify reports whether data checksums to expected.
func (crc CRC) Verify(data []byte, expected uint16) bool {
	return crc.Checksum(data) == expected
}

type Table [256]uint16

func NewTable(poly uint16) (table Table) {
	for tIdx := range table {
		crc := uint16(tIdx) << 8
		for bIdx := 0; bIdx < 8; bIdx++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc = crc << 1
			}
		}
		table[tIdx] = crc
	}
	return table
}

func Checksum(init uint16, data []byte, table Table) (crc uint16) {
	crc = init
	for _, v := range data {
		crc = crc<<8 ^ table[crc>>8^uint16(v)]
	}
	return
}
