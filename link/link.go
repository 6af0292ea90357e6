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

// Package link parses the wireless M-Bus link layer and strips the block
// checksums interleaved with the application data.
package link

import (
	"encoding/binary"
	"fmt"

	"github.com/bemasher/wmbus/crc"
	"github.com/bemasher/wmbus/protocol"
)

const (
	// L C M M A A A A V T
	HeaderSize = 10
	BlockSize  = 16

	DefaultChecksumSize = 2
)

type Header struct {
	Length         uint8  `json:"length"`
	Control        uint8  `json:"control"`
	ManufacturerID uint16 `json:"manufacturer_id"`
	Manufacturer   string `json:"manufacturer"`
	Address        []byte `json:"-" xml:"-"` // A-field as transmitted: id, version and type
	ID             string `json:"id"`
	Version        uint8  `json:"version"`
	DeviceType     uint8  `json:"device_type"`
	DeviceTypeName string `json:"device_type_name"`
}

func (h Header) String() string {
	return fmt.Sprintf("{L:%d C:0x%02X M:%s ID:%s V:%d T:0x%02X}",
		h.Length, h.Control, h.Manufacturer, h.ID, h.Version, h.DeviceType)
}

// IV returns the first 8 bytes of an AES-CBC initialization vector, the
// M-field followed by the A-field.
func (h Header) IV() []byte {
	iv := make([]byte, 2, 8)
	binary.LittleEndian.PutUint16(iv, h.ManufacturerID)
	return append(iv, h.Address...)
}

// Frame is a telegram with its link layer checksums verified and removed.
type Frame struct {
	Header

	PayloadLength int
	Blocks        int
	MessageLength int

	// Application starts with the CI field.
	Application []byte
	Remaining   []byte
}

type Decoder struct {
	CRC          crc.CRC
	ChecksumSize int
	Log          protocol.Logger
}

func NewDecoder(checksumSize int, log protocol.Logger) (Decoder, error) {
	if checksumSize != 0 && checksumSize != DefaultChecksumSize {
		return Decoder{}, fmt.Errorf("unsupported checksum size %d", checksumSize)
	}
	if log == nil {
		log = protocol.NopLogger()
	}
	return Decoder{crc.EN13757, checksumSize, log}, nil
}

func parseHeader(data []byte) (h Header) {
	h.Length = data[0]
	h.Control = data[1]
	h.ManufacturerID = binary.LittleEndian.Uint16(data[2:4])
	h.Manufacturer = protocol.DecodeManufacturer(h.ManufacturerID)
	h.Address = append([]byte(nil), data[4:10]...)
	h.ID = protocol.FormatID(protocol.DecodeBCD(protocol.IDDigits, data[4:8]), protocol.IDDigits)
	h.Version = data[8]
	h.DeviceType = data[9]
	h.DeviceTypeName = protocol.DeviceTypeName(h.DeviceType)
	return
}

// checksum reads a big endian checksum of the configured width.
func (d Decoder) checksum(data []byte) (v uint16) {
	for _, b := range data[:d.ChecksumSize] {
		v = v<<8 | uint16(b)
	}
	return
}

// Decode parses the link layer of msg. When checksumRemoved is set the
// gateway has already stripped the checksums and everything after the
// header is application data.
func (d Decoder) Decode(msg []byte, checksumRemoved bool) (f Frame, err error) {
	size := d.ChecksumSize
	if checksumRemoved {
		size = 0
	}

	if len(msg) < HeaderSize+size {
		return f, protocol.Errorf(protocol.KindMessageTooShort,
			"link layer needs %d bytes, got %d", HeaderSize+size, len(msg))
	}

	f.Header = parseHeader(msg)
	d.Log.Debugf("link header %s", f.Header)

	if checksumRemoved {
		f.Application = msg[HeaderSize:]
		f.PayloadLength = len(f.Application)
		f.MessageLength = len(msg)
		return f, nil
	}

	if size > 0 {
		stored := d.checksum(msg[HeaderSize:])
		if !d.CRC.Verify(msg[:HeaderSize], stored) {
			return f, &protocol.DecodeError{
				Kind:    protocol.KindChecksum,
				Message: fmt.Sprintf("link layer header: expected 0x%04X, calculated 0x%04X", stored, d.CRC.Checksum(msg[:HeaderSize])),
			}
		}
	}

	f.PayloadLength = int(f.Header.Length) - (HeaderSize - 1)
	if f.PayloadLength < 0 {
		return f, protocol.Errorf(protocol.KindMessageTooShort, "length field %d", f.Header.Length)
	}
	f.Blocks = (f.PayloadLength + BlockSize - 1) / BlockSize
	f.MessageLength = HeaderSize + size + f.PayloadLength + f.Blocks*size

	if len(msg) < f.MessageLength {
		return f, protocol.Errorf(protocol.KindMessageTooShort,
			"length field needs %d bytes, got %d", f.MessageLength, len(msg))
	}
	f.Remaining = msg[f.MessageLength:]
	if len(f.Remaining) > 0 {
		d.Log.Debugf("%d bytes after telegram", len(f.Remaining))
	}

	f.Application, err = d.RemoveChecksums(msg[HeaderSize+size:f.MessageLength], f.PayloadLength, f.Blocks)
	return f, err
}

// RemoveChecksums verifies and strips the checksum following each block of
// region. Blocks are BlockSize bytes except the last, which holds what is
// left of payloadLength.
func (d Decoder) RemoveChecksums(region []byte, payloadLength, blocks int) ([]byte, error) {
	if d.ChecksumSize == 0 {
		return region, nil
	}

	if need := payloadLength + blocks*d.ChecksumSize; len(region) < need {
		return nil, protocol.Errorf(protocol.KindMessageTooShort,
			"data blocks need %d bytes, got %d", need, len(region))
	}

	payload := make([]byte, 0, payloadLength)
	pos := 0
	for idx := 0; idx < blocks; idx++ {
		n := payloadLength - idx*BlockSize
		if n > BlockSize {
			n = BlockSize
		}

		block := region[pos : pos+n]
		stored := d.checksum(region[pos+n:])
		if !d.CRC.Verify(block, stored) {
			return nil, &protocol.DecodeError{
				Kind:    protocol.KindChecksum,
				Block:   idx + 1,
				Message: fmt.Sprintf("block %d: expected 0x%04X, calculated 0x%04X", idx+1, stored, d.CRC.Checksum(block)),
			}
		}

		payload = append(payload, block...)
		pos += n + d.ChecksumSize
	}

	return payload, nil
}
