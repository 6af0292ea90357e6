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

// Package gen builds wireless M-Bus telegrams for tests and for exercising
// a decoder without a radio.
package gen

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/bemasher/wmbus/crc"
	"github.com/bemasher/wmbus/protocol"
)

const blockSize = 16

// A Header describes the link layer fields of a generated telegram. The
// length field is computed from the payload.
type Header struct {
	Control      uint8
	Manufacturer string
	ID           uint64
	Version      uint8
	DeviceType   uint8
}

// EncodeBCD packs the low digits of n into digits/2 bytes, least
// significant pair first.
func EncodeBCD(digits int, n uint64) []byte {
	data := make([]byte, digits/2)
	for idx := range data {
		lo := n % 10
		n /= 10
		hi := n % 10
		n /= 10
		data[idx] = byte(hi<<4 | lo)
	}
	return data
}

// Bytes returns the 10 byte link layer header for a payload of the given
// length.
func (h Header) Bytes(payloadLength int) ([]byte, error) {
	if payloadLength+9 > 0xFF {
		return nil, fmt.Errorf("payload of %d bytes exceeds length field", payloadLength)
	}

	m, err := protocol.EncodeManufacturer(h.Manufacturer)
	if err != nil {
		return nil, err
	}

	hdr := make([]byte, 4, 10)
	hdr[0] = uint8(payloadLength + 9)
	hdr[1] = h.Control
	binary.LittleEndian.PutUint16(hdr[2:], m)
	hdr = append(hdr, EncodeBCD(protocol.IDDigits, h.ID)...)
	hdr = append(hdr, h.Version, h.DeviceType)

	return hdr, nil
}

func appendChecksum(dst, block []byte) []byte {
	checksum := crc.EN13757.Checksum(block)
	return append(dst, uint8(checksum>>8), uint8(checksum&0xFF))
}

// Frame lays out a telegram as transmitted: the header and every payload
// block each followed by a checksum.
func Frame(h Header, payload []byte) ([]byte, error) {
	hdr, err := h.Bytes(len(payload))
	if err != nil {
		return nil, err
	}

	msg := appendChecksum(append([]byte(nil), hdr...), hdr)
	for len(payload) > 0 {
		n := blockSize
		if len(payload) < n {
			n = len(payload)
		}
		msg = append(msg, payload[:n]...)
		msg = appendChecksum(msg, payload[:n])
		payload = payload[n:]
	}

	return msg, nil
}

// Stripped lays out a telegram the way gateways deliver it once they have
// removed the checksums.
func Stripped(h Header, payload []byte) ([]byte, error) {
	hdr, err := h.Bytes(len(payload))
	if err != nil {
		return nil, err
	}
	return append(hdr, payload...), nil
}

// IV builds the initialization vector for AES-CBC with dynamic IV from the
// link layer header and the access number.
func IV(hdr []byte, access uint8) []byte {
	iv := make([]byte, 0, blockSize)
	iv = append(iv, hdr[2:10]...)
	for len(iv) < blockSize {
		iv = append(iv, access)
	}
	return iv
}

// Encrypt pads plain with 0x2F filler to a whole number of blocks and
// encrypts it with AES-CBC.
func Encrypt(key, iv, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := append([]byte(nil), plain...)
	for len(padded)%blockSize != 0 {
		padded = append(padded, 0x2F)
	}

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// NewRandKey returns a random 16 byte AES key.
func NewRandKey() (key []byte, err error) {
	key = make([]byte, blockSize)
	_, err = rand.Read(key)
	return
}
