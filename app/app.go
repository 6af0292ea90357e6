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

// Package app decodes the application layer header that follows the link
// layer and decrypts the record payload it protects.
package app

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/bemasher/wmbus/link"
	"github.com/bemasher/wmbus/protocol"
)

// Control information field values for responses from a device.
const (
	CIShort = 0x7A // 4 byte header
	CILong  = 0x72 // 12 byte header
	CINone  = 0x78 // no header
)

// Filler pads encrypted payloads and marks a successful decryption.
const Filler = 0x2F

type Shape int

const (
	ShapeNone Shape = iota
	ShapeShort
	ShapeLong
)

func (s Shape) String() string {
	switch s {
	case ShapeShort:
		return "short"
	case ShapeLong:
		return "long"
	}
	return "none"
}

type EncryptionMode uint8

const (
	ModeNone EncryptionMode = 0
	ModeCTR  EncryptionMode = 1
	ModeCBC  EncryptionMode = 5
)

func (m EncryptionMode) String() string {
	switch m {
	case ModeNone:
		return "no encryption"
	case ModeCTR:
		return "AES-CTR"
	case ModeCBC:
		return "AES-CBC with dynamic IV"
	}
	return fmt.Sprintf("mode %d", uint8(m))
}

// ConfigWord holds the bitfields of the configuration word, which is
// transmitted little endian.
type ConfigWord struct {
	Raw             uint16         `json:"raw"`
	Bidirectional   bool           `json:"bidirectional"`
	Accessibility   bool           `json:"accessibility"`
	Synchronous     bool           `json:"synchronous"`
	Mode            EncryptionMode `json:"mode"`
	EncryptedBlocks uint8          `json:"encrypted_blocks"`
	Content         uint8          `json:"content"`
	RepeatedAccess  bool           `json:"repeated_access"`
	Hops            bool           `json:"hops"`
}

func DecodeConfigWord(cw uint16) ConfigWord {
	return ConfigWord{
		Raw:             cw,
		Bidirectional:   cw&0x8000 != 0,
		Accessibility:   cw&0x4000 != 0,
		Synchronous:     cw&0x2000 != 0,
		Mode:            EncryptionMode(cw >> 8 & 0x0F),
		EncryptedBlocks: uint8(cw >> 4 & 0x0F),
		Content:         uint8(cw >> 2 & 0x03),
		RepeatedAccess:  cw&0x0002 != 0,
		Hops:            cw&0x0001 != 0,
	}
}

// Header is the application layer header. Fields absent from the header
// shape selected by CI are zero.
type Header struct {
	CI    uint8 `json:"ci"`
	Shape Shape `json:"-"`

	MeterID             string `json:"meter_id,omitempty"`
	MeterManufacturerID uint16 `json:"meter_manufacturer_id,omitempty"`
	MeterManufacturer   string `json:"meter_manufacturer,omitempty"`
	MeterVersion        uint8  `json:"meter_version,omitempty"`
	MeterDeviceType     uint8  `json:"meter_device_type,omitempty"`
	MeterDeviceTypeName string `json:"meter_device_type_name,omitempty"`

	AccessNumber uint8      `json:"access_number"`
	Status       uint8      `json:"status"`
	StatusText   string     `json:"status_text"`
	Config       ConfigWord `json:"config"`
}

// DecodeHeader reads the CI field and the header it selects from the start
// of the application layer. It returns the number of bytes consumed.
func DecodeHeader(data []byte) (h Header, n int, err error) {
	if len(data) < 1 {
		return h, 0, protocol.Errorf(protocol.KindMessageTooShort, "no CI field")
	}

	h.CI = data[0]
	n = 1

	var size int
	switch h.CI {
	case CIShort:
		h.Shape, size = ShapeShort, 4
	case CILong:
		h.Shape, size = ShapeLong, 12
	case CINone:
		h.Shape = ShapeNone
	default:
		return h, n, protocol.Errorf(protocol.KindUnknownCI,
			"CI field 0x%02X, remaining payload is %x", h.CI, data[1:])
	}

	if len(data) < n+size {
		return h, n, protocol.Errorf(protocol.KindMessageTooShort,
			"%s header needs %d bytes, got %d", h.Shape, size, len(data)-n)
	}
	hdr := data[n : n+size]
	n += size

	if h.Shape == ShapeLong {
		h.MeterID = protocol.FormatID(protocol.DecodeBCD(protocol.IDDigits, hdr[0:4]), protocol.IDDigits)
		h.MeterManufacturerID = binary.LittleEndian.Uint16(hdr[4:6])
		h.MeterManufacturer = protocol.DecodeManufacturer(h.MeterManufacturerID)
		h.MeterVersion = hdr[6]
		h.MeterDeviceType = hdr[7]
		h.MeterDeviceTypeName = protocol.DeviceTypeName(h.MeterDeviceType)
		hdr = hdr[8:]
	}

	if h.Shape != ShapeNone {
		h.AccessNumber = hdr[0]
		h.Status = hdr[1]
		h.Config = DecodeConfigWord(binary.LittleEndian.Uint16(hdr[2:4]))
	}
	h.StatusText = protocol.StatusText(h.Status)

	return h, n, nil
}

// A KeyStore provides AES keys by link layer device address.
type KeyStore interface {
	Key(address string) ([]byte, bool)
}

// Layer is a decoded application layer.
type Layer struct {
	Header

	Encrypted bool
	// Payload is the plaintext record payload.
	Payload []byte
}

type Decoder struct {
	Keys      KeyStore
	NewCipher func(key []byte) (cipher.Block, error)
	Log       protocol.Logger
}

func NewDecoder(keys KeyStore, log protocol.Logger) Decoder {
	if log == nil {
		log = protocol.NopLogger()
	}
	return Decoder{keys, aes.NewCipher, log}
}

// Decode dispatches on the CI field of f and decrypts the payload unless
// decrypted is set.
func (d Decoder) Decode(f link.Frame, decrypted bool) (l Layer, err error) {
	var n int
	l.Header, n, err = DecodeHeader(f.Application)
	if err != nil {
		return l, err
	}
	d.Log.Debugf("%s header, access %d, status %q, config 0x%04X", l.Shape, l.AccessNumber, l.StatusText, l.Config.Raw)

	payload := f.Application[n:]

	mode := l.Config.Mode
	if decrypted {
		mode = ModeNone
	}

	switch mode {
	case ModeNone:
		l.Payload = payload
		return l, nil
	case ModeCBC:
		l.Encrypted = true
		l.Payload, err = d.decryptCBC(f, l.Header, payload)
		return l, err
	}

	return l, protocol.Errorf(protocol.KindUnknownEncryption,
		"encryption mode %x not implemented", uint8(l.Config.Mode))
}

func (d Decoder) decryptCBC(f link.Frame, h Header, payload []byte) ([]byte, error) {
	var (
		key []byte
		ok  bool
	)
	if d.Keys != nil {
		key, ok = d.Keys.Key(f.ID)
	}
	if !ok || len(key) == 0 {
		return nil, protocol.Errorf(protocol.KindNoKey, "no key for device %s", f.ID)
	}

	n := len(payload) / aes.BlockSize * aes.BlockSize
	if blocks := int(h.Config.EncryptedBlocks) * aes.BlockSize; blocks > 0 && blocks <= n {
		n = blocks
	}
	if n == 0 {
		return nil, protocol.Errorf(protocol.KindWrongKey,
			"encrypted payload of %d bytes is shorter than a block", len(payload))
	}

	block, err := d.NewCipher(key)
	if err != nil {
		return nil, &protocol.DecodeError{Kind: protocol.KindWrongKey, Err: err}
	}
	if block.BlockSize() != aes.BlockSize {
		return nil, protocol.Errorf(protocol.KindWrongKey, "cipher block size %d", block.BlockSize())
	}

	iv := f.IV()
	for len(iv) < aes.BlockSize {
		iv = append(iv, h.AccessNumber)
	}

	plain := make([]byte, n, len(payload))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, payload[:n])
	plain = append(plain, payload[n:]...)

	if plain[0] != Filler || plain[1] != Filler {
		return nil, protocol.Errorf(protocol.KindDecryptionFailed,
			"payload starts with %02x%02x, wrong key?", plain[0], plain[1])
	}
	d.Log.Debugf("decrypted payload %x", plain)

	return plain, nil
}
