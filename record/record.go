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

// Package record decodes the data records of an application layer payload.
// Each record is a data information block (DIB), a value information block
// (VIB) and a value whose encoding the DIB selects.
package record

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bemasher/wmbus/protocol"
)

// MaxExtensions caps the number of bytes with the extension bit set in a
// DIB or VIB, the leading DIF or VIF included.
const MaxExtensions = 10

const (
	extensionBit = 0x80
	idleFiller   = 0x2F
)

// Data field codes of the DIF.
const (
	dataNone     = 0x00
	dataFloat32  = 0x05
	dataReadout  = 0x08
	dataVariable = 0x0D
	dataSpecial  = 0x0F
)

// Record types not resolved from a table.
const (
	TypeSeeUnit              = "see_unit"
	TypeManufacturerSpecific = "manufacturer_specific"
	TypeSpecialFunction      = "special_function"
)

// Byte counts of the unsigned integer data fields.
var intSizes = map[uint8]int{0x01: 1, 0x02: 2, 0x03: 3, 0x04: 4, 0x06: 6, 0x07: 8}

// Digit counts of the BCD data fields.
var bcdDigits = map[uint8]int{0x09: 2, 0x0A: 4, 0x0B: 6, 0x0C: 8, 0x0E: 12}

type DIB struct {
	DIF               byte   `json:"dif"`
	DIFE              []byte `json:"-" xml:"-"`
	DataField         uint8  `json:"data_field"`
	FunctionField     uint8  `json:"function_field"`
	FunctionFieldText string `json:"function"`
	StorageNumber     uint64 `json:"storage_number"`
	Tariff            uint32 `json:"tariff"`
	DeviceUnit        uint16 `json:"device_unit"`
}

// VIF is a value information code resolved against a table.
type VIF struct {
	Code      byte      `json:"vif"`
	Type      string    `json:"type"`
	Unit      string    `json:"unit"`
	Exponent  int       `json:"exponent"`
	Bias      int       `json:"-"`
	Factor    float64   `json:"factor"`
	Transform Transform `json:"-"`
}

func resolve(info VIFInfo, code byte) VIF {
	exp := int(code & info.ExpMask)
	return VIF{
		Code:      code & 0x7F,
		Type:      info.Type,
		Unit:      info.Unit,
		Exponent:  exp,
		Bias:      info.Bias,
		Factor:    math.Pow10(info.Bias + exp),
		Transform: info.Transform,
	}
}

// An Extension is a VIFE refining the VIF of its record. Its value is the
// code itself.
type Extension struct {
	VIF
	Value  Value `json:"value"`
	Result Value `json:"result"`
}

func (e Extension) annotation() string {
	if e.Transform != None {
		return e.Unit + ", " + e.Result.String()
	}
	return e.Unit + ", " + strconv.FormatInt(e.Value.Int, 16)
}

type DataRecord struct {
	Number int `json:"number"`
	DIB
	VIF

	Raw        Value       `json:"raw"`
	Value      Value       `json:"value"`
	Extensions []Extension `json:"extensions,omitempty"`
	// Extension joins the annotations of all extensions with "; ".
	Extension string `json:"extension,omitempty"`
}

func (r DataRecord) String() string {
	s := fmt.Sprintf("{No:%d Type:%s Value:%s Unit:%q Function:%q Storage:%d Tariff:%d DevUnit:%d",
		r.Number, r.Type, r.Value, r.VIF.Unit, r.FunctionFieldText, r.StorageNumber, r.Tariff, r.DeviceUnit)
	if r.Extension != "" {
		s += fmt.Sprintf(" Extension:%q", r.Extension)
	}
	return s + "}"
}

// Record lists the fields of a data record for csv output.
func (r DataRecord) Record() []string {
	return []string{
		strconv.Itoa(r.Number),
		r.Type,
		r.Value.String(),
		r.VIF.Unit,
		r.FunctionFieldText,
		strconv.FormatUint(r.StorageNumber, 10),
		strconv.FormatUint(uint64(r.Tariff), 10),
		strconv.FormatUint(uint64(r.DeviceUnit), 10),
		r.Extension,
	}
}

type Decoder struct {
	FormatDate DateFormatter
	Log        protocol.Logger
}

func NewDecoder(format DateFormatter, log protocol.Logger) Decoder {
	if format == nil {
		format = FormatDate
	}
	if log == nil {
		log = protocol.NopLogger()
	}
	return Decoder{format, log}
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) next() (byte, bool) {
	if r.pos >= len(r.data) {
		return 0, false
	}
	r.pos++
	return r.data[r.pos-1], true
}

func (r *reader) take(n int) ([]byte, bool) {
	if r.pos+n > len(r.data) {
		return nil, false
	}
	r.pos += n
	return r.data[r.pos-n : r.pos], true
}

func (r *reader) rest() []byte {
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}

func tooShort(format string, args ...interface{}) error {
	return protocol.Errorf(protocol.KindMessageTooShort, format, args...)
}

func inRecord(err error, n int) error {
	var decErr *protocol.DecodeError
	if errors.As(err, &decErr) {
		return decErr.InRecord(n)
	}
	return err
}

// Decode walks the records of payload. Manufacturer selects a registered
// profile, if any. The first error ends the walk and no records are
// returned with it.
func (d Decoder) Decode(payload []byte, manufacturer string) ([]DataRecord, error) {
	var prof *Profile
	if p, ok := LookupProfile(manufacturer); ok {
		prof = &p
	}

	var records []DataRecord
	r := &reader{data: payload}
	for {
		for r.pos < len(r.data) && r.data[r.pos] == idleFiller {
			r.pos++
		}
		if r.pos >= len(r.data) {
			return records, nil
		}

		rec, last, err := d.decodeRecord(r, len(records)+1, prof)
		if err != nil {
			return nil, inRecord(err, len(records)+1)
		}
		d.Log.Debugf("record %s", rec)

		records = append(records, rec)
		if last {
			return records, nil
		}
	}
}

func (d Decoder) decodeRecord(r *reader, number int, prof *Profile) (rec DataRecord, last bool, err error) {
	rec.Number = number

	rec.DIB, err = decodeDIB(r)
	if err != nil {
		return rec, false, err
	}

	// Manufacturer data follows the DIF directly and runs to the end.
	if rec.DataField == dataSpecial {
		rec.VIF = VIF{Type: TypeSpecialFunction, Factor: 1}
		rec.Raw = TextValue(hex.EncodeToString(r.rest()))
		rec.Value = rec.Raw
		return rec, true, nil
	}

	rec.VIF, rec.Extensions, err = decodeVIB(r, prof)
	if err != nil {
		return rec, false, err
	}

	rec.Raw, err = readValue(r, &rec, prof)
	if err != nil {
		return rec, false, err
	}

	rec.Value = d.apply(rec.Raw, &rec.VIF, &rec)

	annotations := make([]string, 0, len(rec.Extensions))
	for idx := range rec.Extensions {
		ext := &rec.Extensions[idx]
		ext.Result = d.apply(ext.Value, &ext.VIF, &rec)
		annotations = append(annotations, ext.annotation())
	}
	rec.Extension = strings.Join(annotations, "; ")

	return rec, false, nil
}

func decodeDIB(r *reader) (dib DIB, err error) {
	dif, ok := r.next()
	if !ok {
		return dib, tooShort("no DIF")
	}

	dib.DIF = dif
	dib.DataField = dif & 0x0F
	dib.FunctionField = dif >> 4 & 0x03
	dib.FunctionFieldText = functionFields[dib.FunctionField]
	dib.StorageNumber = uint64(dif >> 6 & 0x01)

	extensions := 0
	for b := dif; b&extensionBit != 0; {
		extensions++
		if extensions > MaxExtensions {
			return dib, protocol.Errorf(protocol.KindTooManyDIFE, "more than %d", MaxExtensions)
		}

		if b, ok = r.next(); !ok {
			return dib, tooShort("DIFE %d missing", len(dib.DIFE)+1)
		}

		shift := len(dib.DIFE)
		dib.DIFE = append(dib.DIFE, b)
		dib.StorageNumber |= uint64(b&0x0F) << (1 + 4*shift)
		dib.Tariff |= uint32(b>>4&0x03) << (2 * shift)
		dib.DeviceUnit |= uint16(b>>6&0x01) << shift
	}

	return dib, nil
}

func decodeVIB(r *reader, prof *Profile) (vif VIF, exts []Extension, err error) {
	extensions := 0
	start := r.pos
	next := func(what string) (byte, error) {
		b, ok := r.next()
		if !ok {
			return 0, tooShort("%s missing", what)
		}
		if b&extensionBit != 0 {
			extensions++
			if extensions > MaxExtensions {
				return b, protocol.Errorf(protocol.KindTooManyVIFE, "more than %d", MaxExtensions)
			}
		}
		return b, nil
	}

	b, err := next("VIF")
	if err != nil {
		return vif, nil, err
	}

	table := Primary
	if b&extensionBit != 0 {
		switch b & 0x7F {
		case 0x7D:
			table = ExtensionFD
			b, err = next("VIF after 0xFD")
		case 0x7B:
			table = ExtensionFB
			b, err = next("VIF after 0xFB")
		case 0x7C:
			length, ok := r.next()
			if !ok {
				return vif, nil, tooShort("plain text VIF length missing")
			}
			unit, ok := r.take(int(length))
			if !ok {
				return vif, nil, tooShort("plain text VIF needs %d bytes", length)
			}
			return VIF{Code: 0x7C, Type: TypeSeeUnit, Unit: string(unit), Factor: 1}, nil, nil
		case 0x7F:
			if prof == nil {
				return VIF{Code: 0x7F, Type: TypeManufacturerSpecific, Factor: 1}, nil, nil
			}
			table = prof.VIFs
			b, err = next("VIF after 0xFF")
		}
		if err != nil {
			return vif, nil, err
		}
	}

	info, ok := table.Lookup(b)
	if !ok {
		return vif, nil, protocol.Errorf(protocol.KindUnknownVIF, "VIF 0x%02X", b)
	}
	vif = resolve(info, b)

	others := Other
	if prof != nil {
		others = prof.VIFs
	}

	for b&extensionBit != 0 {
		if b, err = next("VIFE"); err != nil {
			return vif, nil, err
		}

		info, ok := others.Lookup(b)
		if !ok {
			return vif, nil, protocol.Errorf(protocol.KindUnknownVIFE, "VIFE 0x%02X", b)
		}
		exts = append(exts, Extension{
			VIF:   resolve(info, b),
			Value: IntValue(int64(b & 0x7F)),
		})
	}

	if prof != nil && prof.ExtensionValue != nil && len(exts) > 0 {
		if v, ok := prof.ExtensionValue(r.data[start:r.pos]); ok {
			for idx := range exts {
				exts[idx].Value = v
			}
		}
	}

	return vif, exts, nil
}

func readValue(r *reader, rec *DataRecord, prof *Profile) (Value, error) {
	field := rec.DataField

	if size, ok := intSizes[field]; ok {
		b, ok := r.take(size)
		if !ok {
			return Value{}, tooShort("%d byte integer truncated", size)
		}
		var buf [8]byte
		copy(buf[:], b)
		u := binary.LittleEndian.Uint64(buf[:])
		if u > math.MaxInt64 {
			return FloatValue(float64(u), 0), nil
		}
		return IntValue(int64(u)), nil
	}

	if digits, ok := bcdDigits[field]; ok {
		b, ok := r.take(digits / 2)
		if !ok {
			return Value{}, tooShort("%d digit BCD truncated", digits)
		}
		return IntValue(int64(protocol.DecodeBCD(digits, b))), nil
	}

	switch field {
	case dataNone:
		return Value{}, nil
	case dataFloat32:
		b, ok := r.take(4)
		if !ok {
			return Value{}, tooShort("float truncated")
		}
		f := math.Float32frombits(binary.LittleEndian.Uint32(b))
		v, _ := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
		return FloatValue(v, 0), nil
	case dataVariable:
		return readVariable(r, rec, prof)
	case dataReadout:
		return Value{}, protocol.Errorf(protocol.KindUnknownDataField, "unexpected readout selection")
	}

	return Value{}, protocol.Errorf(protocol.KindUnknownDataField, "data field 0x%X", field)
}

func readVariable(r *reader, rec *DataRecord, prof *Profile) (Value, error) {
	lvar, ok := r.next()
	if !ok {
		return Value{}, tooShort("LVAR missing")
	}

	switch {
	case lvar <= 0xBF:
		b, ok := r.take(int(lvar))
		if !ok {
			return Value{}, tooShort("string of %d bytes truncated", lvar)
		}
		if rec.Type == TypeManufacturerSpecific {
			return TextValue(hex.EncodeToString(b)), nil
		}
		s := append([]byte(nil), b...)
		if prof != nil && prof.ReverseStrings {
			for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
				s[i], s[j] = s[j], s[i]
			}
		}
		return TextValue(string(s)), nil
	case lvar <= 0xCF:
		n := int(lvar - 0xC0)
		b, ok := r.take(n)
		if !ok {
			return Value{}, tooShort("BCD of %d bytes truncated", n)
		}
		return IntValue(int64(protocol.DecodeBCD(n*2, b))), nil
	case lvar <= 0xDF:
		n := int(lvar - 0xD0)
		b, ok := r.take(n)
		if !ok {
			return Value{}, tooShort("BCD of %d bytes truncated", n)
		}
		return IntValue(-int64(protocol.DecodeBCD(n*2, b))), nil
	}

	return Value{}, protocol.Errorf(protocol.KindUnknownLVAR, "LVAR 0x%02X", lvar)
}
