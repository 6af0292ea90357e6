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

// Package decoder turns raw wireless M-Bus telegrams into structured
// readings. A decode runs the link layer, the application layer with its
// optional decryption and the data records in turn, the first error ends it.
package decoder

import (
	"crypto/cipher"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/bemasher/wmbus/app"
	"github.com/bemasher/wmbus/link"
	"github.com/bemasher/wmbus/protocol"
	"github.com/bemasher/wmbus/record"
	"github.com/pkg/errors"

	_ "github.com/bemasher/wmbus/esy"
)

type Logger = protocol.Logger

// A Telegram is one message as received. The flags tell the decoder which
// steps a receiver has already performed.
type Telegram struct {
	Data            []byte
	ChecksumRemoved bool
	Decrypted       bool
}

type Options struct {
	// Logger receives debug traces and decode errors, discarded when nil.
	Logger Logger

	// FormatDate renders dates and times, record.FormatDate when nil.
	FormatDate record.DateFormatter

	// DisableChecksums skips all block checksum verification.
	DisableChecksums bool

	// NewCipher creates the block cipher used for AES-CBC, aes.NewCipher
	// when nil.
	NewCipher func(key []byte) (cipher.Block, error)

	// Keys provides AES keys by device address.
	Keys app.KeyStore
}

type Decoder struct {
	link    link.Decoder
	app     app.Decoder
	records record.Decoder
	log     Logger
}

func New(opts Options) (*Decoder, error) {
	if opts.Logger == nil {
		opts.Logger = protocol.NopLogger()
	}

	size := link.DefaultChecksumSize
	if opts.DisableChecksums {
		size = 0
	}
	ld, err := link.NewDecoder(size, opts.Logger)
	if err != nil {
		return nil, err
	}

	ad := app.NewDecoder(opts.Keys, opts.Logger)
	if opts.NewCipher != nil {
		ad.NewCipher = opts.NewCipher
	}

	return &Decoder{
		link:    ld,
		app:     ad,
		records: record.NewDecoder(opts.FormatDate, opts.Logger),
		log:     opts.Logger,
	}, nil
}

// Decode decodes a single telegram. It returns either a complete result
// or an error, never both.
func (d *Decoder) Decode(t Telegram) (*Result, error) {
	res, err := d.decode(t)
	if err != nil {
		d.log.Errorf("%s", err)
		return nil, err
	}
	return res, nil
}

func (d *Decoder) decode(t Telegram) (*Result, error) {
	f, err := d.link.Decode(t.Data, t.ChecksumRemoved)
	if err != nil {
		return nil, err
	}

	l, err := d.app.Decode(f, t.Decrypted)
	if err != nil {
		return nil, err
	}

	records, err := d.records.Decode(l.Payload, f.Manufacturer)
	if err != nil {
		return nil, err
	}

	return &Result{
		Link:      f.Header,
		App:       l.Header,
		Encrypted: l.Encrypted,
		Records:   records,
		Remaining: f.Remaining,
		frame:     t.Data[:f.MessageLength],
	}, nil
}

// DecodeHex decodes a telegram given as hex.
func (d *Decoder) DecodeHex(s string, checksumRemoved, decrypted bool) (*Result, error) {
	data, err := ParseHex(s)
	if err != nil {
		return nil, err
	}
	return d.Decode(Telegram{data, checksumRemoved, decrypted})
}

// ParseHex decodes hex digits, ignoring whitespace, the separators |, _
// and - and a leading 0x.
func ParseHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '|' || r == '_' || r == '-' {
			return -1
		}
		return r
	}, s)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		clean = clean[2:]
	}

	if len(clean)%2 != 0 {
		return nil, errors.Errorf("hex telegram must contain an even number of digits, got %d", len(clean))
	}

	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, errors.Wrap(err, "decode hex")
	}
	return data, nil
}
