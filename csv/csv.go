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

// Package csv writes decoded telegrams as comma separated records.
package csv

import (
	"encoding/csv"
	"io"

	"golang.org/x/xerrors"
)

// Produces a list of fields making up a record.
type Recorder interface {
	Record() []string
}

// A Headerer names the fields produced by Record.
type Headerer interface {
	Header() []string
}

// An Encoder writes CSV records to an output stream.
type Encoder struct {
	w *csv.Writer

	header  bool
	written bool
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: csv.NewWriter(w)}
}

// WithHeader makes the encoder emit a header line before the first record
// when the first value also implements Headerer.
func (enc *Encoder) WithHeader() *Encoder {
	enc.header = true
	return enc
}

// Encode writes a CSV record representing v to the stream followed by a
// newline character. Value given must implement the Recorder interface.
func (enc *Encoder) Encode(v interface{}) (err error) {
	defer func() {
		if r, ok := recover().(error); ok && r != nil {
			err = xerrors.Errorf("recovered: %w", r)
		}
	}()

	rec := v.(Recorder)

	if enc.header && !enc.written {
		if h, ok := v.(Headerer); ok {
			if err = enc.w.Write(h.Header()); err != nil {
				return xerrors.Errorf("write header: %w", err)
			}
		}
	}
	enc.written = true

	if err = enc.w.Write(rec.Record()); err != nil {
		return xerrors.Errorf("write record: %w", err)
	}
	enc.w.Flush()

	return enc.w.Error()
}
