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

package main

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/bemasher/wmbus/csv"
	"github.com/bemasher/wmbus/keystore"
	"github.com/bemasher/wmbus/protocol"
	"github.com/pkg/errors"
)

// JSON, XML and CSV all implement this interface so we can simplify log
// output formatting.
type Encoder interface {
	Encode(interface{}) error
}

func NewEncoder(format string, w io.Writer) (Encoder, error) {
	switch strings.ToLower(format) {
	case "plain":
		return PlainEncoder{w}, nil
	case "csv":
		return csv.NewEncoder(w).WithHeader(), nil
	case "json":
		return json.NewEncoder(w), nil
	case "xml":
		return LineEncoder{xml.NewEncoder(w), w}, nil
	}
	return nil, errors.Errorf("invalid output format: %q", format)
}

type PlainEncoder struct {
	w io.Writer
}

func (pe PlainEncoder) Encode(msg interface{}) (err error) {
	_, err = fmt.Fprintln(pe.w, msg)
	return
}

// LineEncoder writes one encoded element per line, there is no root node.
type LineEncoder struct {
	enc *xml.Encoder
	w   io.Writer
}

func (le LineEncoder) Encode(msg interface{}) error {
	if err := le.enc.Encode(msg); err != nil {
		return err
	}
	_, err := io.WriteString(le.w, "\n")
	return err
}

// AddressSet is a set of device addresses given as a comma-separated list.
type AddressSet map[keystore.Address]bool

func (m AddressSet) String() string {
	var values []string
	for k := range m {
		values = append(values, string(k))
	}
	sort.Strings(values)
	return strings.Join(values, ",")
}

func (m AddressSet) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		addr, err := keystore.ParseAddress(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		m[addr] = true
	}
	return nil
}

func (AddressSet) Type() string {
	return "addresses"
}

// UintMap is a set of device types, decimal or 0x prefixed hex.
type UintMap map[uint8]bool

func (m UintMap) String() string {
	var keys []int
	for k := range m {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)

	values := make([]string, len(keys))
	for idx, k := range keys {
		values[idx] = strconv.Itoa(k)
	}
	return strings.Join(values, ",")
}

func (m UintMap) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 0, 8)
		if err != nil {
			return err
		}
		m[uint8(n)] = true
	}
	return nil
}

func (UintMap) Type() string {
	return "types"
}

type AddressFilter struct {
	AddressSet
}

func (f AddressFilter) Filter(msg protocol.Message) bool {
	return f.AddressSet[keystore.Address(msg.Address())]
}

type DeviceTypeFilter struct {
	UintMap
}

func (f DeviceTypeFilter) Filter(msg protocol.Message) bool {
	return f.UintMap[msg.DeviceType()]
}

// UniqueFilter passes a message only when its content differs from the
// last message seen from the same device.
type UniqueFilter map[string][]byte

func NewUniqueFilter() UniqueFilter {
	return make(UniqueFilter)
}

func (uf UniqueFilter) Filter(msg protocol.Message) bool {
	checksum := msg.Checksum()
	key := msg.Manufacturer() + msg.Address()

	if val, ok := uf[key]; ok && bytes.Equal(val, checksum) {
		return false
	}

	uf[key] = make([]byte, len(checksum))
	copy(uf[key], checksum)
	return true
}
