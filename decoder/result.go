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

package decoder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bemasher/wmbus/app"
	"github.com/bemasher/wmbus/crc"
	"github.com/bemasher/wmbus/link"
	"github.com/bemasher/wmbus/record"
)

const MsgType = "wM-Bus"

// Result is a decoded telegram.
type Result struct {
	Link      link.Header         `json:"link"`
	App       app.Header          `json:"app"`
	Encrypted bool                `json:"encrypted"`
	Records   []record.DataRecord `json:"records"`

	// Remaining holds bytes after the declared length, usually the next
	// telegram.
	Remaining []byte `json:"remaining,omitempty" xml:"-"`

	frame []byte
}

func (r Result) MsgType() string {
	return MsgType
}

func (r Result) Manufacturer() string {
	return r.Link.Manufacturer
}

func (r Result) Address() string {
	return r.Link.ID
}

func (r Result) DeviceType() uint8 {
	return r.Link.DeviceType
}

func (r Result) DeviceTypeName() string {
	return r.Link.DeviceTypeName
}

func (r Result) StatusText() string {
	return r.App.StatusText
}

// Checksum identifies the content of the telegram, repeated transmissions
// share it.
func (r Result) Checksum() []byte {
	sum := crc.EN13757.Checksum(r.frame)
	return []byte{uint8(sum >> 8), uint8(sum & 0xFF)}
}

func (r Result) String() string {
	records := make([]string, len(r.Records))
	for idx, rec := range r.Records {
		records[idx] = rec.String()
	}

	return fmt.Sprintf("{M:%s ID:%s Type:%q Version:%d Access:%d Status:%q Records:[%s]}",
		r.Manufacturer(), r.Address(), r.DeviceTypeName(), r.Link.Version,
		r.App.AccessNumber, r.StatusText(), strings.Join(records, " "),
	)
}

// Header names the leading fields of Record, each data record adds its
// type, value and unit.
func (r Result) Header() []string {
	return []string{"manufacturer", "address", "device_type", "version", "access_number", "status", "records"}
}

func (r Result) Record() (rec []string) {
	rec = append(rec, r.Manufacturer())
	rec = append(rec, r.Address())
	rec = append(rec, r.DeviceTypeName())
	rec = append(rec, strconv.Itoa(int(r.Link.Version)))
	rec = append(rec, strconv.Itoa(int(r.App.AccessNumber)))
	rec = append(rec, r.StatusText())
	rec = append(rec, strconv.Itoa(len(r.Records)))

	for _, dr := range r.Records {
		rec = append(rec, dr.Type, dr.Value.String(), dr.Unit)
	}

	return rec
}
