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
	"time"

	"github.com/bemasher/wmbus/csv"
)

const (
	TimeFormat = "2006-01-02T15:04:05.000"
)

// A Message is a successfully decoded telegram.
type Message interface {
	csv.Recorder
	MsgType() string
	Manufacturer() string
	Address() string
	DeviceType() uint8
	Checksum() []byte
}

// Uniquely identifies a telegram transmitted by a meter. Meters repeat
// identical telegrams, the checksum tells repeats from new readings.
type Digest struct {
	MsgType      string
	Manufacturer string
	Address      string
	Checksum     string
}

func NewDigest(msg Message) Digest {
	return Digest{
		msg.MsgType(),
		msg.Manufacturer(),
		msg.Address(),
		string(msg.Checksum()),
	}
}

// A LogMessage associates a message with the time it was received.
type LogMessage struct {
	Time time.Time `xml:",attr"`
	Type string    `xml:",attr"`
	Message
}

func (msg LogMessage) String() string {
	return fmt.Sprintf("{Time:%s %s:%s}", msg.Time.Format(TimeFormat), msg.MsgType(), msg.Message)
}

func (msg LogMessage) Header() []string {
	h := []string{"time"}
	if hdr, ok := msg.Message.(csv.Headerer); ok {
		h = append(h, hdr.Header()...)
	}
	return h
}

func (msg LogMessage) Record() (r []string) {
	r = append(r, msg.Time.Format(time.RFC3339Nano))
	r = append(r, msg.Message.Record()...)
	return r
}

// A FilterChain takes a list of filters and applies them iteratively to
// messages sent through the chain.
type FilterChain []MessageFilter

func (fc *FilterChain) Add(filter MessageFilter) {
	*fc = append(*fc, filter)
}

func (fc FilterChain) Match(msg Message) bool {
	if len(fc) == 0 {
		return true
	}

	for _, filter := range fc {
		if !filter.Filter(msg) {
			return false
		}
	}

	return true
}

type MessageFilter interface {
	Filter(Message) bool
}
