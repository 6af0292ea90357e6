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
	"context"
	"time"

	"github.com/bemasher/wmbus/decoder"
	"github.com/bemasher/wmbus/feed"
	"github.com/bemasher/wmbus/protocol"
	"github.com/sirupsen/logrus"
)

// A Receiver decodes telegrams, filters the results and writes them out.
type Receiver struct {
	d   *decoder.Decoder
	fc  protocol.FilterChain
	enc Encoder
	hub *feed.Hub
	log logrus.FieldLogger

	// Single stops the receiver after the first message is written.
	Single bool

	// Failed counts telegrams that did not decode, Written the messages
	// passed by the filters.
	Failed  int
	Written int

	now func() time.Time
}

func NewReceiver(d *decoder.Decoder, fc protocol.FilterChain, enc Encoder, log logrus.FieldLogger) *Receiver {
	return &Receiver{d: d, fc: fc, enc: enc, log: log, now: time.Now}
}

// Feed also broadcasts every written message to the hub's clients.
func (rcvr *Receiver) Feed(hub *feed.Hub) {
	rcvr.hub = hub
}

// Handle decodes a telegram and writes it if it passes the filters. Decode
// failures are not errors of the receiver, they are logged by the decoder.
func (rcvr *Receiver) Handle(t decoder.Telegram) (bool, error) {
	res, err := rcvr.d.Decode(t)
	if err != nil {
		rcvr.Failed++
		return false, nil
	}

	if len(res.Remaining) > 0 {
		rcvr.log.Debugf("%d bytes after telegram from %s", len(res.Remaining), res.Address())
	}

	// If the filterchain rejects the message, skip it.
	if !rcvr.fc.Match(res) {
		return false, nil
	}

	logMsg := protocol.LogMessage{
		Time:    rcvr.now(),
		Type:    res.MsgType(),
		Message: res,
	}

	if err := rcvr.enc.Encode(logMsg); err != nil {
		return false, err
	}

	rcvr.Written++

	if rcvr.hub != nil {
		if err := rcvr.hub.Broadcast(logMsg); err != nil {
			rcvr.log.Warnf("feed: %s", err)
		}
	}

	return true, nil
}

// Run handles telegrams until in is closed or ctx is cancelled.
func (rcvr *Receiver) Run(ctx context.Context, in <-chan decoder.Telegram) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-in:
			if !ok {
				return nil
			}

			found, err := rcvr.Handle(t)
			if err != nil {
				return err
			}

			if found && rcvr.Single {
				return nil
			}
		}
	}
}
