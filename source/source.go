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

// Package source reads telegrams from receivers. Receivers that talk to a
// radio module write one telegram per line as hex, either to a serial port
// or to a file.
package source

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/bemasher/wmbus/decoder"
	"github.com/bemasher/wmbus/protocol"
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// DefaultBaudRate is the rate most USB wM-Bus sticks ship with.
const DefaultBaudRate = 9600

// maxLine bounds a single line, the longest telegram is 255 bytes plus
// checksums, well below this even with separators.
const maxLine = 4096

// A Scanner reads hex telegrams one per line. Empty lines and lines
// starting with # are skipped, as are lines that are not valid hex.
type Scanner struct {
	// ChecksumRemoved and Decrypted are copied into every telegram.
	ChecksumRemoved bool
	Decrypted       bool

	// Skipped counts lines dropped because they were not valid hex.
	Skipped int

	s    *bufio.Scanner
	log  protocol.Logger
	line int
	tel  decoder.Telegram
}

func NewScanner(r io.Reader, log protocol.Logger) *Scanner {
	if log == nil {
		log = protocol.NopLogger()
	}

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 1024), maxLine)

	return &Scanner{s: s, log: log}
}

// Scan advances to the next telegram, it returns false at the end of the
// input or on a read error.
func (sc *Scanner) Scan() bool {
	for sc.s.Scan() {
		sc.line++

		text := strings.TrimSpace(sc.s.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		data, err := decoder.ParseHex(text)
		if err != nil {
			sc.Skipped++
			sc.log.Debugf("line %d: %s", sc.line, err)
			continue
		}

		sc.tel = decoder.Telegram{
			Data:            data,
			ChecksumRemoved: sc.ChecksumRemoved,
			Decrypted:       sc.Decrypted,
		}
		return true
	}
	return false
}

func (sc *Scanner) Telegram() decoder.Telegram {
	return sc.tel
}

// Line is the number of the line the current telegram was read from.
func (sc *Scanner) Line() int {
	return sc.line
}

func (sc *Scanner) Err() error {
	if err := sc.s.Err(); err != nil {
		return errors.Wrapf(err, "read line %d", sc.line+1)
	}
	return nil
}

// Run sends telegrams on out until the input ends or ctx is cancelled. It
// closes out before returning.
func (sc *Scanner) Run(ctx context.Context, out chan<- decoder.Telegram) error {
	defer close(out)

	for sc.Scan() {
		select {
		case out <- sc.Telegram():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return sc.Err()
}

// SerialConfig selects a serial port and its line settings.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// OpenSerial opens a receiver attached to a serial port with 8N1 framing.
func OpenSerial(cfg SerialConfig) (serial.Port, error) {
	if cfg.Port == "" {
		return nil, errors.New("no serial port given")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", cfg.Port)
	}

	return port, nil
}

// Ports lists serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}
	return ports, nil
}
