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

// Package keystore holds the AES keys of encrypting devices.
package keystore

import (
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"strings"
	"sync"
	"unicode"

	"github.com/bemasher/wmbus/protocol"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const KeySize = 16

// Address is a link layer device address: 8 decimal digits.
type Address string

func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != protocol.IDDigits {
		return "", fmt.Errorf("address must be %d digits, got %q", protocol.IDDigits, s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("address must be decimal, got %q", s)
		}
	}
	return Address(s), nil
}

// ParseKey accepts 32 hex characters, whitespace ignored.
func ParseKey(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if len(clean) != 2*KeySize {
		return nil, fmt.Errorf("AES key must be %d hex digits, got %d", 2*KeySize, len(clean))
	}
	key, err := hex.DecodeString(clean)
	if err != nil {
		return nil, errors.Wrap(err, "invalid AES key hex")
	}
	return key, nil
}

// Store maps device addresses to keys. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	keys map[Address][]byte
}

func New() *Store {
	return &Store{keys: make(map[Address][]byte)}
}

// Add adds or replaces the raw key of addr.
func (s *Store) Add(addr Address, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("AES key must be %d bytes, got %d", KeySize, len(key))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[addr] = append([]byte(nil), key...)
	return nil
}

// AddHex adds or replaces the key of addr given as hex.
func (s *Store) AddHex(addr Address, key string) error {
	raw, err := ParseKey(key)
	if err != nil {
		return err
	}
	return s.Add(addr, raw)
}

// Set takes the address as a string and the key either as 16 raw bytes
// or as 32 hex characters.
func (s *Store) Set(address string, key []byte) error {
	addr, err := ParseAddress(address)
	if err != nil {
		return err
	}
	if len(key) == 2*KeySize {
		return s.AddHex(addr, string(key))
	}
	return s.Add(addr, key)
}

// Lookup returns a copy of the key of addr.
func (s *Store) Lookup(addr Address) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[addr]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), key...), true
}

// Key looks up a key by its address string, unparsable addresses have no
// key.
func (s *Store) Key(address string) ([]byte, bool) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, false
	}
	return s.Lookup(addr)
}

func (s *Store) Remove(addr Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, addr)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// AddAll adds keys given as address to hex key.
func (s *Store) AddAll(keys map[string]string) error {
	for address, key := range keys {
		addr, err := ParseAddress(address)
		if err != nil {
			return errors.Wrapf(err, "key for %q", address)
		}
		if err := s.AddHex(addr, key); err != nil {
			return errors.Wrapf(err, "key for %s", addr)
		}
	}
	return nil
}

// LoadFile reads a YAML mapping of address to hex key.
func (s *Store) LoadFile(path string) error {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read key file")
	}

	var keys map[string]string
	if err := yaml.Unmarshal(buf, &keys); err != nil {
		return errors.Wrapf(err, "parse key file %s", path)
	}

	return errors.Wrapf(s.AddAll(keys), "load key file %s", path)
}
