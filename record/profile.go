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

package record

import (
	"fmt"
	"sync"
)

// A Profile holds the decoding rules a manufacturer applies to its own
// records.
type Profile struct {
	Manufacturer string

	// VIFs resolves the VIF following 0xFF and every VIFE.
	VIFs Table

	// ReverseStrings is set for manufacturers that transmit variable
	// length strings back to front.
	ReverseStrings bool

	// ExtensionValue computes the value of every VIFE from the whole VIB.
	// The VIFE codes are used when nil or when ok is false.
	ExtensionValue func(vib []byte) (v Value, ok bool)
}

var (
	profileMutex sync.RWMutex
	profiles     = make(map[string]Profile)
)

// Given a profile, register it for use by its manufacturer code.
// Later used by underscore importing each profile package:
//
//	import _ "github.com/bemasher/wmbus/esy"
func RegisterProfile(p Profile) {
	profileMutex.Lock()
	defer profileMutex.Unlock()

	if len(p.VIFs) == 0 {
		panic("profile: VIF table is empty")
	}
	if _, dup := profiles[p.Manufacturer]; dup {
		panic(fmt.Sprintf("profile: profile already registered (%s)", p.Manufacturer))
	}
	profiles[p.Manufacturer] = p
}

func LookupProfile(manufacturer string) (Profile, bool) {
	profileMutex.RLock()
	defer profileMutex.RUnlock()

	p, ok := profiles[manufacturer]
	return p, ok
}
