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
	"strings"
)

// Kind classifies why a telegram could not be decoded.
type Kind int

const (
	KindChecksum Kind = iota + 1
	KindMessageTooShort
	KindUnknownCI
	KindUnknownEncryption
	KindNoKey
	KindWrongKey
	KindDecryptionFailed
	KindTooManyDIFE
	KindTooManyVIFE
	KindUnknownVIF
	KindUnknownVIFE
	KindUnknownLVAR
	KindUnknownDataField
)

var kindNames = map[Kind]string{
	KindChecksum:          "checksum failed",
	KindMessageTooShort:   "message too short",
	KindUnknownCI:         "unknown CI field",
	KindUnknownEncryption: "unknown encryption mode",
	KindNoKey:             "no AES key",
	KindWrongKey:          "wrong AES key",
	KindDecryptionFailed:  "decryption failed",
	KindTooManyDIFE:       "too many DIFE",
	KindTooManyVIFE:       "too many VIFE",
	KindUnknownVIF:        "unknown VIF",
	KindUnknownVIFE:       "unknown VIFE",
	KindUnknownLVAR:       "unknown LVAR",
	KindUnknownDataField:  "unknown data field",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// DecodeError ends the decode of a telegram. Record is 1-based and zero
// when the error is not tied to a data record. Block numbers checksum
// blocks with the link layer header as block 0.
type DecodeError struct {
	Kind    Kind
	Message string
	Block   int
	Record  int
	Err     error
}

// Sentinels for use with errors.Is, which matches on Kind only.
var (
	ErrChecksum          = &DecodeError{Kind: KindChecksum}
	ErrMessageTooShort   = &DecodeError{Kind: KindMessageTooShort}
	ErrUnknownCI         = &DecodeError{Kind: KindUnknownCI}
	ErrUnknownEncryption = &DecodeError{Kind: KindUnknownEncryption}
	ErrNoKey             = &DecodeError{Kind: KindNoKey}
	ErrWrongKey          = &DecodeError{Kind: KindWrongKey}
	ErrDecryptionFailed  = &DecodeError{Kind: KindDecryptionFailed}
	ErrTooManyDIFE       = &DecodeError{Kind: KindTooManyDIFE}
	ErrTooManyVIFE       = &DecodeError{Kind: KindTooManyVIFE}
	ErrUnknownVIF        = &DecodeError{Kind: KindUnknownVIF}
	ErrUnknownVIFE       = &DecodeError{Kind: KindUnknownVIFE}
	ErrUnknownLVAR       = &DecodeError{Kind: KindUnknownLVAR}
	ErrUnknownDataField  = &DecodeError{Kind: KindUnknownDataField}
)

func Errorf(kind Kind, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Record > 0 {
		fmt.Fprintf(&b, " in record %d", e.Record)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}

// InRecord tags the error with the record it occurred in.
func (e *DecodeError) InRecord(n int) *DecodeError {
	e.Record = n
	return e
}
