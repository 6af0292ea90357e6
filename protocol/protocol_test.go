package protocol

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestManufacturerKnown(t *testing.T) {
	id, err := EncodeManufacturer("ABC")
	require.NoError(t, err)
	require.Equal(t, uint16(1091), id)
	require.Equal(t, "ABC", DecodeManufacturer(1091))

	require.Equal(t, "ESY", DecodeManufacturer(0x1679))
	require.Equal(t, "BMT", DecodeManufacturer(0x09B4))
}

func TestManufacturerInvalid(t *testing.T) {
	for _, code := range []string{"", "AB", "ABCD", "abc", "A1C"} {
		_, err := EncodeManufacturer(code)
		require.Error(t, err, code)
	}
}

type ManufacturerCode string

func (ManufacturerCode) Generate(rand *rand.Rand, size int) reflect.Value {
	code := make([]byte, 3)
	for idx := range code {
		code[idx] = byte('A' + rand.Intn(26))
	}
	return reflect.ValueOf(ManufacturerCode(code))
}

func TestManufacturerBijection(t *testing.T) {
	err := quick.Check(func(code ManufacturerCode) bool {
		id, err := EncodeManufacturer(string(code))
		return err == nil && DecodeManufacturer(id) == string(code)
	}, nil)
	require.NoError(t, err)
}

func TestDecodeBCD(t *testing.T) {
	require.Equal(t, uint64(3421), DecodeBCD(4, []byte{0x21, 0x43}))
	require.Equal(t, uint64(12345678), DecodeBCD(8, []byte{0x78, 0x56, 0x34, 0x12}))
	require.Equal(t, uint64(7), DecodeBCD(2, []byte{0x07}))
	require.Equal(t, uint64(0), DecodeBCD(0, []byte{0x99}))
}

func TestFormatID(t *testing.T) {
	require.Equal(t, "00003421", FormatID(3421, IDDigits))
	require.Equal(t, "12345678", FormatID(12345678, IDDigits))
	require.Equal(t, "00000000", FormatID(0, IDDigits))
}

func TestStatusText(t *testing.T) {
	cases := []struct {
		status uint8
		text   string
	}{
		{0x00, "no errors"},
		{0x01, "application busy"},
		{0x02, "any application error"},
		{0x03, "abnormal condition/alarm"},
		{0x04, "battery low"},
		{0x0C, "battery low, permanent error"},
		{0x11, "application busy, temporary error"},
	}
	for _, c := range cases {
		require.Equal(t, c.text, StatusText(c.status), "status 0x%02X", c.status)
	}
}

func TestDeviceTypeName(t *testing.T) {
	require.Equal(t, "Water", DeviceTypeName(0x07))
	require.Equal(t, "unknown", DeviceTypeName(0x30))
}

func TestDecodeErrorIs(t *testing.T) {
	err := Errorf(KindChecksum, "block %d", 2)
	require.True(t, errors.Is(err, ErrChecksum))
	require.False(t, errors.Is(err, ErrNoKey))

	wrapped := fmt.Errorf("decode: %w", err.InRecord(3))
	require.True(t, errors.Is(wrapped, ErrChecksum))
	require.Equal(t, "checksum failed in record 3: block 2", err.Error())

	cause := errors.New("crypto/aes: invalid key size 3")
	keyErr := &DecodeError{Kind: KindWrongKey, Err: cause}
	require.True(t, errors.Is(keyErr, cause))
	require.True(t, errors.Is(keyErr, ErrWrongKey))
}
