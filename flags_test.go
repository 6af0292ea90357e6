package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bemasher/wmbus/protocol"
	"github.com/stretchr/testify/require"
)

type message struct {
	address    string
	deviceType uint8
	checksum   []byte
}

func (m message) MsgType() string      { return "wM-Bus" }
func (m message) Manufacturer() string { return "BMT" }
func (m message) Address() string      { return m.address }
func (m message) DeviceType() uint8    { return m.deviceType }
func (m message) Checksum() []byte     { return m.checksum }
func (m message) Record() []string     { return []string{m.address} }
func (m message) Header() []string     { return []string{"address"} }
func (m message) String() string       { return "{Address:" + m.address + "}" }

func TestAddressSet(t *testing.T) {
	set := make(AddressSet)
	require.NoError(t, set.Set("12345678, 00000001"))
	require.Equal(t, "00000001,12345678", set.String())
	require.Error(t, set.Set("1234"))

	f := AddressFilter{set}
	require.True(t, f.Filter(message{address: "12345678"}))
	require.False(t, f.Filter(message{address: "87654321"}))
}

func TestUintMap(t *testing.T) {
	m := make(UintMap)
	require.NoError(t, m.Set("7,0x16"))
	require.Equal(t, "7,22", m.String())
	require.Error(t, m.Set("256"))
	require.Error(t, m.Set("water"))

	f := DeviceTypeFilter{m}
	require.True(t, f.Filter(message{deviceType: 0x16}))
	require.False(t, f.Filter(message{deviceType: 0x02}))
}

func TestUniqueFilter(t *testing.T) {
	uf := NewUniqueFilter()

	a := message{address: "12345678", checksum: []byte{0x01, 0x02}}
	b := message{address: "12345678", checksum: []byte{0x03, 0x04}}
	other := message{address: "87654321", checksum: []byte{0x01, 0x02}}

	require.True(t, uf.Filter(a))
	require.False(t, uf.Filter(a))
	require.True(t, uf.Filter(other))
	require.True(t, uf.Filter(b))
	require.True(t, uf.Filter(a))
}

func TestFilterChain(t *testing.T) {
	addrs := make(AddressSet)
	require.NoError(t, addrs.Set("12345678"))
	types := make(UintMap)
	require.NoError(t, types.Set("2"))

	var fc protocol.FilterChain
	require.True(t, fc.Match(message{}))

	fc.Add(AddressFilter{addrs})
	fc.Add(DeviceTypeFilter{types})
	require.True(t, fc.Match(message{address: "12345678", deviceType: 2}))
	require.False(t, fc.Match(message{address: "12345678", deviceType: 7}))
	require.False(t, fc.Match(message{address: "00000001", deviceType: 2}))
}

func TestNewEncoder(t *testing.T) {
	msg := protocol.LogMessage{
		Time:    time.Date(2020, 5, 4, 12, 0, 0, 0, time.UTC),
		Type:    "wM-Bus",
		Message: message{address: "12345678"},
	}

	for _, format := range []string{"plain", "CSV", "json", "xml"} {
		var buf bytes.Buffer
		enc, err := NewEncoder(format, &buf)
		require.NoError(t, err, format)

		require.NoError(t, enc.Encode(msg), format)
		require.NoError(t, enc.Encode(msg), format)
		require.True(t, strings.HasSuffix(buf.String(), "\n"), format)
	}

	_, err := NewEncoder("gob", &bytes.Buffer{})
	require.Error(t, err)
}

func TestCSVHeaderOnce(t *testing.T) {
	msg := protocol.LogMessage{
		Time:    time.Date(2020, 5, 4, 12, 0, 0, 0, time.UTC),
		Type:    "wM-Bus",
		Message: message{address: "12345678"},
	}

	var buf bytes.Buffer
	enc, err := NewEncoder("csv", &buf)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(msg))
	require.NoError(t, enc.Encode(msg))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, []string{
		"time,address",
		"2020-05-04T12:00:00Z,12345678",
		"2020-05-04T12:00:00Z,12345678",
	}, lines)
}
