package record

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bemasher/wmbus/protocol"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, payload ...byte) []DataRecord {
	t.Helper()

	records, err := NewDecoder(nil, nil).Decode(payload, "ABC")
	require.NoError(t, err)
	return records
}

func decodeOne(t *testing.T, payload ...byte) DataRecord {
	t.Helper()

	records := decode(t, payload...)
	require.Len(t, records, 1)
	return records[0]
}

func decodeErr(t *testing.T, payload ...byte) error {
	t.Helper()

	records, err := NewDecoder(nil, nil).Decode(payload, "ABC")
	require.Error(t, err)
	require.Nil(t, records)
	return err
}

func repeat(b byte, n int) []byte {
	out := make([]byte, n)
	for idx := range out {
		out[idx] = b
	}
	return out
}

func TestEnergy(t *testing.T) {
	rec := decodeOne(t, 0x01, 0x03, 0x05)

	require.Equal(t, 1, rec.Number)
	require.Equal(t, "energy_wh", rec.Type)
	require.Equal(t, "Wh", rec.VIF.Unit)
	require.Equal(t, 3, rec.Exponent)
	require.Equal(t, 1.0, rec.Factor)
	require.Equal(t, IntValue(5), rec.Value)
	require.Equal(t, "5", rec.Value.String())
	require.Equal(t, "Instantaneous value", rec.FunctionFieldText)
	require.Empty(t, rec.Extension)
}

func TestFiller(t *testing.T) {
	require.Empty(t, decode(t, 0x2F, 0x2F, 0x2F))
	require.Empty(t, decode(t))

	records := decode(t, 0x2F, 0x01, 0x03, 0x05, 0x2F, 0x2F)
	require.Len(t, records, 1)
}

func TestScaling(t *testing.T) {
	// 12345 l
	rec := decodeOne(t, 0x04, 0x13, 0x39, 0x30, 0x00, 0x00)
	require.Equal(t, "volume", rec.Type)
	require.Equal(t, "m³", rec.VIF.Unit)
	require.InDelta(t, 0.001, rec.Factor, 1e-12)
	require.Equal(t, "12.345", rec.Value.String())
	require.Equal(t, 3, rec.Value.Decimals)

	// no fraction left
	rec = decodeOne(t, 0x02, 0x13, 0xE8, 0x03)
	require.Equal(t, IntValue(1), rec.Value)

	// 10^(2-3) Wh
	rec = decodeOne(t, 0x01, 0x02, 0x07)
	require.Equal(t, "0.7", rec.Value.String())

	// 10^(7-3) Wh
	rec = decodeOne(t, 0x01, 0x07, 0x07)
	require.Equal(t, IntValue(70000), rec.Value)
}

func TestScalingOverflow(t *testing.T) {
	// 999999999999 in units of 10^7 J
	rec := decodeOne(t, 0x0E, 0x0F, 0x99, 0x99, 0x99, 0x99, 0x99, 0x99)
	require.Equal(t, "energy_j", rec.Type)
	require.Equal(t, IntValue(999999999999), rec.Raw)
	require.Equal(t, Float, rec.Value.Type)
	require.InEpsilon(t, 9.99999999999e18, rec.Value.Float, 1e-12)

	// all ones 64-bit integer in units of 10^4 Wh
	rec = decodeOne(t, 0x07, 0x07, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
	require.Equal(t, FloatValue(float64(math.MaxUint64), 0), rec.Raw)
	require.Equal(t, Float, rec.Value.Type)
	require.InEpsilon(t, float64(math.MaxUint64)*1e4, rec.Value.Float, 1e-12)

	require.Equal(t, IntValue(math.MaxInt64), decodeOne(t, 0x07, 0x03,
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F).Raw)

	cases := []struct {
		v   int64
		exp int
	}{
		{math.MaxInt64, 1},
		{math.MinInt64/10 - 1, 1},
		{2, 19},
		{-1, 30},
	}
	for _, c := range cases {
		v := scale(IntValue(c.v), c.exp)
		require.Equal(t, Float, v.Type, "%d e%d", c.v, c.exp)
		require.InEpsilon(t, float64(c.v)*math.Pow10(c.exp), v.Float, 1e-12, "%d e%d", c.v, c.exp)
	}

	require.Equal(t, IntValue(math.MinInt64/10*10), scale(IntValue(math.MinInt64/10), 1))
	v := scale(IntValue(5), -19)
	require.Equal(t, Float, v.Type)
	require.InEpsilon(t, 5e-19, v.Float, 1e-12)
}

func TestIntegers(t *testing.T) {
	rec := decodeOne(t, 0x03, 0x03, 0x01, 0x02, 0x03)
	require.Equal(t, IntValue(0x030201), rec.Raw)

	rec = decodeOne(t, 0x06, 0x03, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00)
	require.Equal(t, IntValue(1<<32+1), rec.Raw)

	rec = decodeOne(t, 0x07, 0x03, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00)
	require.Equal(t, IntValue(1<<48+1), rec.Raw)
}

func TestBCD(t *testing.T) {
	rec := decodeOne(t, 0x0C, 0x13, 0x78, 0x56, 0x34, 0x12)
	require.Equal(t, IntValue(12345678), rec.Raw)
	require.Equal(t, "12345.678", rec.Value.String())

	rec = decodeOne(t, 0x0A, 0x03, 0x21, 0x43)
	require.Equal(t, IntValue(3421), rec.Value)

	rec = decodeOne(t, 0x0E, 0x03, 0x01, 0x00, 0x00, 0x00, 0x00, 0x10)
	require.Equal(t, IntValue(100000000001), rec.Value)
}

func TestFloat32(t *testing.T) {
	rec := decodeOne(t, 0x05, 0x03, 0x00, 0x00, 0xC0, 0x3F)
	require.Equal(t, "1.5", rec.Value.String())

	f, ok := rec.Value.Number()
	require.True(t, ok)
	require.Equal(t, 1.5, f)
}

func TestVariableLength(t *testing.T) {
	rec := decodeOne(t, 0x0D, 0x79, 0x03, 'a', 'b', 'c')
	require.Equal(t, "owner_number", rec.Type)
	require.Equal(t, TextValue("abc"), rec.Value)

	rec = decodeOne(t, 0x0D, 0x03, 0xC2, 0x21, 0x43)
	require.Equal(t, IntValue(3421), rec.Value)

	rec = decodeOne(t, 0x0D, 0x03, 0xD2, 0x21, 0x43)
	require.Equal(t, IntValue(-3421), rec.Value)

	err := decodeErr(t, 0x0D, 0x03, 0xE0)
	require.True(t, errors.Is(err, protocol.ErrUnknownLVAR), "%v", err)
}

func TestManufacturerSpecific(t *testing.T) {
	rec := decodeOne(t, 0x0D, 0xFF, 0x02, 0xAB, 0xCD)
	require.Equal(t, TypeManufacturerSpecific, rec.Type)
	require.Empty(t, rec.VIF.Unit)
	require.Equal(t, TextValue("abcd"), rec.Value)
}

func TestPlainTextUnit(t *testing.T) {
	rec := decodeOne(t, 0x01, 0xFC, 0x03, 'k', 'W', 'h', 0x07)
	require.Equal(t, TypeSeeUnit, rec.Type)
	require.Equal(t, "kWh", rec.VIF.Unit)
	require.Equal(t, IntValue(7), rec.Value)
}

func TestSpecialFunction(t *testing.T) {
	records := decode(t, 0x01, 0x03, 0x05, 0x0F, 0xAA, 0x2F, 0xBB)
	require.Len(t, records, 2)
	require.Equal(t, TypeSpecialFunction, records[1].Type)
	require.Equal(t, TextValue("aa2fbb"), records[1].Value)
}

func TestDIBPacking(t *testing.T) {
	rec := decodeOne(t, 0xC4, 0x5A, 0x03, 0x05, 0x00, 0x00, 0x00)
	require.Equal(t, uint8(0x04), rec.DataField)
	require.Equal(t, uint64(1|0x0A<<1), rec.StorageNumber)
	require.Equal(t, uint32(1), rec.Tariff)
	require.Equal(t, uint16(1), rec.DeviceUnit)

	rec = decodeOne(t, 0x84, 0x81, 0x02, 0x03, 0x05, 0x00, 0x00, 0x00)
	require.Equal(t, uint64(1<<1|2<<5), rec.StorageNumber)
	require.Len(t, rec.DIFE, 2)

	rec = decodeOne(t, 0x91, 0x20, 0x03, 0x05)
	require.Equal(t, "Maximum value", rec.FunctionFieldText)
	require.Equal(t, uint32(2), rec.Tariff)
}

func TestTooManyDIFE(t *testing.T) {
	// 11 bytes with the extension bit and nothing after them: a 12th read
	// would report a truncated message instead.
	payload := append([]byte{0x84}, repeat(0x80, 10)...)
	err := decodeErr(t, payload...)
	require.True(t, errors.Is(err, protocol.ErrTooManyDIFE), "%v", err)

	payload = append([]byte{0x84}, repeat(0x80, 9)...)
	payload = append(payload, 0x00, 0x03, 0x05, 0x00, 0x00, 0x00)
	rec := decodeOne(t, payload...)
	require.Len(t, rec.DIFE, 10)
}

func TestTooManyVIFE(t *testing.T) {
	payload := append([]byte{0x01, 0x83}, repeat(0x80, 10)...)
	err := decodeErr(t, payload...)
	require.True(t, errors.Is(err, protocol.ErrTooManyVIFE), "%v", err)

	payload = append([]byte{0x01, 0x83}, repeat(0x80, 9)...)
	payload = append(payload, 0x00, 0x05)
	rec := decodeOne(t, payload...)
	require.Len(t, rec.Extensions, 10)
	require.Equal(t, "No error, 0", rec.Extensions[0].annotation())
}

func TestExtensions(t *testing.T) {
	rec := decodeOne(t, 0x01, 0x83, 0x3B, 0x05)
	require.Equal(t, "energy_wh", rec.Type)
	require.Equal(t, "Accumulation only if positive contribution, 3b", rec.Extension)

	rec = decodeOne(t, 0x01, 0x83, 0x7D, 0x05)
	require.Equal(t, IntValue(5000), rec.Value)
	require.Equal(t, ", correction by factor 1000", rec.Extension)

	rec = decodeOne(t, 0x01, 0x83, 0x5E, 0x05)
	require.Equal(t, "duration of limit exceeded, upper limit, first, duration 2", rec.Extension)

	rec = decodeOne(t, 0x01, 0x83, 0x41, 0x05)
	require.Equal(t, "# of exceeds, lower limit", rec.Extension)

	rec = decodeOne(t, 0x01, 0x83, 0xBB, 0x7D, 0x05)
	require.Len(t, rec.Extensions, 2)
	require.Equal(t, "Accumulation only if positive contribution, 3b; , correction by factor 1000", rec.Extension)
}

func TestExtensionTables(t *testing.T) {
	rec := decodeOne(t, 0x02, 0xFD, 0x17, 0xAB, 0x00)
	require.Equal(t, "error_flags", rec.Type)
	require.Equal(t, TextValue("ab"), rec.Value)

	rec = decodeOne(t, 0x01, 0xFD, 0x2E, 0x05)
	require.Equal(t, "duration_since_readout", rec.Type)
	require.Equal(t, "h", rec.VIF.Unit)
	require.Equal(t, IntValue(5), rec.Value)

	rec = decodeOne(t, 0x01, 0xFB, 0x01, 0x05)
	require.Equal(t, "energy_mwh", rec.Type)
	require.Equal(t, IntValue(5), rec.Value)

	rec = decodeOne(t, 0x01, 0xFB, 0x00, 0x05)
	require.Equal(t, "0.5", rec.Value.String())
}

func init() {
	RegisterProfile(Profile{
		Manufacturer: "TST",
		VIFs: Table{
			{"period", 0x7C, 0x03, 0x2C, 0, "s", TimePeriod},
		},
	})
}

func TestTimePeriodExtension(t *testing.T) {
	records, err := NewDecoder(nil, nil).Decode([]byte{0x01, 0x83, 0x2E, 0x05}, "TST")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, "energy_wh", rec.Type)
	require.Equal(t, "h", rec.VIF.Unit)
	require.Equal(t, IntValue(5), rec.Value)
	require.Len(t, rec.Extensions, 1)
	require.Equal(t, "s", rec.Extensions[0].Unit)
}

func TestUnknownCodes(t *testing.T) {
	err := decodeErr(t, 0x01, 0x6F, 0x05)
	require.True(t, errors.Is(err, protocol.ErrUnknownVIF), "%v", err)

	err = decodeErr(t, 0x01, 0xFB, 0x02, 0x05)
	require.True(t, errors.Is(err, protocol.ErrUnknownVIF), "%v", err)

	err = decodeErr(t, 0x01, 0x83, 0x02, 0x05)
	require.True(t, errors.Is(err, protocol.ErrUnknownVIFE), "%v", err)

	err = decodeErr(t, 0x08, 0x03)
	require.True(t, errors.Is(err, protocol.ErrUnknownDataField), "%v", err)
}

func TestTruncated(t *testing.T) {
	err := decodeErr(t, 0x04, 0x03, 0x01)
	require.True(t, errors.Is(err, protocol.ErrMessageTooShort), "%v", err)

	err = decodeErr(t, 0x01, 0x03, 0x05, 0x02, 0x03, 0x01)
	var decErr *protocol.DecodeError
	require.True(t, errors.As(err, &decErr))
	require.Equal(t, protocol.KindMessageTooShort, decErr.Kind)
	require.Equal(t, 2, decErr.Record)

	err = decodeErr(t, 0x01)
	require.True(t, errors.Is(err, protocol.ErrMessageTooShort), "%v", err)
}

func TestDate(t *testing.T) {
	// 31.12.2007
	rec := decodeOne(t, 0x02, 0x6C, 0xFF, 0x0C)
	require.Equal(t, "date", rec.Type)
	require.Equal(t, TextValue("2007-12-31"), rec.Value)

	rec = decodeOne(t, 0x02, 0x6C, 0x00, 0x00)
	require.Equal(t, TextValue("invalid: 0"), rec.Value)

	// 31.02.2007
	rec = decodeOne(t, 0x02, 0x6C, 0xFF, 0x02)
	require.Equal(t, TextValue("invalid: 767"), rec.Value)
}

func TestDateTime(t *testing.T) {
	rec := decodeOne(t, 0x04, 0x6D, 0x2D, 0x0D, 0xFF, 0x0C)
	require.Equal(t, TextValue("2007-12-31 13:45"), rec.Value)

	rec = decodeOne(t, 0x04, 0x6D, 0x2D, 0x8D, 0xFF, 0x0C)
	require.Equal(t, TextValue("2007-12-31 13:45 DST"), rec.Value)

	// time flagged invalid
	rec = decodeOne(t, 0x04, 0x6D, 0x80, 0x00, 0xFF, 0x0C)
	require.Equal(t, TextValue("2007-12-31"), rec.Value)

	rec = decodeOne(t, 0x04, 0x6D, 0x3C, 0x0D, 0xFF, 0x0C)
	require.Equal(t, TextValue("invalid: 218041660"), rec.Value)
}

func TestInjectedDateFormat(t *testing.T) {
	d := NewDecoder(func(t time.Time, pattern string) string {
		return t.Format("02.01.2006")
	}, nil)

	records, err := d.Decode([]byte{0x02, 0x6C, 0xFF, 0x0C}, "ABC")
	require.NoError(t, err)
	require.Equal(t, TextValue("31.12.2007"), records[0].Value)
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2021, time.March, 4, 5, 6, 0, 0, time.UTC)
	require.Equal(t, "2021-03-04 05:06", FormatDate(ts, "YYYY-MM-DD hh:mm"))
	require.Equal(t, "04.03.2021", FormatDate(ts, "DD.MM.YYYY"))
}

func TestValueJSON(t *testing.T) {
	v := struct {
		A, B, C, D Value
	}{IntValue(-5), FloatValue(12.3, 3), TextValue("abc"), Value{}}

	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.JSONEq(t, `{"A":-5,"B":12.300,"C":"abc","D":null}`, string(b))
}

func TestTableLookupOrder(t *testing.T) {
	info, ok := Primary.Lookup(0x6D)
	require.True(t, ok)
	require.Equal(t, "date_time", info.Type)

	info, ok = ExtensionFD.Lookup(0x71)
	require.True(t, ok)
	require.Equal(t, "reception_level", info.Type)

	info, ok = ExtensionFD.Lookup(0x72)
	require.True(t, ok)
	require.Equal(t, "reserved", info.Type)
}
