package source

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bemasher/wmbus/decoder"
	"github.com/stretchr/testify/require"
)

const input = `# captured 2020-05-04
2e44931578563412330333637a2a0020255923c95aaa26d1b2e7493b013ec4a6f6d3529b520edff0ea6defc99d6d69ebf3

  0x0a 0b 0c
not hex
0a-0b-0c|0d
`

func TestScannerSkipsCommentsAndInvalid(t *testing.T) {
	sc := NewScanner(strings.NewReader(input), nil)
	sc.Decrypted = true

	var tels []decoder.Telegram
	var lines []int
	for sc.Scan() {
		tels = append(tels, sc.Telegram())
		lines = append(lines, sc.Line())
	}
	require.NoError(t, sc.Err())

	require.Len(t, tels, 3)
	require.Equal(t, []int{2, 4, 6}, lines)
	require.Equal(t, byte(0x2e), tels[0].Data[0])
	require.Len(t, tels[0].Data, 49)
	require.Equal(t, []byte{0x0a, 0x0b, 0x0c}, tels[1].Data)
	require.Equal(t, []byte{0x0a, 0x0b, 0x0c, 0x0d}, tels[2].Data)
	for _, tel := range tels {
		require.True(t, tel.Decrypted)
		require.False(t, tel.ChecksumRemoved)
	}
	require.Equal(t, 1, sc.Skipped)
}

func TestScannerEmpty(t *testing.T) {
	sc := NewScanner(strings.NewReader(""), nil)
	require.False(t, sc.Scan())
	require.NoError(t, sc.Err())
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) {
	return 0, errors.New("device disconnected")
}

func TestScannerReadError(t *testing.T) {
	sc := NewScanner(failReader{}, nil)
	require.False(t, sc.Scan())
	require.Error(t, sc.Err())
	require.Contains(t, sc.Err().Error(), "device disconnected")
}

func TestRun(t *testing.T) {
	sc := NewScanner(strings.NewReader("0102\n0304\n"), nil)
	sc.ChecksumRemoved = true

	out := make(chan decoder.Telegram, 4)
	require.NoError(t, sc.Run(context.Background(), out))

	var got [][]byte
	for tel := range out {
		require.True(t, tel.ChecksumRemoved)
		got = append(got, tel.Data)
	}
	require.Equal(t, [][]byte{{0x01, 0x02}, {0x03, 0x04}}, got)
}

func TestRunCancelled(t *testing.T) {
	sc := NewScanner(strings.NewReader("0102\n0304\n"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan decoder.Telegram)
	err := sc.Run(ctx, out)
	require.ErrorIs(t, err, context.Canceled)

	_, ok := <-out
	require.False(t, ok)
}

func TestOpenSerialNoPort(t *testing.T) {
	_, err := OpenSerial(SerialConfig{})
	require.Error(t, err)
}
