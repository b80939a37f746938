package scpi_test

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hegelab/hegel/pkg/hegel/scpi"
)

// fakeQuerier maps commands to canned replies; replies listed under a
// key are consumed in order so queue-like behavior can be modeled.
type fakeQuerier struct {
	mu      sync.Mutex
	replies map[string][]string
	writes  []string
}

func (f *fakeQuerier) Write(_ context.Context, cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, cmd)
	return nil
}

func (f *fakeQuerier) Query(_ context.Context, cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rs, ok := f.replies[cmd]
	if !ok || len(rs) == 0 {
		return "", fmt.Errorf("no reply for %q", cmd)
	}
	reply := rs[0]
	if len(rs) > 1 {
		f.replies[cmd] = rs[1:]
	}
	return reply, nil
}

func TestParseIDN(t *testing.T) {
	idn := scpi.ParseIDN("Keysight Technologies,34465A,MY57701234,A.02.17")
	assert.Equal(t, "Keysight Technologies", idn.Vendor)
	assert.Equal(t, "34465A", idn.Model)
	assert.Equal(t, "MY57701234", idn.Serial)
	assert.Equal(t, "A.02.17", idn.Firmware)

	short := scpi.ParseIDN("Vendor,Model")
	assert.Equal(t, "Vendor", short.Vendor)
	assert.Equal(t, "Model", short.Model)
	assert.Empty(t, short.Serial)
	assert.Empty(t, short.Firmware)
}

func TestParseFloat(t *testing.T) {
	v, err := scpi.ParseFloat(" 1.25e-3 ")
	require.NoError(t, err)
	assert.Equal(t, 1.25e-3, v)

	v, err = scpi.ParseFloat("9.91E37")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))

	v, err = scpi.ParseFloat("9.9E37")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, 1))

	v, err = scpi.ParseFloat("-9.9E37")
	require.NoError(t, err)
	assert.True(t, math.IsInf(v, -1))

	_, err = scpi.ParseFloat("twelve")
	require.Error(t, err)
}

func TestFormatFloatRoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1, -2.5, 1e-9, 1.23456789012345e6} {
		got, err := scpi.ParseFloat(scpi.FormatFloat(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	got, err := scpi.ParseFloat(scpi.FormatFloat(math.NaN()))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got))
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"1", "ON", "on"} {
		v, err := scpi.ParseBool(s)
		require.NoError(t, err)
		assert.True(t, v, s)
	}
	for _, s := range []string{"0", "OFF", " off "} {
		v, err := scpi.ParseBool(s)
		require.NoError(t, err)
		assert.False(t, v, s)
	}
	_, err := scpi.ParseBool("maybe")
	require.Error(t, err)
}

func TestParseError(t *testing.T) {
	e, err := scpi.ParseError(`-113,"Undefined header"`)
	require.NoError(t, err)
	assert.Equal(t, -113, e.Code)
	assert.Equal(t, "Undefined header", e.Message)
	assert.Contains(t, e.Error(), "-113")

	_, err = scpi.ParseError("garbage")
	require.Error(t, err)
}

func TestDrainErrors(t *testing.T) {
	f := &fakeQuerier{replies: map[string][]string{
		"SYST:ERR?": {
			`-113,"Undefined header"`,
			`-222,"Data out of range"`,
			`0,"No error"`,
		},
	}}

	errs, err := scpi.DrainErrors(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, -113, errs[0].Code)
	assert.Equal(t, -222, errs[1].Code)
}

func TestCheckErrorsClean(t *testing.T) {
	f := &fakeQuerier{replies: map[string][]string{
		"SYST:ERR?": {`0,"No error"`},
	}}
	require.NoError(t, scpi.CheckErrors(context.Background(), f))
}

func TestWaitOPC(t *testing.T) {
	f := &fakeQuerier{replies: map[string][]string{
		"*ESR?": {"0", "0", "1"},
	}}

	err := scpi.WaitOPC(context.Background(), f, time.Millisecond)
	require.NoError(t, err)
	assert.Contains(t, f.writes, "*OPC")
}

func TestWaitOPCCancelled(t *testing.T) {
	f := &fakeQuerier{replies: map[string][]string{
		"*ESR?": {"0"},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := scpi.WaitOPC(ctx, f, 5*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBlockRoundTrip(t *testing.T) {
	payload := []byte("some binary \x00\x01\x02 waveform data")
	framed := scpi.EncodeBlock(payload)
	assert.True(t, strings.HasPrefix(string(framed), "#2"))

	got, consumed, err := scpi.DecodeBlock(framed)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, len(framed), consumed)
}

func TestBlockEmptyPayload(t *testing.T) {
	framed := scpi.EncodeBlock(nil)
	got, consumed, err := scpi.DecodeBlock(framed)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 3, consumed) // "#10"
}

func TestDecodeBlockMalformed(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("no hash"),
		[]byte("#"),
		[]byte("#0"),
		[]byte("#2ab123"),
		[]byte("#3100ab"), // payload shorter than declared
	}
	for _, c := range cases {
		_, _, err := scpi.DecodeBlock(c)
		assert.ErrorIs(t, err, scpi.ErrBadBlock, string(c))
	}
}

func TestDecodeBlockTrailingBytes(t *testing.T) {
	framed := append(scpi.EncodeBlock([]byte("abc")), '\n')
	got, consumed, err := scpi.DecodeBlock(framed)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	assert.Equal(t, len(framed)-1, consumed)
}
