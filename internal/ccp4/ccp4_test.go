// SPDX-License-Identifier: MIT

package ccp4

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// testMap builds a small synthetic event map in the given mode.
func testMap(t *testing.T, mode int32, data []float32) *Map {
	t.Helper()
	m := &Map{
		Header: Header{
			NC: 2, NR: 2, NS: 2,
			Mode: mode,
			NX:   2, NY: 2, NZ: 2,
			Cell: [6]float32{20, 30, 40, 90, 90, 90},
			MapC: 1, MapR: 2, MapS: 3,
			ISpg:  19, // P 21 21 21, a typical parent spacegroup
			NLabl: 1,
		},
		Data: data,
	}
	copy(m.Header.Labels[:], "Created by eventmaphdr test")
	require.NoError(t, m.UpdateHeader(mode, true))
	return m
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data := []float32{0.5, -1.25, 3.75, 0, 2.5, -0.125, 1, 7.5}
	m := testMap(t, ModeFloat32, data)
	m.SetSpacegroupP1()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	got, err := Decode(&buf)
	require.NoError(t, err)

	if diff := cmp.Diff(m.Header, got.Header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, m.Sym, got.Sym)
	require.Equal(t, m.Data, got.Data)
}

func TestDecodeBadMagic(t *testing.T) {
	raw := make([]byte, headerSize)
	copy(raw[208:212], "XXX ")
	_, err := Decode(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeTruncated(t *testing.T) {
	m := testMap(t, ModeFloat32, make([]float32, 8))
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	// Cut the data block short.
	short := buf.Bytes()[:buf.Len()-5]
	_, err := Decode(bytes.NewReader(short))
	require.ErrorIs(t, err, ErrTruncated)

	// A bare header prefix is also truncated.
	_, err = Decode(bytes.NewReader(short[:100]))
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeUnsupportedMode(t *testing.T) {
	m := testMap(t, ModeFloat32, make([]float32, 8))
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	raw := buf.Bytes()
	binary.LittleEndian.PutUint32(raw[12:16], 4) // complex float32
	_, err := Decode(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestDecodeRejectsOversizedSymmetryBlock(t *testing.T) {
	m := testMap(t, ModeFloat32, make([]float32, 8))
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	raw := buf.Bytes()
	binary.LittleEndian.PutUint32(raw[92:96], 1<<30)
	_, err := Decode(bytes.NewReader(raw))
	require.ErrorContains(t, err, "symmetry block size")

	binary.LittleEndian.PutUint32(raw[92:96], uint32(1<<32-80)) // -80
	_, err = Decode(bytes.NewReader(raw))
	require.ErrorContains(t, err, "symmetry block size")
}

func TestIntegerModeDecodesToFloat32(t *testing.T) {
	data := []float32{-128, -1, 0, 1, 2, 3, 100, 127}
	m := testMap(t, ModeInt8, data)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, data, got.Data)
	require.Equal(t, int32(ModeInt8), got.Header.Mode)

	// Promoting to mode 2 round-trips losslessly.
	require.NoError(t, got.UpdateHeader(ModeFloat32, true))
	var buf2 bytes.Buffer
	require.NoError(t, Encode(&buf2, got))
	again, err := Decode(&buf2)
	require.NoError(t, err)
	require.Equal(t, int32(ModeFloat32), again.Header.Mode)
	require.Equal(t, data, again.Data)
}

func TestDecodeBigEndian(t *testing.T) {
	m := testMap(t, ModeFloat32, []float32{1, 2, 3, 4, 5, 6, 7, 8})
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	raw := buf.Bytes()
	be := make([]byte, len(raw))
	// Byte-swap the header words and data, leaving the magic text intact.
	for off := 0; off < headerSize; off += 4 {
		if off == 208 {
			copy(be[off:off+4], raw[off:off+4])
			continue
		}
		be[off] = raw[off+3]
		be[off+1] = raw[off+2]
		be[off+2] = raw[off+1]
		be[off+3] = raw[off]
	}
	// Labels are text, restore them.
	copy(be[224:1024], raw[224:1024])
	be[212] = stampBig
	be[213] = stampBig
	for off := headerSize; off < len(raw); off += 4 {
		be[off] = raw[off+3]
		be[off+1] = raw[off+2]
		be[off+2] = raw[off+1]
		be[off+3] = raw[off]
	}

	got, err := Decode(bytes.NewReader(be))
	require.NoError(t, err)
	require.Equal(t, m.Data, got.Data)
	require.Equal(t, m.Header.Cell, got.Header.Cell)
}

func TestSetSpacegroupP1(t *testing.T) {
	m := testMap(t, ModeFloat32, make([]float32, 8))
	require.Equal(t, int32(19), m.Header.ISpg)

	m.SetSpacegroupP1()

	require.Equal(t, int32(SpacegroupP1), m.Header.ISpg)
	require.Equal(t, int32(SymRecordSize), m.Header.NSymBt)
	require.Len(t, m.Sym, SymRecordSize)
	require.Equal(t, "X,  Y,  Z", string(bytes.TrimRight(m.Sym, " ")))
	require.Equal(t, IdentitySymRecord(), m.Sym)
}

func TestSetSpacegroupNonP1ClearsSymmetry(t *testing.T) {
	m := testMap(t, ModeFloat32, make([]float32, 8))
	m.SetSpacegroupP1()

	m.SetSpacegroup(19)

	require.Equal(t, int32(19), m.Header.ISpg)
	require.Equal(t, int32(0), m.Header.NSymBt)
	require.Empty(t, m.Sym)
}

func TestUpdateHeaderStats(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	m := testMap(t, ModeFloat32, data)
	m.Header.AMin, m.Header.AMax, m.Header.AMean, m.Header.ARMS = 0, 0, 0, 0

	require.NoError(t, m.UpdateHeader(ModeFloat32, true))

	require.Equal(t, float32(1), m.Header.AMin)
	require.Equal(t, float32(8), m.Header.AMax)
	require.Equal(t, float32(4.5), m.Header.AMean)
	require.InDelta(t, 2.29128, float64(m.Header.ARMS), 1e-4)

	require.Error(t, m.UpdateHeader(6, true))
}

func TestStatsEdgeCases(t *testing.T) {
	amin, amax, amean, arms := Stats(nil)
	require.Zero(t, amin)
	require.Zero(t, amax)
	require.Zero(t, amean)
	require.Zero(t, arms)

	// Constant map has zero spread.
	amin, amax, amean, arms = Stats([]float32{2.5, 2.5, 2.5})
	require.Equal(t, float32(2.5), amin)
	require.Equal(t, float32(2.5), amax)
	require.Equal(t, float32(2.5), amean)
	require.Zero(t, arms)
}

func TestEncodeRejectsSizeMismatch(t *testing.T) {
	m := testMap(t, ModeFloat32, make([]float32, 8))
	m.Data = m.Data[:5]
	var buf bytes.Buffer
	require.Error(t, Encode(&buf, m))
}

func TestEmptyMapRoundTrip(t *testing.T) {
	m := &Map{
		Header: Header{Mode: ModeFloat32, MapC: 1, MapR: 2, MapS: 3},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))
	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Empty(t, got.Data)
}

func TestDecodeZeroStampFallsBackToModeCheck(t *testing.T) {
	m := testMap(t, ModeFloat32, make([]float32, 8))
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))

	raw := buf.Bytes()
	raw[212], raw[213] = 0, 0
	got, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, m.Header.Cell, got.Header.Cell)
}

func TestFindSpacegroupByName(t *testing.T) {
	tests := []struct {
		name string
		want int32
	}{
		{"P 1", 1},
		{"P1", 1},
		{"p 21 21 21", 19},
		{"C 2", 5},
		{"I 41 2 2", 98},
		{"155", 155},
	}
	for _, tc := range tests {
		got, err := FindSpacegroupByName(tc.name)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, got, tc.name)
	}

	for _, bad := range []string{"", "Q 9", "0", "231"} {
		_, err := FindSpacegroupByName(bad)
		require.Error(t, err, bad)
	}
}

func TestStatsNumericalStability(t *testing.T) {
	// Large constant offset should not destroy the RMS computation.
	data := make([]float32, 1000)
	for i := range data {
		data[i] = 1e6 + float32(i%2) // alternates 1e6, 1e6+1
	}
	_, _, amean, arms := Stats(data)
	require.InDelta(t, 1e6+0.5, float64(amean), 1e-1)
	require.InDelta(t, 0.5, float64(arms), 1e-3)
	require.False(t, math.IsNaN(float64(arms)))
}
