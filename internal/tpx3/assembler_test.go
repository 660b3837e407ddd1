package tpx3

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	ts, data, err := parseRecord("2023-10-01 12:34:56.789,1234567890abcdef")
	require.NoError(t, err)
	assert.Equal(t, 1696163696.789, ts)
	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78, 0x90, 0xab, 0xcd, 0xef}, data)
}

func TestParseRecordMalformed(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"missing payload", "2023-10-01 12:34:56.789"},
		{"too many fields", "2023-10-01 12:34:56.789,ABCD,EF01"},
		{"bad hex", "2023-10-01 12:34:56.789,XYZ1"},
		{"odd-length hex", "2023-10-01 12:34:56.789,ABC"},
		{"bad timestamp", "yesterday,ABCD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := parseRecord(tc.line)
			assert.Error(t, err)
		})
	}
}

func TestFindSequence(t *testing.T) {
	seq := []byte{0x71, 0xAF, 0x00, 0x00}

	cursor := 0
	idx := findSequence(seq, []byte{0x00, 0x71, 0xAF, 0x00, 0x00, 0x01}, &cursor)
	assert.Equal(t, 4, idx)

	cursor = 0
	idx = findSequence(seq, []byte{0x00, 0x71, 0xA0, 0x00, 0x00, 0x01}, &cursor)
	assert.Equal(t, -1, idx)
}

func TestFindSequenceAcrossCalls(t *testing.T) {
	seq := []byte{0x71, 0xAF, 0x00, 0x00}
	cursor := 0

	idx := findSequence(seq, []byte{0xAB, 0x71, 0xAF}, &cursor)
	assert.Equal(t, -1, idx)
	assert.Equal(t, 2, cursor)

	idx = findSequence(seq, []byte{0x00, 0x00, 0x12}, &cursor)
	assert.Equal(t, 1, idx)
}

func TestClear(t *testing.T) {
	a := NewAssembler()
	a.frameData = []byte{1, 2, 3}
	a.skippedLines = []string{"line1", "line2"}
	a.timestamp = 1234567890.0
	a.seqOffset = 3

	a.Clear()

	assert.Empty(t, a.frameData)
	assert.Empty(t, a.skippedLines)
	assert.Zero(t, a.timestamp)
	assert.Zero(t, a.seqOffset)
}

func TestProcessLine(t *testing.T) {
	a := NewAssembler()

	// no marker: record is skipped, no frame starts
	line := "2023-10-01 12:34:56.789,1234567890abcdef"
	ready, err := a.ProcessLine(line)
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Empty(t, a.frameData)
	assert.Equal(t, []string{line}, a.skippedLines)

	// start marker mid-record seeds the buffer with the lead-in
	ready, err = a.ProcessLine("2023-10-01 12:34:56.790,ABCD71AF000001020304")
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Equal(t, []byte{0x71, 0xAF, 0, 0, 1, 2, 3, 4}, a.frameData)
	assert.Equal(t, 1696163696.790, a.timestamp)

	// interior record appends wholesale
	ready, err = a.ProcessLine("2023-10-01 12:34:56.790,1234")
	require.NoError(t, err)
	assert.False(t, ready)
	assert.Equal(t, []byte{0x71, 0xAF, 0, 0, 1, 2, 3, 4, 0x12, 0x34}, a.frameData)

	// end marker completes the frame, trailing bytes discarded
	ready, err = a.ProcessLine("2023-10-01 12:34:56.790,ABCD71A0000000000000")
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t,
		[]byte{0x71, 0xAF, 0, 0, 1, 2, 3, 4, 0x12, 0x34, 0xAB, 0xCD, 0x71, 0xA0, 0, 0},
		a.frameData)
}

func TestProcessLineMalformed(t *testing.T) {
	a := NewAssembler()
	_, err := a.ProcessLine("not a record")
	assert.Error(t, err)
	assert.Empty(t, a.frameData)
	assert.Empty(t, a.skippedLines)
}

// A start marker split across two records must assemble the same buffer as
// the marker arriving whole.
func TestStartMarkerSplitAcrossRecords(t *testing.T) {
	split := NewAssembler()
	_, err := split.ProcessLine("2024-03-01 00:00:00.000,AB71AF")
	require.NoError(t, err)
	_, err = split.ProcessLine("2024-03-01 00:00:00.100,000001020304")
	require.NoError(t, err)

	whole := NewAssembler()
	_, err = whole.ProcessLine("2024-03-01 00:00:00.000,AB71AF000001020304")
	require.NoError(t, err)

	if diff := cmp.Diff(whole.frameData, split.frameData); diff != "" {
		t.Errorf("assembled buffer mismatch (-whole +split):\n%s", diff)
	}
}

// A zero end marker split across records must still terminate the frame.
func TestZeroMarkerSplitAcrossRecords(t *testing.T) {
	a := NewAssembler()
	_, err := a.ProcessLine("2024-03-01 00:00:00.000,71AF0000")
	require.NoError(t, err)

	ready, err := a.ProcessLine("2024-03-01 00:00:00.100,A3ED79C3FFEE0000")
	require.NoError(t, err)
	assert.False(t, ready)

	ready, err = a.ProcessLine("2024-03-01 00:00:00.200,0000")
	require.NoError(t, err)
	assert.True(t, ready)
}
