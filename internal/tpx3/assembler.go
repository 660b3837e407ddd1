// Package tpx3 decodes the Timepix3 dosimeter byte stream into measurement
// frames and groups each frame's hit pixels into connected clusters.
//
// The instrument emits timestamped records of hex-encoded transport chunks.
// Chunk boundaries carry no meaning: frame sync markers may straddle two
// records, so the assembler keeps a resumable partial-match cursor across
// ProcessLine calls. A completed frame is decoded in 6-byte pixel-packet
// strides into two 256x256 calibrated grids (iToT and event), and the iToT
// grid drives 8-connected clustering.
package tpx3

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/banshee-data/dosimeter.report/internal/timeutil"
)

// Sensor matrix geometry. The Timepix3 matrix is fixed at 256x256.
const (
	MatrixWidth  = 256
	MatrixHeight = 256
	MatrixCells  = MatrixWidth * MatrixHeight
)

// Frame sync markers in the readout stream.
var (
	frameStartMarker = []byte{0x71, 0xAF, 0x00, 0x00}
	frameEndMarker   = []byte{0x71, 0xA0, 0x00, 0x00}
	frameZeroMarker  = []byte{0x00, 0x00, 0x00, 0x00}

	// startLeadIn re-seeds the assembly buffer when a start marker is found.
	// The scan reports the position of the final marker byte, so the first
	// three marker bytes are restored synthetically.
	startLeadIn = []byte{0x71, 0xAF, 0x00}
)

// Frame is one full sensor readout: two parallel calibrated grids indexed by
// linear pixel index (y*256 + x), the timestamp of the record that carried
// the start marker, and the clusters found on the iToT grid.
type Frame struct {
	ITOT      []uint16
	Event     []uint16
	Clusters  []Cluster
	Timestamp float64
}

// Assembler accumulates transport records into one frame's worth of raw
// bytes. It owns the in-progress assembly buffer, the marker partial-match
// cursor, and the diagnostic list of records seen before sync was acquired.
// One Assembler handles one stream; it is not safe for concurrent use.
type Assembler struct {
	frameData    []byte
	skippedLines []string
	timestamp    float64
	seqOffset    int
}

// NewAssembler returns an Assembler with no frame in progress.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// SkippedLines returns the records discarded while searching for the start
// marker of the current frame.
func (a *Assembler) SkippedLines() []string {
	return a.skippedLines
}

// FrameInProgress reports whether a start marker has been seen and bytes are
// being accumulated.
func (a *Assembler) FrameInProgress() bool {
	return len(a.frameData) > 0
}

// Clear resets all per-frame state. Call after ExtractFrame.
func (a *Assembler) Clear() {
	a.frameData = a.frameData[:0]
	a.skippedLines = a.skippedLines[:0]
	a.timestamp = 0
	a.seqOffset = 0
}

// parseRecord splits a "timestamp,hexpayload" record into UTC seconds and
// decoded payload bytes.
func parseRecord(line string) (float64, []byte, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 2 {
		return 0, nil, fmt.Errorf("invalid record format: want 2 fields, got %d", len(parts))
	}

	ts, err := timeutil.ParseTimestamp(parts[0])
	if err != nil {
		return 0, nil, fmt.Errorf("invalid record timestamp: %w", err)
	}

	payload, err := hex.DecodeString(parts[1])
	if err != nil {
		return 0, nil, fmt.Errorf("invalid record payload: %w", err)
	}

	return ts, payload, nil
}

// findSequence scans data for seq, resuming a match already in progress via
// the cursor. It returns the index of the final matched byte within data, or
// -1 if the sequence did not complete; the cursor then carries the partial
// match into the next record.
func findSequence(seq, data []byte, cursor *int) int {
	for i := 0; i < len(data); i++ {
		if seq[*cursor] == data[i] {
			*cursor++
			if *cursor == len(seq) {
				return i
			}
		} else {
			*cursor = 0
		}
	}
	return -1
}

// ProcessLine feeds one raw record to the assembler. It returns true when an
// end marker has been appended and the buffer holds a complete frame; the
// caller must then ExtractFrame and Clear. Records that fail to parse return
// an error and leave the assembly state untouched.
func (a *Assembler) ProcessLine(line string) (bool, error) {
	ts, data, err := parseRecord(line)
	if err != nil {
		return false, err
	}

	if len(a.frameData) == 0 {
		if idx := findSequence(frameStartMarker, data, &a.seqOffset); idx >= 0 {
			a.seqOffset = 0
			a.frameData = append(a.frameData, startLeadIn...)
			a.frameData = append(a.frameData, data[idx:]...)
			a.timestamp = ts
		} else {
			a.skippedLines = append(a.skippedLines, line)
		}
		return false, nil
	}

	if idx := findSequence(frameEndMarker, data, &a.seqOffset); idx >= 0 {
		a.seqOffset = 0
		a.frameData = append(a.frameData, data[:idx+1]...)
		return true, nil
	}
	if idx := findSequence(frameZeroMarker, data, &a.seqOffset); idx >= 0 {
		a.seqOffset = 0
		a.frameData = append(a.frameData, data[:idx+1]...)
		return true, nil
	}

	a.frameData = append(a.frameData, data...)
	return false, nil
}
