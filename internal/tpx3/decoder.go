package tpx3

import (
	"fmt"
	"strings"

	"github.com/banshee-data/dosimeter.report/internal/monitoring"
)

// Pixel packet framing constants. Every pixel packet is 6 bytes: a tag byte
// whose high nibble is 0xA, four payload bytes, and the 0xEE trailer.
const (
	pixelPacketSize  = 6
	pixelPacketTag   = 0xA0
	pixelPacketTrail = 0xEE

	// Extra headers carry housekeeping, not pixel data: byte0 0x14 with a
	// 0x02 terminator at byte5, 8 bytes total.
	extraHeaderTag   = 0x14
	extraHeaderTrail = 0x02
	extraHeaderSize  = 8
)

// parsePixelPacket decodes one 6-byte pixel packet into the linear matrix
// index and the two calibrated values.
//
// Bit layout (MSB first across the 6 bytes):
//
//	addr[15:12]=b0[3:0]  addr[11:4]=b1  addr[3:0]=b2[7:4]
//	toa[13:10]=b2[3:0]   toa[9:2]=b3    toa[1:0]=b4[7:6]
//	event[9:4]=b4[5:0]   event[3:0]=b5[7:4]
//
// The address splits into end-of-column (top 7 bits), super-pixel (next 6)
// and sub-pixel (bottom 3), from which the matrix coordinates derive.
func parsePixelPacket(data []byte) (idx, itot, event uint16) {
	address := (uint16(data[0])&0x0F)<<12 |
		uint16(data[1])<<4 |
		(uint16(data[2])>>4)&0x0F
	toa := (uint16(data[2])&0x0F)<<10 |
		uint16(data[3])<<2 |
		(uint16(data[4])>>6)&0x03
	rawEvent := (uint16(data[4])&0x3F)<<4 | (uint16(data[5])>>4)&0x0F

	eoc := (address >> 9) & 0x7F
	sp := (address >> 3) & 0x3F
	pix := address & 0x07
	x := eoc*2 + pix/4
	y := sp*4 + pix%4
	idx = y*MatrixWidth + x

	return idx, calibrateITOT(toa), calibrateTOT(rawEvent)
}

// hexBytes renders a byte run for bad-data diagnostics.
func hexBytes(buf []byte) string {
	var sb strings.Builder
	for _, b := range buf {
		fmt.Fprintf(&sb, "%02X ", b)
	}
	return strings.TrimSpace(sb.String())
}

// ExtractFrame decodes the assembled buffer into a Frame. It never fails:
// byte runs that match neither a known header nor a valid pixel packet are
// reported through monitoring.Logf with their buffer offset and skipped.
// Duplicate packets for the same cell resolve last-write-wins. The returned
// frame has an empty cluster list; see ClusterizeFrame.
func (a *Assembler) ExtractFrame() *Frame {
	itot := make([]uint16, MatrixCells)
	event := make([]uint16, MatrixCells)

	var badData []byte
	badDataOffset := 0

	offset := 0
	for offset < len(a.frameData) {
		if len(a.frameData)-offset < pixelPacketSize {
			// trailing partial packet
			break
		}

		if a.frameData[offset] == frameStartMarker[0] && a.frameData[offset+1] == frameStartMarker[1] {
			// start marker lead-in or header repeat
			offset += pixelPacketSize
			continue
		}

		if a.frameData[offset] == frameEndMarker[0] && a.frameData[offset+1] == frameEndMarker[1] {
			// end of readout
			break
		}

		if a.frameData[offset] == extraHeaderTag && a.frameData[offset+5] == extraHeaderTrail {
			offset += extraHeaderSize
			continue
		}

		for offset+pixelPacketSize < len(a.frameData) &&
			a.frameData[offset]&0xF0 != pixelPacketTag &&
			a.frameData[offset+5] != pixelPacketTrail {
			if len(badData) == 0 {
				badDataOffset = offset
			}
			badData = append(badData, a.frameData[offset])
			offset++
		}

		if len(badData) > 0 {
			monitoring.Logf("unexpected data [%d]: %s", badDataOffset, hexBytes(badData))
			badData = badData[:0]
			badDataOffset = 0
			continue
		}

		idx, pixITOT, pixEvent := parsePixelPacket(a.frameData[offset : offset+pixelPacketSize])
		itot[idx] = pixITOT
		event[idx] = pixEvent

		offset += pixelPacketSize
	}

	return &Frame{
		ITOT:      itot,
		Event:     event,
		Clusters:  nil,
		Timestamp: a.timestamp,
	}
}

// ClusterizeFrame populates frame.Clusters from the iToT grid and fills each
// pixel's secondary value from the event grid. The frame is immutable
// afterwards.
func ClusterizeFrame(frame *Frame) {
	frame.Clusters = SearchFrame(frame.ITOT, MatrixWidth, MatrixHeight)
	for ci := range frame.Clusters {
		pixels := frame.Clusters[ci].Pixels
		for pi := range pixels {
			idx := int(pixels[pi].Y)*MatrixWidth + int(pixels[pi].X)
			pixels[pi].Value2 = frame.Event[idx]
		}
	}
}
