package tpx3

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrNoMoreData is returned when the record stream is exhausted before a
// frame completes. It is the normal end-of-stream condition, not a fault.
var ErrNoMoreData = errors.New("no more data available")

// FrameReader pulls complete, clusterized frames out of a record stream.
type FrameReader struct {
	scan *bufio.Scanner
	asm  *Assembler
}

// NewFrameReader wraps a record stream. Lines longer than the default
// scanner limit occur routinely (a record can carry a whole transport
// chunk), so the buffer is widened up front.
func NewFrameReader(r io.Reader) *FrameReader {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &FrameReader{
		scan: scan,
		asm:  NewAssembler(),
	}
}

// Assembler exposes the underlying assembler for diagnostics (skipped-line
// counts).
func (fr *FrameReader) Assembler() *Assembler {
	return fr.asm
}

// Next returns the next decoded and clusterized frame. A header line
// beginning with "TIMESTAMP" is skipped. Malformed records propagate as
// errors; the caller decides whether to abort or resume. At end of input
// Next returns ErrNoMoreData.
func (fr *FrameReader) Next() (*Frame, error) {
	for fr.scan.Scan() {
		line := strings.TrimSpace(fr.scan.Text())
		if strings.HasPrefix(line, "TIMESTAMP") {
			continue
		}

		ready, err := fr.asm.ProcessLine(line)
		if err != nil {
			return nil, err
		}
		if ready {
			frame := fr.asm.ExtractFrame()
			ClusterizeFrame(frame)
			fr.asm.Clear()
			return frame, nil
		}
	}
	if err := fr.scan.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNoMoreData
}
