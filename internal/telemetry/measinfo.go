package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/dosimeter.report/internal/timeutil"
)

// MeasInfoData is one row of the measurement-info log: detector temperature,
// per-acquisition pixel counters and the raw error field. The error field
// may itself contain commas (a quoted byte list), so it is kept verbatim.
type MeasInfoData struct {
	Timestamp     float64
	Temp          float64
	PixelShort    float64
	PixelLong     float64
	PixelSaved    float64
	PixelNotSaved float64
	ErrorID       string
}

// MeasInfoReader reads measurement-info rows one at a time.
type MeasInfoReader struct {
	scan *bufio.Scanner
}

func NewMeasInfoReader(r io.Reader) *MeasInfoReader {
	return &MeasInfoReader{scan: bufio.NewScanner(r)}
}

// parseMeasInfoLine parses one data row. The row is split into at most 7
// fields so that commas inside the trailing error field survive.
func parseMeasInfoLine(line string) (MeasInfoData, error) {
	parts := strings.SplitN(strings.TrimSpace(line), ",", 7)
	if len(parts) != 7 {
		return MeasInfoData{}, fmt.Errorf("invalid info row: want 7 fields, got %d", len(parts))
	}

	ts, err := timeutil.ParseTimestamp(parts[0])
	if err != nil {
		return MeasInfoData{}, fmt.Errorf("invalid info row: %w", err)
	}

	counters := make([]float64, 5)
	for i := 0; i < 5; i++ {
		n, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return MeasInfoData{}, fmt.Errorf("invalid info row field %d: %w", i+1, err)
		}
		counters[i] = float64(n)
	}

	return MeasInfoData{
		Timestamp:     ts,
		Temp:          counters[0],
		PixelShort:    counters[1],
		PixelLong:     counters[2],
		PixelSaved:    counters[3],
		PixelNotSaved: counters[4],
		ErrorID:       parts[6],
	}, nil
}

// Next returns the next measurement-info row, skipping the TIMESTAMP header.
// At end of input Next returns ErrNoMoreData.
func (m *MeasInfoReader) Next() (MeasInfoData, error) {
	for m.scan.Scan() {
		line := strings.TrimSpace(m.scan.Text())
		if strings.HasPrefix(line, "TIMESTAMP") {
			continue
		}
		row, err := parseMeasInfoLine(line)
		if err != nil {
			return MeasInfoData{}, err
		}
		return row, nil
	}
	if err := m.scan.Err(); err != nil {
		return MeasInfoData{}, err
	}
	return MeasInfoData{}, ErrNoMoreData
}
