// Package telemetry parses the spacecraft side channels that accompany the
// detector stream: the GPS/attitude export and the measurement-info log.
// Both are timestamped CSV streams read record by record; the converter
// correlates them with decoded frames by nearest timestamp.
package telemetry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/dosimeter.report/internal/timeutil"
)

// ErrNoMoreData is returned by the telemetry readers at end of stream.
var ErrNoMoreData = errors.New("no more data available")

// GPSData is one row of the GPS/attitude export: ECI J2000 position in
// metres plus the estimated body-to-J2000 attitude quaternion.
type GPSData struct {
	Timestamp float64
	J2000X    float64
	J2000Y    float64
	J2000Z    float64
	QScalar   float64
	QVector1  float64
	QVector2  float64
	QVector3  float64
}

// GPSReader reads GPS rows from a CSV export one at a time.
type GPSReader struct {
	scan *bufio.Scanner
}

func NewGPSReader(r io.Reader) *GPSReader {
	return &GPSReader{scan: bufio.NewScanner(r)}
}

// parseGPSLine parses one data row. The export writes numbers in
// scientific notation; a field that fails to parse reads as zero, matching
// the ground software this stream was built for.
func parseGPSLine(line string) (GPSData, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 8 {
		return GPSData{}, fmt.Errorf("invalid gps row: want 8 fields, got %d", len(parts))
	}

	ts, err := timeutil.ParseTimestamp(parts[0])
	if err != nil {
		return GPSData{}, fmt.Errorf("invalid gps row: %w", err)
	}

	num := func(s string) float64 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return v
	}

	return GPSData{
		Timestamp: ts,
		J2000X:    num(parts[1]),
		J2000Y:    num(parts[2]),
		J2000Z:    num(parts[3]),
		QScalar:   num(parts[4]),
		QVector1:  num(parts[5]),
		QVector2:  num(parts[6]),
		QVector3:  num(parts[7]),
	}, nil
}

// Next returns the next GPS row. Header and comment lines (anything not
// starting with a "20" year prefix) are skipped. At end of input Next
// returns ErrNoMoreData.
func (g *GPSReader) Next() (GPSData, error) {
	for g.scan.Scan() {
		line := strings.TrimSpace(g.scan.Text())
		if !strings.HasPrefix(line, "20") {
			continue
		}
		row, err := parseGPSLine(line)
		if err != nil {
			return GPSData{}, fmt.Errorf("cannot parse gps %q: %w", line, err)
		}
		return row, nil
	}
	if err := g.scan.Err(); err != nil {
		return GPSData{}, err
	}
	return GPSData{}, ErrNoMoreData
}
