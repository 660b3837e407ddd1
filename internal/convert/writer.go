package convert

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/banshee-data/dosimeter.report/internal/fsutil"
	"github.com/banshee-data/dosimeter.report/internal/telemetry"
	"github.com/banshee-data/dosimeter.report/internal/timeutil"
	"github.com/banshee-data/dosimeter.report/internal/tpx3"
)

// metadataHeader is the first row of every .info file.
const metadataHeader = "Frame Index\tTimestamp\tFrame Timestamp\tTemp\t" +
	"GPS J2000 X\tGPS J2000 Y\tGPS J2000 Z\t" +
	"GPS Q Scalar\tGPS Q Vector 1\tGPS Q Vector 2\tGPS Q Vector 3"

// lineEnding matches the platform convention of the tools that consume the
// output files.
func lineEnding() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// formatFloat renders a float the way the downstream parsers expect:
// shortest round-tripping decimal form, never scientific notation.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// logSet is one day's pair of output files: data_YYYY-MM-DD.clog with the
// cluster pixel lists and data_YYYY-MM-DD.info with per-frame metadata.
// Frame indices restart at 1 for each day.
type logSet struct {
	date string
	lend string

	clog  io.WriteCloser
	meta  io.WriteCloser
	clogW *bufio.Writer
	metaW *bufio.Writer

	frameIndex int
}

func openLogSet(fs fsutil.FileSystem, dir, date string) (*logSet, error) {
	clog, err := fs.Create(filepath.Join(dir, fmt.Sprintf("data_%s.clog", date)))
	if err != nil {
		return nil, err
	}
	meta, err := fs.Create(filepath.Join(dir, fmt.Sprintf("data_%s.info", date)))
	if err != nil {
		clog.Close()
		return nil, err
	}

	return &logSet{
		date:  date,
		lend:  lineEnding(),
		clog:  clog,
		meta:  meta,
		clogW: bufio.NewWriter(clog),
		metaW: bufio.NewWriter(meta),
	}, nil
}

// writeFrame appends one frame to both files.
//
// Clusterlog format, one frame block:
//
//	Frame 1 (1484036406.350515, 85.762486 s)
//	[x, y, value, value2] [x, y, value, value2]
//	[x, y, value, value2]
//	<blank line>
//
// one cluster per row, one bracket group per pixel.
func (s *logSet) writeFrame(frame *tpx3.Frame, info telemetry.MeasInfoData, gps telemetry.GPSData, acqTime float64) error {
	if _, err := fmt.Fprintf(s.clogW, "Frame %d (%s, %s s)%s",
		s.frameIndex+1, formatFloat(info.Timestamp), timeutil.FormatSeconds(acqTime), s.lend); err != nil {
		return err
	}
	for _, cluster := range frame.Clusters {
		for _, p := range cluster.Pixels {
			if _, err := fmt.Fprintf(s.clogW, "[%d, %d, %d, %d] ", p.X, p.Y, p.Value, p.Value2); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(s.clogW, s.lend); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(s.clogW, s.lend); err != nil {
		return err
	}

	if s.frameIndex == 0 {
		if _, err := io.WriteString(s.metaW, metadataHeader+s.lend); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.metaW, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s%s",
		s.frameIndex+1,
		formatFloat(info.Timestamp),
		formatFloat(frame.Timestamp),
		formatFloat(info.Temp),
		formatFloat(gps.J2000X),
		formatFloat(gps.J2000Y),
		formatFloat(gps.J2000Z),
		formatFloat(gps.QScalar),
		formatFloat(gps.QVector1),
		formatFloat(gps.QVector2),
		formatFloat(gps.QVector3),
		s.lend); err != nil {
		return err
	}

	s.frameIndex++
	return nil
}

// Close flushes and closes both files.
func (s *logSet) Close() error {
	var firstErr error
	for _, err := range []error{
		s.clogW.Flush(),
		s.metaW.Flush(),
		s.clog.Close(),
		s.meta.Close(),
	} {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
