// Package convert turns a recorded measurement session into the clusterlog
// and metadata files used by the analysis pipeline. It joins three captured
// streams: the detector packet log, the GPS/attitude export and the
// measurement-info log. Frames are decoded from the packet log and each one
// is annotated with the telemetry rows closest to it in time.
package convert

import (
	"errors"
	"io"
	"math"
	"time"

	"github.com/banshee-data/dosimeter.report/internal/fsutil"
	"github.com/banshee-data/dosimeter.report/internal/monitoring"
	"github.com/banshee-data/dosimeter.report/internal/telemetry"
	"github.com/banshee-data/dosimeter.report/internal/timeutil"
	"github.com/banshee-data/dosimeter.report/internal/tpx3"
)

// Acquisition-time fit points: the short and long pixel counters are
// sampled at these acquisition lengths (seconds).
const (
	acqTimeShort = 0.1
	acqTimeLong  = 1.0

	// maxAcqTime caps the extrapolated acquisition time.
	maxAcqTime = 25.0
)

// Processor drives one conversion run. It keeps the last telemetry row seen
// on each side channel so consecutive frames can share the nearest-row
// search without rereading the streams.
type Processor struct {
	fs          fsutil.FileSystem
	maxPixCount int

	lastGPS  telemetry.GPSData
	lastInfo telemetry.MeasInfoData
}

// NewProcessor returns a Processor writing through fs. maxPixCount is the
// acquisition abort threshold of the detector configuration; it feeds the
// acquisition-time estimate.
func NewProcessor(fs fsutil.FileSystem, maxPixCount int) *Processor {
	return &Processor{fs: fs, maxPixCount: maxPixCount}
}

// nextClosestGPS advances the GPS stream until it passes timestamp and
// returns whichever of the bracketing rows is closer. Rows are assumed
// time-ordered. When the stream runs out the last buffered row is served
// once; after that the exhaustion propagates.
func (p *Processor) nextClosestGPS(r *telemetry.GPSReader, timestamp float64) (telemetry.GPSData, error) {
	for {
		last := p.lastGPS

		data, err := r.Next()
		if err != nil {
			if errors.Is(err, telemetry.ErrNoMoreData) && last.Timestamp > 0 {
				p.lastGPS.Timestamp = 0
				return last, nil
			}
			return telemetry.GPSData{}, err
		}
		p.lastGPS = data

		if data.Timestamp < timestamp {
			continue
		}
		if math.Abs(last.Timestamp-timestamp) < math.Abs(data.Timestamp-timestamp) {
			return last, nil
		}
		return data, nil
	}
}

// nextClosestInfo is nextClosestGPS for the measurement-info stream.
func (p *Processor) nextClosestInfo(r *telemetry.MeasInfoReader, timestamp float64) (telemetry.MeasInfoData, error) {
	for {
		last := p.lastInfo

		data, err := r.Next()
		if err != nil {
			if errors.Is(err, telemetry.ErrNoMoreData) && last.Timestamp > 0 {
				p.lastInfo.Timestamp = 0
				return last, nil
			}
			return telemetry.MeasInfoData{}, err
		}
		p.lastInfo = data

		if data.Timestamp < timestamp {
			continue
		}
		if math.Abs(last.Timestamp-timestamp) < math.Abs(data.Timestamp-timestamp) {
			return last, nil
		}
		return data, nil
	}
}

// acqTime estimates the frame's acquisition length from the short/long
// pixel counters: a line through (0.1 s, short) and (1 s, long) is
// extrapolated to the abort threshold and capped at maxAcqTime.
func acqTime(info telemetry.MeasInfoData, maxPixCount int) float64 {
	a := (info.PixelLong - info.PixelShort) / (acqTimeLong - acqTimeShort)
	b := info.PixelLong - a*acqTimeLong

	if a == 0 {
		return 0
	}
	t := (float64(maxPixCount) - b) / a
	if t > maxAcqTime {
		return maxAcqTime
	}
	return t
}

// Run converts one session. Frames are read from data, correlated against
// the gps and meas streams, and appended to per-day clusterlog/metadata
// file pairs under outDir. Run returns nil when any of the streams is
// cleanly exhausted.
func (p *Processor) Run(data, gps, meas io.Reader, outDir string) error {
	if err := p.fs.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	frames := tpx3.NewFrameReader(data)
	gpsReader := telemetry.NewGPSReader(gps)
	infoReader := telemetry.NewMeasInfoReader(meas)

	var out *logSet
	defer func() {
		if out != nil {
			out.Close()
		}
	}()

	processed := 0
	for {
		frame, err := frames.Next()
		if errors.Is(err, tpx3.ErrNoMoreData) {
			break
		}
		if err != nil {
			return err
		}

		gpsData, err := p.nextClosestGPS(gpsReader, frame.Timestamp)
		if errors.Is(err, telemetry.ErrNoMoreData) {
			break
		}
		if err != nil {
			return err
		}

		infoData, err := p.nextClosestInfo(infoReader, frame.Timestamp)
		if errors.Is(err, telemetry.ErrNoMoreData) {
			break
		}
		if err != nil {
			return err
		}

		infoTime := time.Unix(int64(infoData.Timestamp), 0).UTC()
		date := infoTime.Format("2006-01-02")
		estimate := acqTime(infoData, p.maxPixCount)

		if out == nil || out.date != date {
			if out != nil {
				if err := out.Close(); err != nil {
					return err
				}
			}
			out, err = openLogSet(p.fs, outDir, date)
			if err != nil {
				return err
			}
		}

		if err := out.writeFrame(frame, infoData, gpsData, estimate); err != nil {
			return err
		}

		processed++
		monitoring.Logf("processing frame %d (%s, %s s)",
			processed, infoTime.Format("2006-01-02 15:04:05")+" UTC", timeutil.FormatSeconds(estimate))
	}

	if out != nil {
		err := out.Close()
		out = nil
		return err
	}
	return nil
}
