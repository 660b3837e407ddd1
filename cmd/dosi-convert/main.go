// Command dosi-convert runs the offline conversion of a recorded measurement
// session: the detector packet log plus the GPS and measurement-info exports
// become per-day clusterlog and metadata files.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/dosimeter.report/internal/config"
	"github.com/banshee-data/dosimeter.report/internal/convert"
	"github.com/banshee-data/dosimeter.report/internal/fsutil"
	"github.com/banshee-data/dosimeter.report/internal/version"
)

var (
	dataPath    = flag.String("data", "", "Detector packet log (required)")
	gpsPath     = flag.String("gps", "", "GPS/attitude export (required)")
	measPath    = flag.String("meas", "", "Measurement-info log (required)")
	outDir      = flag.String("out", "out", "Output directory for clusterlog and metadata files")
	maxPixCount = flag.Int("max-pix-count", 0, "Acquisition abort threshold (overrides tuning config)")
	tuningPath  = flag.String("tuning", "", "Path to a tuning config JSON file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func mustOpen(path string) *os.File {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open %s: %v", path, err)
	}
	return f
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("dosi-convert %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *dataPath == "" || *gpsPath == "" || *measPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	pixCount := *maxPixCount
	if pixCount <= 0 {
		cfg := config.MustLoadDefaultConfig()
		if *tuningPath != "" {
			var err error
			cfg, err = config.LoadTuningConfig(*tuningPath)
			if err != nil {
				log.Fatalf("failed to load tuning config: %v", err)
			}
		}
		pixCount = cfg.GetMaxPixCount()
	}

	data := mustOpen(*dataPath)
	defer data.Close()
	gps := mustOpen(*gpsPath)
	defer gps.Close()
	meas := mustOpen(*measPath)
	defer meas.Close()

	proc := convert.NewProcessor(fsutil.OSFileSystem{}, pixCount)
	if err := proc.Run(data, gps, meas, *outDir); err != nil {
		log.Fatalf("conversion failed: %v", err)
	}

	fmt.Println("Done.")
}
