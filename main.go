package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/dosimeter.report/internal/api"
	"github.com/banshee-data/dosimeter.report/internal/config"
	"github.com/banshee-data/dosimeter.report/internal/db"
	"github.com/banshee-data/dosimeter.report/internal/serialmux"
	"github.com/banshee-data/dosimeter.report/internal/tpx3"
	"github.com/banshee-data/dosimeter.report/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run in dev mode (replay fixtures instead of opening a serial port)")
	listen      = flag.String("listen", ":8080", "Listen address")
	dbFile      = flag.String("db", "dosimeter_data.db", "Path to the SQLite database")
	serialPort  = flag.String("port", "/dev/ttySC1", "Serial port device of the readout board")
	fixtures    = flag.String("fixtures", "fixtures.txt", "Record fixtures replayed in dev mode")
	tuningPath  = flag.String("tuning", "", "Path to a tuning config JSON file (defaults baked in if unset)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// handleRecord feeds one serial record into the frame assembler and persists
// any frame it completes.
func handleRecord(ctx context.Context, asm *tpx3.Assembler, database *db.DB, cfg *config.TuningConfig, line string) error {
	ready, err := asm.ProcessLine(line)
	if err != nil {
		return fmt.Errorf("failed to process record: %w", err)
	}
	if !ready {
		return nil
	}

	frame := asm.ExtractFrame()
	tpx3.ClusterizeFrame(frame)
	asm.Clear()

	minSize := cfg.GetMinClusterSize()
	if !cfg.GetPersistClusters() {
		// a threshold larger than the matrix keeps cluster rows out entirely
		minSize = tpx3.MatrixCells + 1
	}

	id, err := database.RecordFrame(ctx, frame, minSize)
	if err != nil {
		return fmt.Errorf("failed to record frame: %w", err)
	}
	log.Printf("recorded frame %s: %d clusters at %.3f", id, len(frame.Clusters), frame.Timestamp)
	return nil
}

func loadTuning() *config.TuningConfig {
	if *tuningPath == "" {
		return config.MustLoadDefaultConfig()
	}
	cfg, err := config.LoadTuningConfig(*tuningPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}
	return cfg
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("dosimeter.report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := loadTuning()

	var m serialmux.SerialMuxInterface
	if *devMode {
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		m = serialmux.NewMockSerialMux(data, time.Second)
	} else {
		var err error
		m, err = serialmux.NewRealSerialMux(*serialPort, serialmux.PortOptions{
			BaudRate:    cfg.GetBaudRate(),
			ReadTimeout: cfg.GetReadTimeout(),
		})
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
		if err := m.Initialize(); err != nil {
			log.Fatalf("failed to initialize readout board: %v", err)
		}
	}
	defer m.Close()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Create a wait group for the HTTP server, serial monitor, and frame
	// handler routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the serial port records and feed them to the frame
	// assembler
	wg.Add(1)
	go func() {
		defer wg.Done()
		asm := tpx3.NewAssembler()
		id, c := m.Subscribe()
		defer m.Unsubscribe(id)
		for {
			select {
			case line := <-c:
				if err := handleRecord(ctx, asm, database, cfg, line); err != nil {
					log.Printf("error handling record: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	// retention routine: prune frames older than the configured horizon
	wg.Add(1)
	go func() {
		defer wg.Done()
		if cfg.GetRetainDays() <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.GetFlushInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cutoff := float64(time.Now().Add(-time.Duration(cfg.GetRetainDays()) * 24 * time.Hour).Unix())
				n, err := database.PruneFramesBefore(ctx, cutoff)
				if err != nil {
					log.Printf("failed to prune frames: %v", err)
				} else if n > 0 {
					log.Printf("pruned %d frames older than %d days", n, cfg.GetRetainDays())
				}
			case <-ctx.Done():
				log.Printf("retention routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(api.NewServer(m, database).ServeMux()),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
