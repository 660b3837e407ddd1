// Package db persists decoded frames and their clusters to SQLite.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/dosimeter.report/internal/tpx3"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the SQLite database at path and brings
// its schema up to date from the embedded migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// modernc sqlite allows one writer; serialise access instead of
	// surfacing SQLITE_BUSY to callers.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// FrameRecord is one persisted frame readout.
type FrameRecord struct {
	ID           string  `json:"id"`
	CapturedAt   float64 `json:"captured_at"`
	HitPixels    int     `json:"hit_pixels"`
	ClusterCount int     `json:"cluster_count"`
}

// ClusterRecord is one persisted cluster with its summary features and the
// raw pixel list.
type ClusterRecord struct {
	FrameID   string        `json:"frame_id"`
	Size      int           `json:"size"`
	CentroidX float64       `json:"centroid_x"`
	CentroidY float64       `json:"centroid_y"`
	MeanITOT  float64       `json:"mean_itot"`
	MaxITOT   int           `json:"max_itot"`
	TotalITOT int64         `json:"total_itot"`
	ITOTP95   float64       `json:"itot_p95"`
	Pixels    []PixelRecord `json:"pixels"`
}

// PixelRecord is one pixel of a persisted cluster.
type PixelRecord struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	ITOT  int `json:"itot"`
	Event int `json:"event"`
}

// RecordFrame stores a decoded frame and its clusters in one transaction and
// returns the assigned frame ID. Clusters smaller than minClusterSize are
// counted but not persisted.
func (db *DB) RecordFrame(ctx context.Context, frame *tpx3.Frame, minClusterSize int) (string, error) {
	id := uuid.NewString()

	hits := 0
	for _, v := range frame.ITOT {
		if v != 0 {
			hits++
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO frames (id, captured_at, hit_pixels, cluster_count) VALUES (?, ?, ?, ?)`,
		id, frame.Timestamp, hits, len(frame.Clusters),
	); err != nil {
		return "", fmt.Errorf("failed to insert frame: %w", err)
	}

	for _, cluster := range frame.Clusters {
		if len(cluster.Pixels) < minClusterSize {
			continue
		}

		features := cluster.Features()
		pixels := make([]PixelRecord, len(cluster.Pixels))
		for i, p := range cluster.Pixels {
			pixels[i] = PixelRecord{
				X:     int(p.X),
				Y:     int(p.Y),
				ITOT:  int(p.Value),
				Event: int(p.Value2),
			}
		}
		pixelJSON, err := json.Marshal(pixels)
		if err != nil {
			return "", fmt.Errorf("failed to encode cluster pixels: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO clusters (
				frame_id, size, centroid_x, centroid_y,
				mean_itot, max_itot, total_itot, itot_p95, pixels
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, features.Size, features.CentroidX, features.CentroidY,
			features.MeanITOT, int(features.MaxITOT), int64(features.TotalITOT),
			features.ITOTP95, string(pixelJSON),
		); err != nil {
			return "", fmt.Errorf("failed to insert cluster: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Frames returns the most recently captured frames, newest first.
func (db *DB) Frames(ctx context.Context, limit int) ([]FrameRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, captured_at, hit_pixels, cluster_count
		 FROM frames ORDER BY captured_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []FrameRecord
	for rows.Next() {
		var f FrameRecord
		if err := rows.Scan(&f.ID, &f.CapturedAt, &f.HitPixels, &f.ClusterCount); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// FrameByID looks up one frame. Missing IDs return sql.ErrNoRows.
func (db *DB) FrameByID(ctx context.Context, id string) (FrameRecord, error) {
	var f FrameRecord
	err := db.QueryRowContext(ctx,
		`SELECT id, captured_at, hit_pixels, cluster_count FROM frames WHERE id = ?`, id,
	).Scan(&f.ID, &f.CapturedAt, &f.HitPixels, &f.ClusterCount)
	return f, err
}

// ClustersForFrame returns the persisted clusters of one frame in insertion
// order.
func (db *DB) ClustersForFrame(ctx context.Context, frameID string) ([]ClusterRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT frame_id, size, centroid_x, centroid_y,
		        mean_itot, max_itot, total_itot, itot_p95, pixels
		 FROM clusters WHERE frame_id = ? ORDER BY id`, frameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []ClusterRecord
	for rows.Next() {
		var c ClusterRecord
		var pixelJSON string
		if err := rows.Scan(&c.FrameID, &c.Size, &c.CentroidX, &c.CentroidY,
			&c.MeanITOT, &c.MaxITOT, &c.TotalITOT, &c.ITOTP95, &pixelJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pixelJSON), &c.Pixels); err != nil {
			return nil, fmt.Errorf("failed to decode cluster pixels: %w", err)
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// PruneFramesBefore deletes frames captured before cutoff (UTC seconds) and
// their clusters. It returns the number of frames removed.
func (db *DB) PruneFramesBefore(ctx context.Context, cutoff float64) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM clusters WHERE frame_id IN (SELECT id FROM frames WHERE captured_at < ?)`,
		cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE captured_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// Stats summarises the stored data for the status endpoint.
type Stats struct {
	FrameCount   int64   `json:"frame_count"`
	ClusterCount int64   `json:"cluster_count"`
	LastCapture  float64 `json:"last_capture"`
}

// GetStats returns storage counters. LastCapture is 0 when no frames are
// stored.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM frames),
			(SELECT COUNT(*) FROM clusters),
			(SELECT COALESCE(MAX(captured_at), 0) FROM frames)
	`).Scan(&s.FrameCount, &s.ClusterCount, &s.LastCapture)
	return s, err
}
