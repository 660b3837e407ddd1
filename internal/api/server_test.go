package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/dosimeter.report/internal/db"
	"github.com/banshee-data/dosimeter.report/internal/serialmux"
	"github.com/banshee-data/dosimeter.report/internal/testutil"
	"github.com/banshee-data/dosimeter.report/internal/tpx3"
)

type testServer struct {
	*Server
	mux    *http.ServeMux
	writes *bytes.Buffer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { database.Close() })

	writes := &bytes.Buffer{}
	port := serialmux.NewTestableSerialPort(nil, time.Hour, writes)
	mux := serialmux.NewSerialMux[*serialmux.TestableSerialPort](port)
	t.Cleanup(func() { mux.Close() })

	srv := NewServer(mux, database)
	return &testServer{Server: srv, mux: srv.ServeMux(), writes: writes}
}

// recordTestFrame stores a frame with a two-pixel cluster and a single-pixel
// cluster, returning its ID.
func (ts *testServer) recordTestFrame(t *testing.T, captured float64) string {
	t.Helper()
	frame := &tpx3.Frame{
		ITOT:      make([]uint16, tpx3.MatrixCells),
		Event:     make([]uint16, tpx3.MatrixCells),
		Timestamp: captured,
	}
	for _, hit := range []struct {
		x, y int
		itot uint16
	}{
		{10, 10, 100},
		{11, 10, 200},
		{100, 200, 300},
	} {
		frame.ITOT[hit.y*tpx3.MatrixWidth+hit.x] = hit.itot
	}
	tpx3.ClusterizeFrame(frame)

	id, err := ts.db.RecordFrame(context.Background(), frame, 1)
	testutil.AssertNoError(t, err)
	return id
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	rec := testutil.NewTestRecorder()
	ts.mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, path))
	return rec.Result()
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	testutil.AssertNoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestListFramesEmpty(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.get(t, "/api/frames")
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)

	var frames []db.FrameRecord
	decodeJSON(t, resp, &frames)
	if len(frames) != 0 {
		t.Errorf("got %d frames, want 0", len(frames))
	}
}

func TestListFrames(t *testing.T) {
	srv := newTestServer(t)
	srv.recordTestFrame(t, 100)
	id := srv.recordTestFrame(t, 200)

	resp := srv.get(t, "/api/frames")
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)

	var frames []db.FrameRecord
	decodeJSON(t, resp, &frames)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].ID != id {
		t.Errorf("newest frame first: got %s, want %s", frames[0].ID, id)
	}
	if frames[0].HitPixels != 3 || frames[0].ClusterCount != 2 {
		t.Errorf("frame counts = %d hits / %d clusters, want 3 / 2",
			frames[0].HitPixels, frames[0].ClusterCount)
	}
}

func TestListFramesLimit(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		srv.recordTestFrame(t, float64(i))
	}

	resp := srv.get(t, "/api/frames?limit=2")
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)

	var frames []db.FrameRecord
	decodeJSON(t, resp, &frames)
	if len(frames) != 2 {
		t.Errorf("got %d frames, want 2", len(frames))
	}

	resp = srv.get(t, "/api/frames?limit=bogus")
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusBadRequest)

	resp = srv.get(t, "/api/frames?limit=0")
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusBadRequest)
}

func TestShowFrame(t *testing.T) {
	srv := newTestServer(t)
	id := srv.recordTestFrame(t, 1709251316.419)

	resp := srv.get(t, "/api/frames/"+id)
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)

	var frame db.FrameRecord
	decodeJSON(t, resp, &frame)
	if frame.ID != id {
		t.Errorf("frame ID = %s, want %s", frame.ID, id)
	}
	if frame.CapturedAt != 1709251316.419 {
		t.Errorf("captured at = %v, want 1709251316.419", frame.CapturedAt)
	}

	resp = srv.get(t, "/api/frames/no-such-frame")
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusNotFound)
}

func TestListClusters(t *testing.T) {
	srv := newTestServer(t)
	id := srv.recordTestFrame(t, 1709251316.419)

	resp := srv.get(t, "/api/frames/"+id+"/clusters")
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)

	var clusters []db.ClusterRecord
	decodeJSON(t, resp, &clusters)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	if clusters[0].Size != 2 {
		t.Errorf("first cluster size = %d, want 2", clusters[0].Size)
	}
	if len(clusters[0].Pixels) != 2 {
		t.Errorf("first cluster has %d pixels, want 2", len(clusters[0].Pixels))
	}

	resp = srv.get(t, "/api/frames/no-such-frame/clusters")
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusNotFound)
}

func TestShowStatus(t *testing.T) {
	srv := newTestServer(t)
	srv.recordTestFrame(t, 300)

	resp := srv.get(t, "/api/status")
	testutil.AssertStatusCode(t, resp.StatusCode, http.StatusOK)

	var status statusResponse
	decodeJSON(t, resp, &status)
	if status.Version == "" {
		t.Error("expected a version string")
	}
	if status.FrameCount != 1 {
		t.Errorf("frame count = %d, want 1", status.FrameCount)
	}
	if status.ClusterCount != 2 {
		t.Errorf("cluster count = %d, want 2", status.ClusterCount)
	}
	if status.LastCapture != 300 {
		t.Errorf("last capture = %v, want 300", status.LastCapture)
	}
}

func TestSendCommand(t *testing.T) {
	srv := newTestServer(t)

	form := url.Values{"command": {"R1"}}
	req := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := testutil.NewTestRecorder()
	srv.mux.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	if got := srv.writes.String(); got != "R1\n" {
		t.Errorf("port saw %q, want %q", got, "R1\n")
	}
}

func TestSendCommandMissing(t *testing.T) {
	srv := newTestServer(t)

	req := testutil.NewTestRequest(http.MethodPost, "/api/command")
	rec := testutil.NewTestRecorder()
	srv.mux.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}
