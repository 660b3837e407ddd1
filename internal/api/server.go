package api

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/dosimeter.report/internal/db"
	"github.com/banshee-data/dosimeter.report/internal/httputil"
	"github.com/banshee-data/dosimeter.report/internal/monitoring"
	"github.com/banshee-data/dosimeter.report/internal/serialmux"
	"github.com/banshee-data/dosimeter.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const defaultFrameLimit = 50

type Server struct {
	m  serialmux.SerialMuxInterface
	db *db.DB
}

func NewServer(m serialmux.SerialMuxInterface, db *db.DB) *Server {
	return &Server{
		m:  m,
		db: db,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/frames", s.listFrames)
	mux.HandleFunc("GET /api/frames/{id}", s.showFrame)
	mux.HandleFunc("GET /api/frames/{id}/clusters", s.listClusters)
	mux.HandleFunc("GET /api/status", s.showStatus)
	mux.HandleFunc("POST /api/command", s.sendCommandHandler)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	command := r.FormValue("command")
	if command == "" {
		httputil.BadRequest(w, "missing 'command' parameter")
		return
	}

	if err := s.m.SendCommand(command); err != nil {
		httputil.InternalServerError(w, "failed to send command")
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) listFrames(w http.ResponseWriter, r *http.Request) {
	limit := defaultFrameLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	frames, err := s.db.Frames(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve frames: %v", err))
		return
	}
	if frames == nil {
		frames = []db.FrameRecord{}
	}

	httputil.WriteJSONOK(w, frames)
}

func (s *Server) showFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := s.db.FrameByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		httputil.NotFound(w, "frame not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve frame: %v", err))
		return
	}

	httputil.WriteJSONOK(w, frame)
}

func (s *Server) listClusters(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.db.FrameByID(r.Context(), id); errors.Is(err, sql.ErrNoRows) {
		httputil.NotFound(w, "frame not found")
		return
	} else if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve frame: %v", err))
		return
	}

	clusters, err := s.db.ClustersForFrame(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve clusters: %v", err))
		return
	}
	if clusters == nil {
		clusters = []db.ClusterRecord{}
	}

	httputil.WriteJSONOK(w, clusters)
}

type statusResponse struct {
	Version      string  `json:"version"`
	GitSHA       string  `json:"git_sha"`
	FrameCount   int64   `json:"frame_count"`
	ClusterCount int64   `json:"cluster_count"`
	LastCapture  float64 `json:"last_capture"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve stats: %v", err))
		return
	}

	httputil.WriteJSONOK(w, statusResponse{
		Version:      version.Version,
		GitSHA:       version.GitSHA,
		FrameCount:   stats.FrameCount,
		ClusterCount: stats.ClusterCount,
		LastCapture:  stats.LastCapture,
	})
}
