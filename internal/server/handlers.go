package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/goscan/internal/frame"
	"github.com/MeKo-Tech/goscan/internal/version"
)

// errUnsupportedUpload rejects uploads whose extension the loader cannot read.
var errUnsupportedUpload = errors.New("unsupported file type")

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.cameras != nil {
		response.Sessions = s.cameras.count()
	}
	s.writeJSON(w, http.StatusOK, response)
}

// sessionsHandler lists connected websocket cameras.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var list []SessionInfo
	if s.cameras != nil {
		list = s.cameras.list()
	}
	if list == nil {
		list = []SessionInfo{}
	}
	s.writeJSON(w, http.StatusOK, SessionsResponse{Sessions: list, Count: len(list)})
}

// saveUpload copies an uploaded part into dir, keeping its extension so the
// loader can pick the right decoder.
func saveUpload(dir string, file multipart.File, header *multipart.FileHeader) (string, error) {
	name := filepath.Base(header.Filename)
	if !frame.IsSupported(name) {
		return "", fmt.Errorf("%w: %q", errUnsupportedUpload, header.Filename)
	}
	out, err := os.CreateTemp(dir, "upload-*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return "", err
	}
	defer func() { _ = out.Close() }()

	n, err := io.Copy(out, file)
	if err != nil {
		return "", err
	}
	uploadSizeBytes.Observe(float64(n))
	return out.Name(), nil
}

// parseUploadForm applies the upload limit and parses the multipart body.
func (s *Server) parseUploadForm(w http.ResponseWriter, r *http.Request) bool {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log().Error("Error encoding response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, DecodeResponse{Success: false, Error: message})
}
