package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MeKo-Tech/goscan/internal/batch"
)

// BatchResponse represents the response for a batch upload.
type BatchResponse struct {
	Success bool           `json:"success"`
	Results []DecodeResult `json:"results,omitempty"`
	Error   string         `json:"error,omitempty"`
	Summary BatchSummary   `json:"summary"`
}

// BatchSummary provides summary statistics for a batch upload.
type BatchSummary struct {
	TotalFiles      int   `json:"total_files"`
	Found           int   `json:"found"`
	NotFound        int   `json:"not_found"`
	Workers         int   `json:"workers"`
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// batchHandler decodes every file uploaded in the "files" field.
func (s *Server) batchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.parseUploadForm(w, r) {
		decodeRequestsTotal.WithLabelValues("batch", "error").Inc()
		return
	}

	opts, err := s.requestOptions(r)
	if err != nil {
		decodeRequestsTotal.WithLabelValues("batch", "error").Inc()
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeErrorResponse(w, "No files provided in batch request", http.StatusBadRequest)
		return
	}
	if len(headers) > s.batchLimit {
		s.writeErrorResponse(w, fmt.Sprintf("Batch size too large (maximum %d files)", s.batchLimit),
			http.StatusBadRequest)
		return
	}

	dir, err := os.MkdirTemp("", "goscan-batch-")
	if err != nil {
		s.writeErrorResponse(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	defer func() { _ = os.RemoveAll(dir) }()

	// Items come back in the order of paths.
	paths := make([]string, 0, len(headers))
	names := make(map[string]string, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			s.writeErrorResponse(w, "Failed to read upload", http.StatusBadRequest)
			return
		}
		path, err := saveUpload(dir, f, h)
		_ = f.Close()
		if err != nil {
			decodeRequestsTotal.WithLabelValues("batch", "error").Inc()
			if errors.Is(err, errUnsupportedUpload) {
				s.writeErrorResponse(w, err.Error(), http.StatusUnsupportedMediaType)
			} else {
				s.writeErrorResponse(w, "Failed to store upload", http.StatusInternalServerError)
			}
			return
		}
		paths = append(paths, path)
		names[path] = h.Filename
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	start := time.Now()
	res, err := batch.ProcessBatch(ctx, paths, &batch.Config{
		Decoder:   opts,
		Viewport:  s.viewport,
		MaxPixels: s.maxPixels,
		Workers:   s.batchWork,
		PoolSize:  s.poolSize,
		Logger:    s.log(),
	})
	if err != nil {
		decodeRequestsTotal.WithLabelValues("batch", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Batch decoding failed: %v", err), http.StatusInternalServerError)
		return
	}
	decodeRequestDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())

	for i := range res.Items {
		res.Items[i].File = names[res.Items[i].File]
		if res.Items[i].Found {
			decodeRequestsTotal.WithLabelValues("batch", "found").Inc()
		} else {
			decodeRequestsTotal.WithLabelValues("batch", "not_found").Inc()
		}
	}

	if format := outputFormat(r); format == "csv" || format == formatText {
		body, err := res.FormatResults(format)
		if err != nil {
			http.Error(w, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
			return
		}
		if format == "csv" {
			w.Header().Set("Content-Type", "text/csv")
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		_, _ = w.Write([]byte(strings.TrimRight(body, "\n") + "\n"))
		return
	}

	results := make([]DecodeResult, len(res.Items))
	for i, it := range res.Items {
		results[i] = DecodeResult{
			File:       it.File,
			Found:      it.Found,
			Text:       it.Text,
			Format:     it.Format,
			Points:     it.Points,
			Error:      it.Error,
			DurationMs: it.Duration.Milliseconds(),
		}
	}
	found := res.Found()
	s.writeJSON(w, http.StatusOK, BatchResponse{
		Success: true,
		Results: results,
		Summary: BatchSummary{
			TotalFiles:      len(results),
			Found:           found,
			NotFound:        len(results) - found,
			Workers:         res.WorkerCount,
			TotalDurationMs: res.Duration.Milliseconds(),
		},
	})
}
