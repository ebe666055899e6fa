package server

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/goscan/internal/barcode"
	"github.com/MeKo-Tech/goscan/internal/session"
)

const formatText = "text"

// fileOutcome collects one session's listener calls. A nil result is a miss.
type fileOutcome chan *barcode.Result

func (o fileOutcome) ScanSuccess(string) {}

func (o fileOutcome) ScanResult(res *barcode.Result) { o <- res }

func (o fileOutcome) DecodeFailure() { o <- nil }

// decodeHandler decodes one uploaded image or PDF.
func (s *Server) decodeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.parseUploadForm(w, r) {
		decodeRequestsTotal.WithLabelValues("upload", "error").Inc()
		return
	}

	opts, err := s.requestOptions(r)
	if err != nil {
		decodeRequestsTotal.WithLabelValues("upload", "error").Inc()
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := formFile(r)
	if err != nil {
		decodeRequestsTotal.WithLabelValues("upload", "error").Inc()
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	dir, err := os.MkdirTemp("", "goscan-upload-")
	if err != nil {
		s.writeErrorResponse(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path, err := saveUpload(dir, file, header)
	if err != nil {
		decodeRequestsTotal.WithLabelValues("upload", "error").Inc()
		if errors.Is(err, errUnsupportedUpload) {
			s.writeErrorResponse(w, err.Error(), http.StatusUnsupportedMediaType)
		} else {
			s.writeErrorResponse(w, "Failed to store upload", http.StatusInternalServerError)
		}
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	res, err := s.decodeFile(ctx, opts, path)
	if err != nil {
		decodeRequestsTotal.WithLabelValues("upload", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Decoding failed: %v", err), http.StatusInternalServerError)
		return
	}
	res.File = header.Filename

	decodeRequestDuration.WithLabelValues("upload").Observe(float64(res.DurationMs) / 1000)
	if res.Found {
		decodeRequestsTotal.WithLabelValues("upload", "found").Inc()
	} else {
		decodeRequestsTotal.WithLabelValues("upload", "not_found").Inc()
	}

	if outputFormat(r) == formatText {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !res.Found {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(res.Error + "\n"))
			return
		}
		_, _ = w.Write([]byte(res.Text + "\n"))
		return
	}
	s.writeJSON(w, http.StatusOK, DecodeResponse{Success: true, Result: &res})
}

// decodeFile runs one static-file decode through a short-lived session.
// A miss is a result; only infrastructure failures are errors.
func (s *Server) decodeFile(ctx context.Context, opts barcode.Options, path string) (DecodeResult, error) {
	reader, err := barcode.NewReader(opts, s.log())
	if err != nil {
		return DecodeResult{}, err
	}
	results := make(fileOutcome, 1)
	sess, err := session.New(ctx, session.Config{
		Decoder:  reader,
		Loader:   s.loader,
		Pool:     s.pool,
		Listener: results,
		Viewport: session.StaticViewport{View: s.viewport},
		Logger:   s.log(),
	})
	if err != nil {
		return DecodeResult{}, err
	}
	defer func() { _ = sess.Close(context.Background()) }()

	start := time.Now()
	if err := sess.DecodeFile(ctx, path); err != nil {
		return DecodeResult{}, err
	}

	var out DecodeResult
	select {
	case res := <-results:
		if res == nil {
			out.Error = "no barcode found"
			break
		}
		out.Found = true
		out.Text = res.Text
		out.Format = res.Format.String()
		out.Points = res.Points
	case <-ctx.Done():
		return DecodeResult{}, ctx.Err()
	}
	out.DurationMs = time.Since(start).Milliseconds()
	return out, nil
}

// requestOptions applies the per-request decoder overrides "mode",
// "formats" and "try_harder" to the server defaults.
func (s *Server) requestOptions(r *http.Request) (barcode.Options, error) {
	opts := s.decoder
	opts.Formats = slices.Clone(opts.Formats)

	mode := strings.TrimSpace(r.FormValue("mode"))
	var names []string
	for _, n := range strings.Split(r.FormValue("formats"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if mode != "" || len(names) > 0 {
		formats, err := barcode.ResolveFormats(mode, names)
		if err != nil {
			return opts, err
		}
		opts.Formats = formats
	}

	if v := r.FormValue("try_harder"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid try_harder value %q", v)
		}
		opts.TryHarder = b
	}
	return opts, nil
}

// requestContext bounds a decode by the configured request timeout.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeoutSec > 0 {
		return context.WithTimeout(r.Context(), time.Duration(s.timeoutSec)*time.Second)
	}
	return context.WithCancel(r.Context())
}

// formFile returns the upload in the "file" field, or "image" as a fallback.
func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile("file")
	if err == nil {
		return file, header, nil
	}
	return r.FormFile("image")
}

// outputFormat reads "format" from the form, then the query string.
func outputFormat(r *http.Request) string {
	if f := r.FormValue("format"); f != "" {
		return f
	}
	return r.URL.Query().Get("format")
}
