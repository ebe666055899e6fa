package server

import (
	"bytes"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/geometry"
)

// uploadFile is one file part of a multipart test request.
type uploadFile struct {
	field    string
	filename string
	data     []byte
}

// newTestServer builds a server with test defaults; modify adjusts the
// config before construction.
func newTestServer(t *testing.T, modify func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		CORSOrigin:  "*",
		MaxUploadMB: 5,
		TimeoutSec:  10,
		Viewport:    geometry.Size{Width: 1080, Height: 1920},
		PoolSize:    2,
	}
	if modify != nil {
		modify(&cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// encodePNG encodes img as PNG bytes.
func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartRequest builds a POST to target carrying files and fields.
func multipartRequest(t *testing.T, target string, files []uploadFile, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
