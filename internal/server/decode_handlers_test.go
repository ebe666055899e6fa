package server

import (
	"bytes"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/testutil"
)

func qrUpload(t *testing.T, text string) uploadFile {
	t.Helper()
	img := testutil.Place(testutil.QRCodeImage(t, text, 240), 400, 400, image.Pt(80, 80))
	return uploadFile{field: "file", filename: "code.png", data: encodePNG(t, img)}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) DecodeResponse {
	t.Helper()
	var resp DecodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestDecodeHandler_FindsQRCode(t *testing.T) {
	s := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.decodeHandler(w, multipartRequest(t, "/api/decode", []uploadFile{qrUpload(t, "hello upload")}, nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Found)
	assert.Equal(t, "hello upload", resp.Result.Text)
	assert.Equal(t, "QR_CODE", resp.Result.Format)
	assert.Equal(t, "code.png", resp.Result.File)
	assert.NotEmpty(t, resp.Result.Points)
	assert.Empty(t, resp.Result.Error)
}

func TestDecodeHandler_ImageFieldFallback(t *testing.T) {
	s := newTestServer(t, nil)

	up := qrUpload(t, "legacy field")
	up.field = "image"
	w := httptest.NewRecorder()
	s.decodeHandler(w, multipartRequest(t, "/api/decode", []uploadFile{up}, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "legacy field", decodeResponse(t, w).Result.Text)
}

func TestDecodeHandler_NoBarcode(t *testing.T) {
	s := newTestServer(t, nil)

	blank := uploadFile{field: "file", filename: "blank.png", data: encodePNG(t, testutil.BlankImage(200, 200))}
	w := httptest.NewRecorder()
	s.decodeHandler(w, multipartRequest(t, "/api/decode", []uploadFile{blank}, nil))

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.False(t, resp.Result.Found)
	assert.Equal(t, "no barcode found", resp.Result.Error)
}

func TestDecodeHandler_TextFormat(t *testing.T) {
	s := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.decodeHandler(w, multipartRequest(t, "/api/decode?format=text", []uploadFile{qrUpload(t, "plain")}, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "plain\n", w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))

	blank := uploadFile{field: "file", filename: "blank.png", data: encodePNG(t, testutil.BlankImage(64, 64))}
	w = httptest.NewRecorder()
	s.decodeHandler(w, multipartRequest(t, "/api/decode", []uploadFile{blank}, map[string]string{"format": "text"}))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no barcode found\n", w.Body.String())
}

func TestDecodeHandler_FormatsOverride(t *testing.T) {
	s := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.decodeHandler(w, multipartRequest(t, "/api/decode", []uploadFile{qrUpload(t, "hidden")},
		map[string]string{"formats": "EAN_13, CODE_128"}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeResponse(t, w).Result.Found)
}

func TestDecodeHandler_RequestErrors(t *testing.T) {
	tests := []struct {
		name   string
		files  []uploadFile
		fields map[string]string
		status int
	}{
		{"missing file", nil, nil, http.StatusBadRequest},
		{"unsupported type", []uploadFile{{field: "file", filename: "notes.txt", data: []byte("hi")}}, nil,
			http.StatusUnsupportedMediaType},
		{"unknown mode", nil, map[string]string{"mode": "NO_SUCH_MODE"}, http.StatusBadRequest},
		{"unknown format", nil, map[string]string{"formats": "QR_CODE,NOPE"}, http.StatusBadRequest},
		{"bad try_harder", nil, map[string]string{"try_harder": "maybe"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			w := httptest.NewRecorder()
			s.decodeHandler(w, multipartRequest(t, "/api/decode", tt.files, tt.fields))

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestDecodeHandler_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)
	w := httptest.NewRecorder()
	s.decodeHandler(w, httptest.NewRequest(http.MethodGet, "/api/decode", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestDecodeHandler_UploadTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.MaxUploadMB = 1 })

	big := uploadFile{field: "file", filename: "big.png", data: bytes.Repeat([]byte{0x42}, 2*1024*1024)}
	w := httptest.NewRecorder()
	s.decodeHandler(w, multipartRequest(t, "/api/decode", []uploadFile{big}, nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "File too large", decodeResponse(t, w).Error)
}
