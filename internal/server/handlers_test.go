package server

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/goscan/internal/version"
)

func TestServer_HealthHandler(t *testing.T) {
	server := &Server{}

	tests := []struct {
		name           string
		method         string
		expectedStatus int
		checkResponse  bool
	}{
		{"GET request success", http.MethodGet, http.StatusOK, true},
		{"POST request not allowed", http.MethodPost, http.StatusMethodNotAllowed, false},
		{"PUT request not allowed", http.MethodPut, http.StatusMethodNotAllowed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			server.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.checkResponse {
				var response HealthResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, "healthy", response.Status)
				assert.Equal(t, version.Version, response.Version)
				assert.NotEmpty(t, response.Time)
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestServer_SessionsHandler_ListsConnections(t *testing.T) {
	server := &Server{cameras: newCameraRegistry()}
	early := &cameraConn{id: "b", remoteAddr: "1.1.1.1:1", since: time.Unix(100, 0)}
	late := &cameraConn{id: "a", remoteAddr: "2.2.2.2:2", since: time.Unix(200, 0)}
	late.scans.Add(3)
	server.cameras.add(late)
	server.cameras.add(early)

	w := httptest.NewRecorder()
	server.sessionsHandler(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var response SessionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Equal(t, 2, response.Count)
	assert.Equal(t, "b", response.Sessions[0].ID)
	assert.Equal(t, "a", response.Sessions[1].ID)
	assert.Equal(t, int64(3), response.Sessions[1].Scans)

	w = httptest.NewRecorder()
	server.sessionsHandler(w, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_WriteErrorResponse(t *testing.T) {
	server := &Server{}
	w := httptest.NewRecorder()

	server.writeErrorResponse(w, "Something broke", http.StatusBadRequest)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var response DecodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Success)
	assert.Equal(t, "Something broke", response.Error)
	assert.Nil(t, response.Result)
}

func TestSaveUpload(t *testing.T) {
	dir := t.TempDir()

	f, err := os.CreateTemp(dir, "src")
	require.NoError(t, err)
	_, err = f.WriteString("payload")
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	path, err := saveUpload(dir, f, &multipart.FileHeader{Filename: "../../Photo.PNG"})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".png"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = saveUpload(dir, f, &multipart.FileHeader{Filename: "notes.txt"})
	assert.ErrorIs(t, err, errUnsupportedUpload)
}
