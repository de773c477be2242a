package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDaemonStub serves a canned API on a unix socket.
func startDaemonStub(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "pairlinkd.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	srv := &http.Server{Handler: mux}
	go srv.Serve(listener)
	t.Cleanup(func() { srv.Close() })

	return socketPath
}

func TestIsRunning(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	socketPath := startDaemonStub(t, mux)

	c := New(socketPath)
	defer c.Close()
	assert.True(t, c.IsRunning())

	dead := New(filepath.Join(t.TempDir(), "missing.sock"))
	defer dead.Close()
	assert.False(t, dead.IsRunning())
}

func TestListDecodesSessions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SessionList{
			Sessions: []Session{{ID: "abc", Mode: "qr", Status: "completed", Good: true}},
		})
	})
	socketPath := startDaemonStub(t, mux)

	c := New(socketPath)
	defer c.Close()

	list, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "abc", list.Sessions[0].ID)
	assert.True(t, list.Sessions[0].Good)
}

func TestCreatePairSendsPhone(t *testing.T) {
	var gotPhone string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions/pair", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Phone string `json:"phone"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotPhone = req.Phone
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(CreateResult{ID: "abc", PairingCode: "ABCD-1234"})
	})
	socketPath := startDaemonStub(t, mux)

	c := New(socketPath)
	defer c.Close()

	result, err := c.CreatePair(context.Background(), "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", gotPhone)
	assert.Equal(t, "ABCD-1234", result.PairingCode)
}

func TestStructuredErrorsSurface(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions/abc", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "PROTECTED",
			"message": "session 'abc' is permanent",
		})
	})
	socketPath := startDaemonStub(t, mux)

	c := New(socketPath)
	defer c.Close()

	err := c.Remove(context.Background(), "abc", false)
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, "PROTECTED", apiErr.Code)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestAccessTokenHeader(t *testing.T) {
	var gotToken string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions/abc/files", func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Access-Token")
		json.NewEncoder(w).Encode([]FileInfo{{Name: "creds.json", ModTime: time.Now()}})
	})
	socketPath := startDaemonStub(t, mux)

	c := New(socketPath)
	defer c.Close()
	c.AccessToken = "secret"

	files, err := c.Files(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "secret", gotToken)
	require.Len(t, files, 1)
}
