package rembg

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshkit/img2mesh/internal/infra/httpclient"
	"github.com/meshkit/img2mesh/internal/infra/logger"
	"github.com/meshkit/img2mesh/pkg/errors"
)

func newTestHTTPClient() *httpclient.Client {
	return httpclient.New(httpclient.Options{Timeout: 5 * time.Second, MaxRetries: 0})
}

func TestRemove(t *testing.T) {
	want := []byte("rgba png payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/remove", r.URL.Path)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte("input png"), body)

		w.Write(want)
	}))
	defer srv.Close()

	client := New(srv.URL, newTestHTTPClient(), logger.NewNop())
	out, err := client.Remove(context.Background(), []byte("input png"))
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestRemoveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(srv.URL, newTestHTTPClient(), logger.NewNop())
	_, err := client.Remove(context.Background(), []byte("input png"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeImageProcess))
}

func TestRemoveEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL, newTestHTTPClient(), logger.NewNop())
	_, err := client.Remove(context.Background(), []byte("input png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty image")
}
