package recognition

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-access-backend/config"
)

func newTestServer(t *testing.T, handler func(path string, image []byte) any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		var req imageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		raw, err := base64.StdEncoding.DecodeString(req.Image)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(handler(r.URL.Path, raw)))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_ReadPlate(t *testing.T) {
	server := newTestServer(t, func(path string, image []byte) any {
		assert.Equal(t, "/plate", path)
		assert.Equal(t, []byte("jpeg-bytes"), image)
		return map[string]any{"code": 0, "data": map[string]string{"text": "59A-123.45"}}
	})

	c := NewClient(config.RecognitionConfig{URL: server.URL, Headers: map[string]string{"X-Api-Key": "secret"}}, time.Second)
	p, err := c.ReadPlate(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "59A12345", p)
}

func TestClient_ReadPlate_NoPlate(t *testing.T) {
	server := newTestServer(t, func(path string, image []byte) any {
		return map[string]any{"code": 0, "data": map[string]string{"text": "blurry"}}
	})

	c := NewClient(config.RecognitionConfig{URL: server.URL, Headers: map[string]string{"X-Api-Key": "secret"}}, time.Second)
	_, err := c.ReadPlate(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNoPlate)
}

func TestClient_Encode(t *testing.T) {
	server := newTestServer(t, func(path string, image []byte) any {
		if path != "/face/encode" {
			return map[string]any{"code": 404, "message": "unknown"}
		}
		return map[string]any{"code": 0, "data": map[string]any{"embedding": []float64{0.1, 0.2, 0.3}}}
	})

	c := NewClient(config.RecognitionConfig{URL: server.URL + "/", Headers: map[string]string{"X-Api-Key": "secret"}}, time.Second)
	emb, err := c.Encode(context.Background(), []byte("face"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, emb)
}

func TestClient_Encode_ServiceError(t *testing.T) {
	server := newTestServer(t, func(path string, image []byte) any {
		return map[string]any{"code": 7, "message": "model not loaded"}
	})

	c := NewClient(config.RecognitionConfig{URL: server.URL, Headers: map[string]string{"X-Api-Key": "secret"}}, time.Second)
	_, err := c.Encode(context.Background(), []byte("face"))
	assert.ErrorContains(t, err, "model not loaded")
}

func TestClient_Unconfigured(t *testing.T) {
	c := NewClient(config.RecognitionConfig{}, time.Second)
	_, err := c.ReadPlate(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := NewClient(config.RecognitionConfig{URL: server.URL}, 20*time.Millisecond)
	_, err := c.Encode(context.Background(), []byte("face"))
	assert.Error(t, err)
}
