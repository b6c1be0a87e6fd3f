package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-insight/shared/config"
)

func TestAnalyze(t *testing.T) {
	var received analyzeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"outputs":[{"scene":{"output":"a street"}}],"detected_classes":["person"]}`))
	}))
	defer server.Close()

	client := NewClient(&config.VisionConfig{Endpoint: server.URL, APIKey: "secret"})
	defer client.Close()

	payload, err := client.Analyze(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "secret", received.APIKey)
	assert.Equal(t, "base64", received.Inputs.Image.Type)
	decoded, err := base64.StdEncoding.DecodeString(received.Inputs.Image.Value)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(decoded))

	assert.Contains(t, payload, "outputs")
	assert.Equal(t, []any{"person"}, payload["detected_classes"])
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{
			name:    "Server error",
			status:  http.StatusInternalServerError,
			body:    `{"error":"boom"}`,
			wantErr: "status 500",
		},
		{
			name:    "Rate limited",
			status:  http.StatusTooManyRequests,
			body:    "slow down",
			wantErr: "status 429",
		},
		{
			name:    "Invalid JSON",
			status:  http.StatusOK,
			body:    "not json",
			wantErr: "decode",
		},
		{
			name:    "Null payload",
			status:  http.StatusOK,
			body:    "null",
			wantErr: "empty payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(&config.VisionConfig{Endpoint: server.URL})
			defer client.Close()

			_, err := client.Analyze(context.Background(), []byte("img"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAnalyzeEmptyImage(t *testing.T) {
	client := NewClient(&config.VisionConfig{Endpoint: "http://unused.invalid"})
	defer client.Close()

	_, err := client.Analyze(context.Background(), nil)
	assert.Error(t, err)
}
