package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"composition-resolver/internal/infrastructure/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "test-model:generateContent")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), config.GeminiConfig{
		APIKey:  "g-test",
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestComplete_Success(t *testing.T) {
	client := newTestClient(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"  {\"name\":\"Soap\"} "}]}}]}`)

	out, err := client.Complete(context.Background(), "describe soap")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Soap"}`, out)
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"empty content", http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"   "}]}}]}`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"api error", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(t, tt.status, tt.body).Complete(context.Background(), "p")
			assert.Error(t, err)
		})
	}
}

func TestFactory(t *testing.T) {
	factory := NewFactory(config.GeminiConfig{})
	_, err := factory(" ")
	assert.Error(t, err)

	p, err := factory("g-caller")
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())
	assert.Equal(t, 60*time.Second, p.Timeout())
}
