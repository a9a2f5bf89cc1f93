package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loadflow-server/internal/config"
	"loadflow-server/internal/loadflow"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() Request {
	return Request{BusCount: 6, NodeCount: 10, LineImpedancePattern: "Uniform with some variance"}
}

func newTestAdvisor(endpoint string) *Advisor {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewAdvisor(config.AdvisorConfig{
		Endpoint: endpoint,
		APIKey:   "test-key",
		Model:    "test-model",
		Timeout:  2 * time.Second,
	}, loadflow.NewRegistry(), logger)
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Request)
		wantErr bool
	}{
		{"valid", func(r *Request) {}, false},
		{"one bus", func(r *Request) { r.BusCount = 1 }, true},
		{"too many buses", func(r *Request) { r.BusCount = 10001 }, true},
		{"max buses", func(r *Request) { r.BusCount = 10000 }, false},
		{"one node", func(r *Request) { r.NodeCount = 1 }, true},
		{"too many nodes", func(r *Request) { r.NodeCount = 20000 }, true},
		{"short pattern", func(r *Request) { r.LineImpedancePattern = "flat" }, true},
		{"blank pattern", func(r *Request) { r.LineImpedancePattern = "       " }, true},
		{"long pattern", func(r *Request) { r.LineImpedancePattern = strings.Repeat("x", 101) }, true},
		{"100 chars", func(r *Request) { r.LineImpedancePattern = strings.Repeat("x", 100) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecommend(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		prompt = body.Contents[0].Parts[0].Text

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"` +
			"```json\\n{\\\"algorithm\\\":\\\"Newton-Raphson\\\",\\\"reasoning\\\":\\\"Small, well-conditioned grid.\\\"}\\n```" +
			`"}]}}]}`))
	}))
	defer server.Close()

	rec, err := newTestAdvisor(server.URL).Recommend(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, "Newton-Raphson", rec.Algorithm)
	assert.Equal(t, "Small, well-conditioned grid.", rec.Reasoning)
	assert.Contains(t, prompt, "Bus count: 6")
	assert.Contains(t, prompt, "Gauss-Seidel")
	assert.NotContains(t, prompt, "Initial Guess")
}

func TestRecommend_InvalidRequestNeverCallsUpstream(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	_, err := newTestAdvisor(server.URL).Recommend(context.Background(), Request{BusCount: 1, NodeCount: 2, LineImpedancePattern: "uniform"})

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.False(t, called)
}

func TestRecommend_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"quota exceeded"}}`},
		{"garbage", http.StatusOK, `not json`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"not a recommendation", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"use NR"}]}}]}`},
		{"no algorithm", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"{\"reasoning\":\"hm\"}"}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestAdvisor(server.URL).Recommend(context.Background(), validRequest())
			assert.ErrorIs(t, err, ErrUpstream)
		})
	}
}

func TestRecommend_NotConfigured(t *testing.T) {
	_, err := newTestAdvisor("").Recommend(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrNotConfigured)
}
