package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loadflow-server/internal/advisor"
	"loadflow-server/internal/config"
	"loadflow-server/internal/loadflow"
	"loadflow-server/internal/metrics"
	"loadflow-server/internal/models"
	"loadflow-server/internal/simulation"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func newTestServer(t *testing.T, advisorEndpoint string) (*Server, *simulation.Controller) {
	t.Helper()
	logger := testLogger()
	registry := loadflow.NewRegistry()

	controller, err := simulation.NewController(models.ReferenceGrid(), registry, loadflow.NewtonRaphsonKey, simulation.Config{}, logger)
	require.NoError(t, err)

	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	controller.AddListener(collector.Observe)

	adv := advisor.NewAdvisor(config.AdvisorConfig{Endpoint: advisorEndpoint, Model: "m", Timeout: time.Second}, registry, logger)

	s := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, controller, adv, collector, logger)
	controller.AddListener(s.Hub().Broadcast)
	return s, controller
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, req)
	return recorder
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, "")

	recorder := do(t, s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "healthy")
}

func TestGridAndAlgorithms(t *testing.T) {
	s, _ := newTestServer(t, "")

	recorder := do(t, s, http.MethodGet, "/api/v1/grid", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	var grid models.Grid
	decode(t, recorder, &grid)
	assert.Len(t, grid.Buses, 6)
	assert.Len(t, grid.Lines, 8)

	recorder = do(t, s, http.MethodGet, "/api/v1/algorithms", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	var algorithms struct {
		Default    string                `json:"default"`
		Algorithms []loadflow.Descriptor `json:"algorithms"`
	}
	decode(t, recorder, &algorithms)
	assert.Equal(t, "newton-raphson", algorithms.Default)
	require.Len(t, algorithms.Algorithms, 5)
	assert.Equal(t, "Gauss-Seidel", algorithms.Algorithms[1].Name)
	assert.Equal(t, 15, algorithms.Algorithms[1].MaxIterations)

	recorder = do(t, s, http.MethodGet, "/api/v1/algorithms/comparison", "")
	var rows []loadflow.ComparisonRow
	decode(t, recorder, &rows)
	assert.Len(t, rows, 4)
}

func TestAdvanceUntilCap(t *testing.T) {
	s, _ := newTestServer(t, "")

	for i := 1; i <= 5; i++ {
		recorder := do(t, s, http.MethodPost, "/api/v1/advance", "")
		require.Equal(t, http.StatusOK, recorder.Code)
		var resp struct {
			Advanced bool                `json:"advanced"`
			Snapshot simulation.Snapshot `json:"snapshot"`
		}
		decode(t, recorder, &resp)
		assert.True(t, resp.Advanced)
		assert.Equal(t, i, resp.Snapshot.Iteration)
	}

	recorder := do(t, s, http.MethodPost, "/api/v1/advance", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"advanced":false`)

	recorder = do(t, s, http.MethodGet, "/api/v1/history", "")
	var history struct {
		History []models.AlgorithmState `json:"history"`
	}
	decode(t, recorder, &history)
	assert.Len(t, history.History, 6)
}

func TestSelectAlgorithm(t *testing.T) {
	s, controller := newTestServer(t, "")

	recorder := do(t, s, http.MethodPost, "/api/v1/algorithm", `{"key":"dc-power-flow"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	var snapshot simulation.Snapshot
	decode(t, recorder, &snapshot)
	assert.Equal(t, loadflow.DCPowerFlowKey, snapshot.Algorithm)
	assert.Equal(t, 1, snapshot.Iteration)
	assert.True(t, snapshot.IsConverged)

	recorder = do(t, s, http.MethodPost, "/api/v1/algorithm", `{"key":"unknown"}`)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = do(t, s, http.MethodPost, "/api/v1/algorithm", `{}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	assert.Equal(t, loadflow.DCPowerFlowKey, controller.Snapshot().Algorithm)
}

func TestRunAndReset(t *testing.T) {
	s, _ := newTestServer(t, "")
	do(t, s, http.MethodPost, "/api/v1/algorithm", `{"key":"gauss-seidel"}`)

	recorder := do(t, s, http.MethodPost, "/api/v1/run", "")
	var snapshot simulation.Snapshot
	decode(t, recorder, &snapshot)
	assert.Equal(t, 11, snapshot.Iteration)
	assert.True(t, snapshot.IsConverged)

	recorder = do(t, s, http.MethodPost, "/api/v1/reset", "")
	decode(t, recorder, &snapshot)
	assert.Equal(t, 1, snapshot.Iteration)
	assert.Equal(t, loadflow.GaussSeidelKey, snapshot.Algorithm)
}

func TestView(t *testing.T) {
	s, _ := newTestServer(t, "")
	do(t, s, http.MethodPost, "/api/v1/algorithm", `{"key":"dc-power-flow"}`)

	recorder := do(t, s, http.MethodGet, "/api/v1/view", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	var view View
	decode(t, recorder, &view)

	require.Len(t, view.Buses, 6)
	assert.Equal(t, 2.0, view.Buses[0].PulseSeconds)
	assert.Equal(t, 100.0, view.Buses[0].X)

	l3 := view.Lines[2]
	assert.Equal(t, "L3", l3.ID)
	assert.Equal(t, models.ToFrom, l3.Direction)
	assert.Equal(t, 5, l3.ParticleCount)
	assert.InDelta(t, 0.4, l3.ParticleSeconds, 1e-9)

	l7 := view.Lines[6]
	assert.Equal(t, 0, l7.ParticleCount)
	assert.Equal(t, 1.0, l7.StrokeWidth)
	assert.InDelta(t, 50.0, l7.ParticleSeconds, 1e-9)
}

func TestRecommend(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"algorithm\":\"Fast Decoupled\",\"reasoning\":\"Large transmission grid.\"}"}]}}]}`))
	}))
	defer upstream.Close()

	s, controller := newTestServer(t, upstream.URL)
	before := controller.Snapshot()

	recorder := do(t, s, http.MethodPost, "/api/v1/recommend",
		`{"busCount":500,"nodeCount":800,"lineImpedancePattern":"low R/X, meshed"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	var rec advisor.Recommendation
	decode(t, recorder, &rec)
	assert.Equal(t, "Fast Decoupled", rec.Algorithm)

	recorder = do(t, s, http.MethodPost, "/api/v1/recommend",
		`{"busCount":1,"nodeCount":800,"lineImpedancePattern":"low R/X, meshed"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	assert.Equal(t, before, controller.Snapshot())
}

func TestRecommend_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	s, _ := newTestServer(t, upstream.URL)

	recorder := do(t, s, http.MethodPost, "/api/v1/recommend",
		`{"busCount":6,"nodeCount":10,"lineImpedancePattern":"Uniform with some variance"}`)
	assert.Equal(t, http.StatusBadGateway, recorder.Code)
}

func TestReportsAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, "")
	do(t, s, http.MethodPost, "/api/v1/run", "")

	recorder := do(t, s, http.MethodGet, "/report/convergence", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "Bus voltages")

	recorder = do(t, s, http.MethodGet, "/report/convergence.png", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "image/png", recorder.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(recorder.Body.String(), "\x89PNG"))

	recorder = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `loadflow_steps_total{algorithm="newton-raphson"} 5`)
}

func TestWebSocket(t *testing.T) {
	s, controller := newTestServer(t, "")
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot simulation.Snapshot
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, 0, snapshot.Iteration)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"select","algorithm":"dc-power-flow"}`)))

	// reset, running and committed snapshots follow in order
	for snapshot.Algorithm != loadflow.DCPowerFlowKey || snapshot.Iteration != 1 {
		require.NoError(t, conn.ReadJSON(&snapshot))
	}
	assert.True(t, snapshot.IsConverged)
	assert.Equal(t, loadflow.DCPowerFlowKey, controller.Snapshot().Algorithm)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"jump"}`)))
	var reply map[string]interface{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Contains(t, reply["error"], "invalid command")
}
