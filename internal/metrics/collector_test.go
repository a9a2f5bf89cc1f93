package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"loadflow-server/internal/loadflow"
	"loadflow-server/internal/models"
	"loadflow-server/internal/simulation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObservesController(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	controller, err := simulation.NewController(models.ReferenceGrid(), loadflow.NewRegistry(),
		loadflow.NewtonRaphsonKey, simulation.Config{}, logger)
	require.NoError(t, err)
	controller.AddListener(collector.Observe)

	ctx := context.Background()
	controller.RunToCompletion(ctx)

	assert.Equal(t, 5.0, testutil.ToFloat64(collector.StepsTotal.WithLabelValues("newton-raphson")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.Iteration))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.StepRunning))

	require.NoError(t, controller.SelectAlgorithm(ctx, loadflow.DCPowerFlowKey))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.RunsTotal.WithLabelValues("dc-power-flow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.StepsTotal.WithLabelValues("dc-power-flow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Converged))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.BusVoltage.WithLabelValues("B1")))
	assert.InDelta(t, 12.5, testutil.ToFloat64(collector.LineFlow.WithLabelValues("L3")), 1e-9)
}

func TestCollector_RegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.Iteration.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(second.Iteration))
}

func TestCollector_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	require.NoError(t, err)
	collector.Observe(simulation.Snapshot{Algorithm: loadflow.GaussSeidelKey, Iteration: 2})

	recorder := httptest.NewRecorder()
	collector.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(recorder.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `loadflow_steps_total{algorithm="gauss-seidel"} 1`))
	assert.True(t, strings.Contains(string(body), "loadflow_iteration 2"))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var collector *Collector
	assert.NotPanics(t, func() { collector.Observe(simulation.Snapshot{}) })
	assert.Nil(t, collector.Gatherer())
}
