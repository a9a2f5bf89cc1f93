package loadflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSolver(t *testing.T) {
	tests := []struct {
		key  AlgorithmKey
		name string
	}{
		{NewtonRaphsonKey, "Newton-Raphson"},
		{GaussSeidelKey, "Gauss-Seidel"},
		{DCPowerFlowKey, "DC Power Flow"},
		{FastDecoupledKey, "Fast Decoupled"},
		{InitialGuessKey, "Initial Guess"},
	}

	for _, tt := range tests {
		solver, err := CreateSolver(tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.name, solver.GetName())
	}

	_, err := CreateSolver("holomorphic-embedding")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()

	assert.Equal(t, []AlgorithmKey{
		NewtonRaphsonKey, GaussSeidelKey, DCPowerFlowKey, FastDecoupledKey, InitialGuessKey,
	}, registry.Keys())
	assert.Equal(t, NewtonRaphsonKey, registry.Default())

	caps := map[AlgorithmKey]int{
		NewtonRaphsonKey: 5,
		GaussSeidelKey:   15,
		DCPowerFlowKey:   1,
		FastDecoupledKey: 8,
		InitialGuessKey:  1,
	}
	for key, maxIterations := range caps {
		d, ok := registry.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, maxIterations, d.MaxIterations, key)
		assert.NotNil(t, d.Solver, key)
		assert.Equal(t, d.Name, d.Solver.GetName(), key)
	}

	_, err := registry.Lookup("unknown")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestRegistry_KeysIsACopy(t *testing.T) {
	registry := NewRegistry()
	keys := registry.Keys()
	keys[0] = "changed"

	assert.Equal(t, NewtonRaphsonKey, registry.Keys()[0])
}

func TestRegistry_Comparison(t *testing.T) {
	rows := NewRegistry().Comparison()

	require.Len(t, rows, 4)
	assert.Equal(t, "Speed", rows[0].Metric)
	assert.Equal(t, "Power Loss", rows[3].Metric)
	assert.Equal(t, map[string]int{
		"Newton-Raphson": 8,
		"Gauss-Seidel":   4,
		"DC Power Flow":  10,
		"Fast Decoupled": 7,
	}, rows[0].Scores)
	assert.Equal(t, 9, rows[1].Scores["Newton-Raphson"])
	assert.NotContains(t, rows[2].Scores, "Initial Guess")
}
