package loadflow

import (
	"loadflow-server/internal/models"
)

// Solver encodes one load-flow update rule.
type Solver interface {
	// Step computes the snapshot following previous. A nil previous stands for
	// the canonical initial state. Step never fails: degenerate arithmetic is
	// normalized to safe values.
	Step(grid *models.Grid, previous *models.AlgorithmState) models.AlgorithmState

	// GetName returns the method name
	GetName() string
}

// Metrics are the static, indicative figures shown next to each method.
type Metrics struct {
	ConvergenceTime  string `json:"convergenceTime"`
	Iterations       int    `json:"iterations"`
	TotalPowerLoss   string `json:"totalPowerLoss"`
	VoltageDeviation string `json:"voltageDeviation"`
}

// Comparison holds 0-10 scores used by the comparison chart.
type Comparison struct {
	Speed       int `json:"speed"`
	Accuracy    int `json:"accuracy"`
	Convergence int `json:"convergence"`
	PowerLoss   int `json:"powerLoss"`
}

// Descriptor is the read-only metadata bundle of a registered method.
type Descriptor struct {
	Key                   string     `json:"key"`
	Name                  string     `json:"name"`
	Description           string     `json:"description"`
	Tradeoffs             string     `json:"tradeoffs"`
	VisualizationBehavior string     `json:"visualizationBehavior"`
	Metrics               Metrics    `json:"metrics"`
	Comparison            Comparison `json:"comparison"`
	MaxIterations         int        `json:"maxIterations"`
	Solver                Solver     `json:"-"`
}
