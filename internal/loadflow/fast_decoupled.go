package loadflow

import (
	"loadflow-server/internal/models"
)

const fastDecoupledDamping = 0.7

// FastDecoupled shares the Newton-Raphson mismatch but divides by a constant
// 2P, independent of the bus voltage.
type FastDecoupled struct{}

func NewFastDecoupled() *FastDecoupled {
	return &FastDecoupled{}
}

func (f *FastDecoupled) GetName() string {
	return "Fast Decoupled"
}

func (f *FastDecoupled) Step(grid *models.Grid, previous *models.AlgorithmState) models.AlgorithmState {
	return iterate(grid, previous, f.update)
}

func (f *FastDecoupled) update(grid *models.Grid, bus models.Bus, voltages map[string]float64) float64 {
	mismatch := powerMismatch(grid, bus, voltages)
	jacobianEffect := 2.0 * bus.Power
	voltageChange := -mismatch / orOne(jacobianEffect)

	return voltages[bus.ID] + voltageChange*fastDecoupledDamping
}
