package loadflow

import (
	"loadflow-server/internal/models"
)

const newtonRaphsonDamping = 0.5

// NewtonRaphson uses a pseudo-Jacobian diagonal 2P/V with a 0.5 damping factor.
type NewtonRaphson struct{}

func NewNewtonRaphson() *NewtonRaphson {
	return &NewtonRaphson{}
}

func (n *NewtonRaphson) GetName() string {
	return "Newton-Raphson"
}

func (n *NewtonRaphson) Step(grid *models.Grid, previous *models.AlgorithmState) models.AlgorithmState {
	return iterate(grid, previous, n.update)
}

func (n *NewtonRaphson) update(grid *models.Grid, bus models.Bus, voltages map[string]float64) float64 {
	v := voltages[bus.ID]
	mismatch := powerMismatch(grid, bus, voltages)

	// Not a real partial derivative; convergence speed is tuned to it.
	jacobianDiagonal := 2 * bus.Power / orOne(v)
	voltageChange := -mismatch / orOne(jacobianDiagonal)

	return v + voltageChange*newtonRaphsonDamping
}
