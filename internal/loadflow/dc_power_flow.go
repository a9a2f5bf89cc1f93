package loadflow

import (
	"math"

	"loadflow-server/internal/models"
)

const (
	dcAngleStep  = 0.05
	dcFlowScale  = 10.0
	dcIterations = 1
)

// DCPowerFlow is the non-iterative approximation: flat 1.0 p.u. voltages and
// synthetic angles. Only the first call computes anything.
type DCPowerFlow struct{}

func NewDCPowerFlow() *DCPowerFlow {
	return &DCPowerFlow{}
}

func (d *DCPowerFlow) GetName() string {
	return "DC Power Flow"
}

func (d *DCPowerFlow) Step(grid *models.Grid, previous *models.AlgorithmState) models.AlgorithmState {
	if previous != nil && previous.Iteration > 0 {
		return *previous
	}

	voltages := make(map[string]float64, len(grid.Buses))
	for _, bus := range grid.Buses {
		voltages[bus.ID] = 1.0
	}

	angles := d.angles(grid)

	flows := make(map[string]models.LineFlow, len(grid.Lines))
	for _, line := range grid.Lines {
		delta := angles[line.From] - angles[line.To]
		flow := delta / line.Impedance

		scaled := math.Abs(flow) * dcFlowScale
		if math.IsNaN(scaled) || math.IsInf(scaled, 0) {
			scaled = 0
		}
		direction := models.ToFrom
		if flow > 0 {
			direction = models.FromTo
		}
		flows[line.ID] = models.LineFlow{Flow: scaled, Direction: direction}
	}

	return models.AlgorithmState{
		BusVoltages: voltages,
		LineFlows:   flows,
		IsConverged: true,
		Iteration:   dcIterations,
	}
}

// angles stands in for the linear angle solve: generators lead and loads lag
// by multiples of dcAngleStep in declaration order, junctions sit at zero.
func (d *DCPowerFlow) angles(grid *models.Grid) map[string]float64 {
	angles := make(map[string]float64, len(grid.Buses))
	for i, bus := range grid.BusesOfType(models.GeneratorBus) {
		angles[bus.ID] = dcAngleStep * float64(i+1)
	}
	for i, bus := range grid.BusesOfType(models.LoadBus) {
		angles[bus.ID] = -dcAngleStep * float64(i+1)
	}
	for _, bus := range grid.BusesOfType(models.JunctionBus) {
		angles[bus.ID] = 0
	}
	return angles
}
