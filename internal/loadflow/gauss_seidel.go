package loadflow

import (
	"loadflow-server/internal/models"
)

// GaussSeidel averages neighbour voltages weighted by admittance, corrected by
// the estimated injected current. All reads come from the previous snapshot.
type GaussSeidel struct{}

func NewGaussSeidel() *GaussSeidel {
	return &GaussSeidel{}
}

func (g *GaussSeidel) GetName() string {
	return "Gauss-Seidel"
}

func (g *GaussSeidel) Step(grid *models.Grid, previous *models.AlgorithmState) models.AlgorithmState {
	return iterate(grid, previous, g.update)
}

func (g *GaussSeidel) update(grid *models.Grid, bus models.Bus, voltages map[string]float64) float64 {
	var sumYV, sumY float64
	for _, line := range grid.Lines {
		other, ok := line.Touches(bus.ID)
		if !ok {
			continue
		}
		admittance := line.Admittance()
		neighbor, known := voltages[other]
		if !known {
			neighbor = 1.0
		}
		sumYV += neighbor * admittance
		sumY += admittance
	}

	v := voltages[bus.ID]
	if sumY <= 0 {
		return v
	}

	estimatedCurrent := bus.Power / orOne(v)
	return (sumYV - estimatedCurrent) / sumY
}
