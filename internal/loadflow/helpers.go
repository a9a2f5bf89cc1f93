package loadflow

import (
	"math"

	"loadflow-server/internal/models"

	"gonum.org/v1/gonum/floats"
)

const (
	ConvergenceThreshold = 1e-4
	MinVoltage           = 0.9
	MaxVoltage           = 1.1
)

// SafeVoltage replaces NaN, infinities and zero by 1.0 p.u. and clamps the
// result to [MinVoltage, MaxVoltage].
func SafeVoltage(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		v = 1.0
	}
	return math.Max(MinVoltage, math.Min(MaxVoltage, v))
}

// orOne mirrors the "value or 1.0" fallback used for divisors and missing
// voltages.
func orOne(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 1.0
	}
	return v
}

func voltageOf(voltages map[string]float64, busID string) float64 {
	return orOne(voltages[busID])
}

// lineFlows derives |ΔV|/Z for every line from a voltage map.
func lineFlows(grid *models.Grid, voltages map[string]float64) map[string]models.LineFlow {
	flows := make(map[string]models.LineFlow, len(grid.Lines))
	for _, line := range grid.Lines {
		diff := voltageOf(voltages, line.From) - voltageOf(voltages, line.To)

		flow := math.Abs(diff / line.Impedance)
		if math.IsNaN(flow) || math.IsInf(flow, 0) {
			flow = 0
		}

		direction := models.ToFrom
		if diff > 0 {
			direction = models.FromTo
		}
		flows[line.ID] = models.LineFlow{Flow: flow, Direction: direction}
	}
	return flows
}

// powerMismatch sums the bus injection and the simplified power drawn by
// every line touching the bus, using the voltages of the previous snapshot.
func powerMismatch(grid *models.Grid, bus models.Bus, voltages map[string]float64) float64 {
	mismatch := bus.Power
	v := voltages[bus.ID]
	for _, line := range grid.Lines {
		other, ok := line.Touches(bus.ID)
		if !ok {
			continue
		}
		mismatch += (v - voltages[other]) * line.Admittance() * v
	}
	return mismatch
}

// busUpdate returns the raw (unclamped) new voltage of a non-generator bus.
type busUpdate func(grid *models.Grid, bus models.Bus, voltages map[string]float64) float64

// iterate runs the shared skeleton of the damped iterative methods: skip
// generators, normalize every raw update, rebuild flows and test convergence.
func iterate(grid *models.Grid, previous *models.AlgorithmState, update busUpdate) models.AlgorithmState {
	if previous == nil {
		return models.InitialState(grid)
	}
	if previous.IsConverged {
		return *previous
	}

	next := previous.Clone()
	var changes []float64

	for _, bus := range grid.Buses {
		if bus.IsGenerator() {
			continue
		}
		v := SafeVoltage(update(grid, bus, previous.BusVoltages))
		changes = append(changes, math.Abs(v-previous.BusVoltages[bus.ID]))
		next.BusVoltages[bus.ID] = v
	}

	maxChange := 0.0
	if len(changes) > 0 {
		maxChange = floats.Max(changes)
	}

	next.LineFlows = lineFlows(grid, next.BusVoltages)
	next.IsConverged = maxChange < ConvergenceThreshold
	next.Iteration = previous.Iteration + 1
	return next
}
