package models

type FlowDirection string

const (
	FromTo FlowDirection = "from-to"
	ToFrom FlowDirection = "to-from"
)

type LineFlow struct {
	Flow      float64       `json:"flow"`
	Direction FlowDirection `json:"direction"`
}

// AlgorithmState is one solver snapshot. Values are never mutated once they
// have been handed out; a step builds a new state through Clone.
type AlgorithmState struct {
	BusVoltages map[string]float64  `json:"busVoltages"`
	LineFlows   map[string]LineFlow `json:"lineFlows"`
	IsConverged bool                `json:"isConverged"`
	Iteration   int                 `json:"iteration"`
}

// InitialState is the canonical starting guess: generators at their known
// voltage (1.0 when unknown), every other bus at 1.0 p.u., no flow.
func InitialState(grid *Grid) AlgorithmState {
	voltages := make(map[string]float64, len(grid.Buses))
	for _, bus := range grid.Buses {
		voltages[bus.ID] = 1.0
		if bus.IsGenerator() && bus.Voltage != 0 {
			voltages[bus.ID] = bus.Voltage
		}
	}

	flows := make(map[string]LineFlow, len(grid.Lines))
	for _, line := range grid.Lines {
		flows[line.ID] = LineFlow{Flow: 0, Direction: FromTo}
	}

	return AlgorithmState{
		BusVoltages: voltages,
		LineFlows:   flows,
		IsConverged: false,
		Iteration:   0,
	}
}

func (s AlgorithmState) Clone() AlgorithmState {
	voltages := make(map[string]float64, len(s.BusVoltages))
	for id, v := range s.BusVoltages {
		voltages[id] = v
	}
	flows := make(map[string]LineFlow, len(s.LineFlows))
	for id, f := range s.LineFlows {
		flows[id] = f
	}
	return AlgorithmState{
		BusVoltages: voltages,
		LineFlows:   flows,
		IsConverged: s.IsConverged,
		Iteration:   s.Iteration,
	}
}
