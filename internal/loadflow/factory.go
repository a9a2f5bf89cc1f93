package loadflow

import (
	"errors"
	"fmt"
)

var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// AlgorithmKey identifies a registered method
type AlgorithmKey string

const (
	NewtonRaphsonKey AlgorithmKey = "newton-raphson"
	GaussSeidelKey   AlgorithmKey = "gauss-seidel"
	DCPowerFlowKey   AlgorithmKey = "dc-power-flow"
	FastDecoupledKey AlgorithmKey = "fast-decoupled"
	InitialGuessKey  AlgorithmKey = "initial-guess"
)

// CreateSolver factory for the step functions
func CreateSolver(key AlgorithmKey) (Solver, error) {
	switch key {
	case NewtonRaphsonKey:
		return NewNewtonRaphson(), nil
	case GaussSeidelKey:
		return NewGaussSeidel(), nil
	case DCPowerFlowKey:
		return NewDCPowerFlow(), nil
	case FastDecoupledKey:
		return NewFastDecoupled(), nil
	case InitialGuessKey:
		return NewStub("Initial Guess"), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, key)
	}
}

// Registry is the static lookup table of methods, built once at startup.
type Registry struct {
	order       []AlgorithmKey
	descriptors map[AlgorithmKey]Descriptor
}

func NewRegistry() *Registry {
	r := &Registry{descriptors: make(map[AlgorithmKey]Descriptor)}

	r.register(Descriptor{
		Key:                   string(NewtonRaphsonKey),
		Name:                  "Newton-Raphson",
		Description:           "A powerful and fast-converging iterative method for solving non-linear power flow equations.",
		Tradeoffs:             "Excellent accuracy and convergence speed for well-behaved systems, but can be computationally intensive and may struggle with poor initial guesses.",
		VisualizationBehavior: "Voltages and flows stabilize smoothly and quickly. Few iterations reflect its efficiency; particles move fast and line widths change decisively.",
		Metrics:               Metrics{ConvergenceTime: "0.15s", Iterations: 3, TotalPowerLoss: "1.8%", VoltageDeviation: "±1.5%"},
		Comparison:            Comparison{Speed: 8, Accuracy: 9, Convergence: 7, PowerLoss: 7},
		MaxIterations:         5,
	})
	r.register(Descriptor{
		Key:                   string(GaussSeidelKey),
		Name:                  "Gauss-Seidel",
		Description:           "A simpler iterative method that is less memory-intensive than Newton-Raphson.",
		Tradeoffs:             "Simpler to implement and requires less memory. However, it has slower convergence, especially in large systems, and can be unstable.",
		VisualizationBehavior: "Many more iterations to converge. Voltages and flows change gradually with each step and particles move slower.",
		Metrics:               Metrics{ConvergenceTime: "0.78s", Iterations: 12, TotalPowerLoss: "2.1%", VoltageDeviation: "±2.5%"},
		Comparison:            Comparison{Speed: 4, Accuracy: 6, Convergence: 5, PowerLoss: 5},
		MaxIterations:         15,
	})
	r.register(Descriptor{
		Key:                   string(DCPowerFlowKey),
		Name:                  "DC Power Flow",
		Description:           "A linearized, non-iterative model that provides a fast approximation of real power flows.",
		Tradeoffs:             "Extremely fast and always converges. Ideal for contingency analysis and real-time markets. Ignores reactive power and losses, so it's less accurate.",
		VisualizationBehavior: "A single-step snapshot: iterating does nothing after the first step, voltages stay uniform at 1.0 p.u.",
		Metrics:               Metrics{ConvergenceTime: "0.01s", Iterations: 1, TotalPowerLoss: "N/A", VoltageDeviation: "N/A"},
		Comparison:            Comparison{Speed: 10, Accuracy: 2, Convergence: 10, PowerLoss: 10},
		MaxIterations:         1,
	})
	r.register(Descriptor{
		Key:                   string(FastDecoupledKey),
		Name:                  "Fast Decoupled",
		Description:           "A simplified version of Newton-Raphson that decouples real and reactive power calculations.",
		Tradeoffs:             "Faster per iteration and requires less memory than full Newton-Raphson. Very reliable for typical transmission systems, but less accurate for systems with high R/X ratios.",
		VisualizationBehavior: "A compromise: converges faster than Gauss-Seidel but not as quickly as Newton-Raphson, with moderately fast flow animations.",
		Metrics:               Metrics{ConvergenceTime: "0.25s", Iterations: 5, TotalPowerLoss: "1.9%", VoltageDeviation: "±2.0%"},
		Comparison:            Comparison{Speed: 7, Accuracy: 7, Convergence: 8, PowerLoss: 6},
		MaxIterations:         8,
	})
	r.register(Descriptor{
		Key:                   string(InitialGuessKey),
		Name:                  "Initial Guess",
		Description:           "No solver: shows the flat-start guess every iterative method begins from.",
		Tradeoffs:             "Instant and always \"converged\", but carries no information about the actual flows.",
		VisualizationBehavior: "Generators at their set voltage, every other bus at 1.0 p.u., no flow on any line.",
		Metrics:               Metrics{ConvergenceTime: "0s", Iterations: 1, TotalPowerLoss: "N/A", VoltageDeviation: "N/A"},
		Comparison:            Comparison{Speed: 10, Accuracy: 0, Convergence: 10, PowerLoss: 0},
		MaxIterations:         1,
	})

	return r
}

func (r *Registry) register(d Descriptor) {
	solver, err := CreateSolver(AlgorithmKey(d.Key))
	if err != nil {
		panic(err)
	}
	d.Solver = solver
	r.order = append(r.order, AlgorithmKey(d.Key))
	r.descriptors[AlgorithmKey(d.Key)] = d
}

func (r *Registry) Get(key AlgorithmKey) (Descriptor, bool) {
	d, ok := r.descriptors[key]
	return d, ok
}

// Lookup is Get with an error suited for configuration and request checks.
func (r *Registry) Lookup(key AlgorithmKey) (Descriptor, error) {
	d, ok := r.descriptors[key]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, key)
	}
	return d, nil
}

// Keys returns the registered keys in registration order.
func (r *Registry) Keys() []AlgorithmKey {
	keys := make([]AlgorithmKey, len(r.order))
	copy(keys, r.order)
	return keys
}

func (r *Registry) Descriptors() []Descriptor {
	result := make([]Descriptor, 0, len(r.order))
	for _, key := range r.order {
		result = append(result, r.descriptors[key])
	}
	return result
}

func (r *Registry) Default() AlgorithmKey {
	return NewtonRaphsonKey
}

// ComparisonRow is one metric across every method, keyed by method name.
type ComparisonRow struct {
	Metric string         `json:"metric"`
	Scores map[string]int `json:"scores"`
}

// Comparison pivots the per-method scores into per-metric rows.
func (r *Registry) Comparison() []ComparisonRow {
	metrics := []struct {
		label string
		score func(Comparison) int
	}{
		{"Speed", func(c Comparison) int { return c.Speed }},
		{"Accuracy", func(c Comparison) int { return c.Accuracy }},
		{"Convergence", func(c Comparison) int { return c.Convergence }},
		{"Power Loss", func(c Comparison) int { return c.PowerLoss }},
	}

	rows := make([]ComparisonRow, 0, len(metrics))
	for _, m := range metrics {
		row := ComparisonRow{Metric: m.label, Scores: make(map[string]int, len(r.order))}
		for _, key := range r.order {
			if key == InitialGuessKey {
				continue
			}
			d := r.descriptors[key]
			row.Scores[d.Name] = m.score(d.Comparison)
		}
		rows = append(rows, row)
	}
	return rows
}
