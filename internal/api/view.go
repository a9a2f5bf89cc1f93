package api

import (
	"math"

	"loadflow-server/internal/models"
	"loadflow-server/internal/simulation"
)

type BusView struct {
	ID           string         `json:"id"`
	X            float64        `json:"x"`
	Y            float64        `json:"y"`
	Type         models.BusType `json:"type"`
	Power        float64        `json:"power"`
	Voltage      float64        `json:"voltage"`
	PulseSeconds float64        `json:"pulseSeconds"`
}

type LineView struct {
	ID              string               `json:"id"`
	From            string               `json:"from"`
	To              string               `json:"to"`
	Flow            float64              `json:"flow"`
	Direction       models.FlowDirection `json:"direction"`
	ParticleSeconds float64              `json:"particleSeconds"`
	ParticleCount   int                  `json:"particleCount"`
	StrokeWidth     float64              `json:"strokeWidth"`
}

// View is the grid drawing of one snapshot with its animation hints.
type View struct {
	Algorithm   string     `json:"algorithm"`
	Iteration   int        `json:"iteration"`
	IsConverged bool       `json:"isConverged"`
	IsRunning   bool       `json:"isRunning"`
	Buses       []BusView  `json:"buses"`
	Lines       []LineView `json:"lines"`
}

func NewView(grid *models.Grid, snapshot simulation.Snapshot) View {
	view := View{
		Algorithm:   snapshot.AlgorithmName,
		Iteration:   snapshot.Iteration,
		IsConverged: snapshot.IsConverged,
		IsRunning:   snapshot.IsRunning,
		Buses:       make([]BusView, 0, len(grid.Buses)),
		Lines:       make([]LineView, 0, len(grid.Lines)),
	}

	for _, bus := range grid.Buses {
		voltage := snapshot.State.BusVoltages[bus.ID]
		view.Buses = append(view.Buses, BusView{
			ID:           bus.ID,
			X:            bus.X,
			Y:            bus.Y,
			Type:         bus.Type,
			Power:        bus.Power,
			Voltage:      voltage,
			PulseSeconds: pulseSeconds(voltage),
		})
	}

	for _, line := range grid.Lines {
		flow := snapshot.State.LineFlows[line.ID]
		view.Lines = append(view.Lines, LineView{
			ID:              line.ID,
			From:            line.From,
			To:              line.To,
			Flow:            flow.Flow,
			Direction:       flow.Direction,
			ParticleSeconds: particleSeconds(flow.Flow),
			ParticleCount:   particleCount(flow.Flow),
			StrokeWidth:     strokeWidth(flow.Flow),
		})
	}

	return view
}

// higher voltage pulses faster
func pulseSeconds(voltage float64) float64 {
	return 2 / math.Max(0.1, voltage)
}

func particleSeconds(flow float64) float64 {
	return 5 / math.Max(0.1, flow)
}

func particleCount(flow float64) int {
	return int(math.Min(5, math.Ceil(flow/2)))
}

func strokeWidth(flow float64) float64 {
	return 1 + math.Log(1+flow)*1.5
}
