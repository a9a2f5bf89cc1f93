package main

import (
	"fmt"

	"loadflow-server/internal/simulation"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func formatVoltages(snapshot simulation.Snapshot) []string {
	ids := maps.Keys(snapshot.State.BusVoltages)
	slices.Sort(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("🔌 %-4s %.4f p.u.", id, snapshot.State.BusVoltages[id]))
	}
	return lines
}

func formatFlows(snapshot simulation.Snapshot) []string {
	ids := maps.Keys(snapshot.State.LineFlows)
	slices.Sort(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		flow := snapshot.State.LineFlows[id]
		lines = append(lines, fmt.Sprintf("〰️  %-4s %8.3f  %s", id, flow.Flow, flow.Direction))
	}
	return lines
}
