package main

import (
	"testing"

	"loadflow-server/internal/loadflow"
	"loadflow-server/internal/models"
	"loadflow-server/internal/simulation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	state := loadflow.NewDCPowerFlow().Step(models.ReferenceGrid(), nil)
	snapshot := simulation.Snapshot{State: state}

	voltages := formatVoltages(snapshot)
	require.Len(t, voltages, 6)
	assert.Contains(t, voltages[0], "B1")
	assert.Contains(t, voltages[0], "1.0000 p.u.")

	flows := formatFlows(snapshot)
	require.Len(t, flows, 8)
	assert.Contains(t, flows[2], "L3")
	assert.Contains(t, flows[2], "12.500")
	assert.Contains(t, flows[2], "to-from")
}
