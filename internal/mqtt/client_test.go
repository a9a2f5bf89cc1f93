package mqtt

import (
	"encoding/json"
	"testing"

	"loadflow-server/internal/config"
	"loadflow-server/internal/loadflow"
	"loadflow-server/internal/models"
	"loadflow-server/internal/simulation"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotMessages(t *testing.T) {
	grid := models.ReferenceGrid()
	state := loadflow.NewDCPowerFlow().Step(grid, nil)
	snapshot := simulation.Snapshot{
		Algorithm:     loadflow.DCPowerFlowKey,
		State:         state,
		Iteration:     state.Iteration,
		MaxIterations: 1,
		IsConverged:   true,
	}

	messages, err := SnapshotMessages("loadflow", snapshot)
	require.NoError(t, err)

	// state + 6 buses + 8 lines * (flow, direction)
	require.Len(t, messages, 1+6+16)

	assert.Equal(t, "loadflow/state", messages[0].Topic)
	assert.True(t, messages[0].Retained)
	var decoded simulation.Snapshot
	require.NoError(t, json.Unmarshal(messages[0].Payload, &decoded))
	assert.Equal(t, loadflow.DCPowerFlowKey, decoded.Algorithm)
	assert.True(t, decoded.IsConverged)

	assert.Equal(t, "loadflow/bus/B1/voltage", messages[1].Topic)
	assert.Equal(t, "1.0000", string(messages[1].Payload))
	assert.Equal(t, "loadflow/bus/B6/voltage", messages[6].Topic)

	assert.Equal(t, "loadflow/line/L1/flow", messages[7].Topic)
	assert.Equal(t, "5.0000", string(messages[7].Payload))
	assert.Equal(t, "loadflow/line/L1/direction", messages[8].Topic)
	assert.Equal(t, "from-to", string(messages[8].Payload))
	assert.Equal(t, "loadflow/line/L3/flow", messages[11].Topic)
	assert.Equal(t, "12.5000", string(messages[11].Payload))
	assert.Equal(t, "to-from", string(messages[12].Payload))
}

func TestStateTopicsFor(t *testing.T) {
	topics := StateTopicsFor("grid", models.ReferenceGrid())

	assert.Len(t, topics, 14)
	assert.Equal(t, "grid/bus/B3/voltage", topics["B3"])
	assert.Equal(t, "grid/line/L8/flow", topics["L8"])
}

func TestNewClient_CommandsDoNotBlockRouter(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	c := NewClient(config.MQTTConfig{Broker: "tcp://127.0.0.1:1883", ClientID: "test", TopicPrefix: "grid"}, logger)

	reader := c.client.OptionsReader()
	assert.False(t, reader.Order())
	assert.Equal(t, "grid/command", c.CommandTopic())
}
