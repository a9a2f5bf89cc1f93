package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"loadflow-server/internal/config"
	"loadflow-server/internal/models"
	"loadflow-server/internal/simulation"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Client struct {
	client mqtt.Client
	config config.MQTTConfig
	logger *logrus.Logger

	onConnected func(client mqtt.Client)
	onCommand   func(cmd simulation.Command)
}

// Message is one publication derived from a snapshot.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

func NewClient(cfg config.MQTTConfig, logger *logrus.Logger) *Client {
	c := &Client{
		config: cfg,
		logger: logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	// commands may run a whole solve, they must not stall the paho router
	opts.SetOrderMatters(false)

	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetOnConnectHandler(c.onConnect)

	c.client = mqtt.NewClient(opts)

	return c
}

func (c *Client) Connect() error {
	c.logger.Infof("MQTT: connecting to %s...", c.config.Broker)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.logger.Info("MQTT: connected")
	return nil
}

func (c *Client) Disconnect() {
	c.logger.Info("MQTT: disconnecting...")
	c.client.Disconnect(250)
}

// SetCallbacks registers the command handler and a hook run on every
// (re)connection, used for discovery announcements.
func (c *Client) SetCallbacks(onCommand func(simulation.Command), onConnected func(mqtt.Client)) {
	c.onCommand = onCommand
	c.onConnected = onConnected
}

func (c *Client) CommandTopic() string {
	return c.config.TopicPrefix + "/command"
}

// PublishSnapshot is meant to be registered as a controller listener.
func (c *Client) PublishSnapshot(snapshot simulation.Snapshot) {
	if !c.client.IsConnectionOpen() {
		return
	}

	messages, err := SnapshotMessages(c.config.TopicPrefix, snapshot)
	if err != nil {
		c.logger.Errorf("MQTT: failed to encode snapshot: %v", err)
		return
	}

	for _, msg := range messages {
		token := c.client.Publish(msg.Topic, 0, msg.Retained, msg.Payload)
		if token.WaitTimeout(2*time.Second) && token.Error() != nil {
			c.logger.Errorf("MQTT: failed to publish %s: %v", msg.Topic, token.Error())
		}
	}
}

// SnapshotMessages renders the full snapshot (retained) followed by one
// plain value per bus and per line, ordered by id.
func SnapshotMessages(prefix string, snapshot simulation.Snapshot) ([]Message, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}

	messages := []Message{{Topic: prefix + "/state", Payload: payload, Retained: true}}

	busIDs := maps.Keys(snapshot.State.BusVoltages)
	slices.Sort(busIDs)
	for _, id := range busIDs {
		messages = append(messages, Message{
			Topic:   BusVoltageTopic(prefix, id),
			Payload: []byte(strconv.FormatFloat(snapshot.State.BusVoltages[id], 'f', 4, 64)),
		})
	}

	lineIDs := maps.Keys(snapshot.State.LineFlows)
	slices.Sort(lineIDs)
	for _, id := range lineIDs {
		flow := snapshot.State.LineFlows[id]
		messages = append(messages, Message{
			Topic:   LineFlowTopic(prefix, id),
			Payload: []byte(strconv.FormatFloat(flow.Flow, 'f', 4, 64)),
		}, Message{
			Topic:   LineDirectionTopic(prefix, id),
			Payload: []byte(flow.Direction),
		})
	}

	return messages, nil
}

func BusVoltageTopic(prefix, busID string) string {
	return prefix + "/bus/" + busID + "/voltage"
}

func LineFlowTopic(prefix, lineID string) string {
	return prefix + "/line/" + lineID + "/flow"
}

func LineDirectionTopic(prefix, lineID string) string {
	return prefix + "/line/" + lineID + "/direction"
}

// StateTopicsFor lists the per-element topics of a grid, as used for discovery.
func StateTopicsFor(prefix string, grid *models.Grid) map[string]string {
	topics := make(map[string]string, len(grid.Buses)+len(grid.Lines))
	for _, bus := range grid.Buses {
		topics[bus.ID] = BusVoltageTopic(prefix, bus.ID)
	}
	for _, line := range grid.Lines {
		topics[line.ID] = LineFlowTopic(prefix, line.ID)
	}
	return topics
}

func (c *Client) onConnect(client mqtt.Client) {
	topic := c.CommandTopic()
	c.logger.Infof("MQTT: connected, subscribing to %s", topic)

	if token := client.Subscribe(topic, 1, c.handleCommandMessage); token.Wait() && token.Error() != nil {
		c.logger.Errorf("MQTT: failed to subscribe to command topic: %v", token.Error())
	}

	if c.onConnected != nil {
		c.onConnected(client)
	}
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Errorf("MQTT: connection lost: %v", err)
}

func (c *Client) handleCommandMessage(client mqtt.Client, msg mqtt.Message) {
	c.logger.Debugf("MQTT: received command: %s", string(msg.Payload()))

	cmd, err := simulation.ParseCommand(msg.Payload())
	if err != nil {
		c.logger.Warnf("MQTT: ignoring command on %s: %v", msg.Topic(), err)
		return
	}

	if c.onCommand != nil {
		c.onCommand(cmd)
	}
}
