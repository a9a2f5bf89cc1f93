package homeassistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"loadflow-server/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

type Device struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
}

type ConfigurationItem struct {
	DeviceClass       DeviceClass `json:"device_class,omitempty"`
	UnitOfMeasurement Unit        `json:"unit_of_measurement,omitempty"`
	Device            Device      `json:"device"`
	StateClass        string      `json:"state_class,omitempty"`
	UniqueId          string      `json:"unique_id"`
	Name              string      `json:"name"`
	StateTopic        string      `json:"state_topic"`
	ValueTemplate     string      `json:"value_template,omitempty"`
	Options           []string    `json:"options,omitempty"`
}

// Topics tells discovery where the state of each element is published.
type Topics struct {
	BusVoltage func(busID string) string
	LineFlow   func(lineID string) string
	State      string
}

// Configuration builds one sensor per bus voltage and per line flow, plus
// iteration and convergence sensors read from the state document.
func Configuration(grid *models.Grid, deviceName string, topics Topics) []ConfigurationItem {
	device := Device{Identifiers: []string{deviceName}, Name: deviceName}
	items := make([]ConfigurationItem, 0, len(grid.Buses)+len(grid.Lines)+2)

	for _, bus := range grid.Buses {
		items = append(items, ConfigurationItem{
			// no device class: "voltage" only accepts V, mV and kV
			UnitOfMeasurement: PerUnit,
			Device:            device,
			StateClass:        "measurement",
			UniqueId:          sanitize(deviceName + "_bus_" + bus.ID),
			Name:              "Bus " + bus.ID + " voltage",
			StateTopic:        topics.BusVoltage(bus.ID),
		})
	}

	for _, line := range grid.Lines {
		items = append(items, ConfigurationItem{
			DeviceClass:       Power,
			UnitOfMeasurement: MW,
			Device:            device,
			StateClass:        "measurement",
			UniqueId:          sanitize(deviceName + "_line_" + line.ID),
			Name:              fmt.Sprintf("Line %s flow (%s-%s)", line.ID, line.From, line.To),
			StateTopic:        topics.LineFlow(line.ID),
		})
	}

	items = append(items,
		ConfigurationItem{
			Device:        device,
			StateClass:    "measurement",
			UniqueId:      sanitize(deviceName + "_iteration"),
			Name:          "Iteration",
			StateTopic:    topics.State,
			ValueTemplate: "{{ value_json.iteration }}",
		},
		ConfigurationItem{
			DeviceClass:   Enum,
			Device:        device,
			UniqueId:      sanitize(deviceName + "_converged"),
			Name:          "Converged",
			StateTopic:    topics.State,
			ValueTemplate: "{{ 'converged' if value_json.isConverged else 'iterating' }}",
			Options:       []string{"converged", "iterating"},
		},
	)

	return items
}

// ConfigTopic is where Home Assistant expects the retained sensor config.
func ConfigTopic(discoveryPrefix string, item ConfigurationItem) string {
	return discoveryPrefix + "/sensor/" + item.UniqueId + "/config"
}

func SendConfigurationToHa(client mqtt.Client, discoveryPrefix string, items []ConfigurationItem, logger *logrus.Logger) {
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			logger.Errorf("Home Assistant: failed to encode %s: %v", item.UniqueId, err)
			continue
		}
		token := client.Publish(ConfigTopic(discoveryPrefix, item), 0, true, b)
		if token.Wait() && token.Error() != nil {
			logger.Errorf("Home Assistant: failed to publish %s: %v", item.UniqueId, token.Error())
		}
	}
	logger.Infof("Home Assistant: announced %d sensors", len(items))
}

func sanitize(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
