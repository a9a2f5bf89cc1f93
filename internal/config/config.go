package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"loadflow-server/internal/models"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Modbus     ModbusConfig     `mapstructure:"modbus"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Advisor    AdvisorConfig    `mapstructure:"advisor"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type MQTTConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Broker          string `mapstructure:"broker"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	ClientID        string `mapstructure:"client_id"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

type ModbusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type SimulationConfig struct {
	DefaultAlgorithm string        `mapstructure:"default_algorithm"`
	StepDelay        time.Duration `mapstructure:"step_delay"`
	AutoStepInterval time.Duration `mapstructure:"auto_step_interval"`
	GridFile         string        `mapstructure:"grid_file"`
}

type AdvisorConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.client_id", "loadflow-server")
	v.SetDefault("mqtt.topic_prefix", "loadflow")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("modbus.enabled", false)
	v.SetDefault("modbus.address", "0.0.0.0:5020")
	v.SetDefault("simulation.default_algorithm", "newton-raphson")
	v.SetDefault("simulation.step_delay", 200*time.Millisecond)
	v.SetDefault("simulation.auto_step_interval", time.Duration(0))
	v.SetDefault("advisor.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("advisor.model", "gemini-2.0-flash")
	v.SetDefault("advisor.timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads config.yaml from . or ./config, then environment overrides
// (server.port -> SERVER_PORT).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	return load(v)
}

// LoadFile reads an explicit config file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.MQTT.Broker == "" {
		config.MQTT.Broker = os.Getenv("MQTT_BROKER")
	}
	if config.MQTT.Username == "" {
		config.MQTT.Username = os.Getenv("MQTT_USERNAME")
	}
	if config.MQTT.Password == "" {
		config.MQTT.Password = os.Getenv("MQTT_PASSWORD")
	}
	if config.Advisor.APIKey == "" {
		config.Advisor.APIKey = os.Getenv("ADVISOR_API_KEY")
	}

	if config.Simulation.StepDelay < 0 {
		return nil, fmt.Errorf("simulation.step_delay must not be negative, got %s", config.Simulation.StepDelay)
	}

	return &config, nil
}

// LoadGrid returns the grid the solver runs on: the reference network unless
// a grid file (yaml or json) is configured. The grid is validated either way.
func (c *Config) LoadGrid() (*models.Grid, error) {
	if c.Simulation.GridFile == "" {
		return models.ReferenceGrid(), nil
	}
	return LoadGridFile(c.Simulation.GridFile)
}

func LoadGridFile(path string) (*models.Grid, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading grid file %s: %w", path, err)
	}

	var grid models.Grid
	if err := v.Unmarshal(&grid); err != nil {
		return nil, fmt.Errorf("error unmarshaling grid file %s: %w", path, err)
	}

	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("grid file %s: %w", path, err)
	}

	return &grid, nil
}
