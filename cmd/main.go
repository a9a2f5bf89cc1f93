package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"loadflow-server/internal/advisor"
	"loadflow-server/internal/api"
	"loadflow-server/internal/config"
	"loadflow-server/internal/homeassistant"
	"loadflow-server/internal/loadflow"
	"loadflow-server/internal/metrics"
	"loadflow-server/internal/modbus"
	"loadflow-server/internal/mqtt"
	"loadflow-server/internal/simulation"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := config.NewLogger(cfg.Log)
	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Infof("Starting load flow server with config: %+v", cfg.Simulation)

	grid, err := cfg.LoadGrid()
	if err != nil {
		logger.Fatalf("Failed to load grid: %v", err)
	}

	registry := loadflow.NewRegistry()

	controller, err := simulation.NewController(grid, registry, loadflow.AlgorithmKey(cfg.Simulation.DefaultAlgorithm), simulation.Config{
		StepDelay:        cfg.Simulation.StepDelay,
		AutoStepInterval: cfg.Simulation.AutoStepInterval,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to create simulation controller: %v", err)
	}

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		logger.Fatalf("Failed to register metrics: %v", err)
	}
	controller.AddListener(collector.Observe)

	recommender := advisor.NewAdvisor(cfg.Advisor, registry, logger)

	apiServer := api.NewServer(cfg.Server, controller, recommender, collector, logger)
	controller.AddListener(apiServer.Hub().Broadcast)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	if cfg.Modbus.Enabled {
		modbusServer := modbus.NewServer(cfg.Modbus.Address, grid, logger)
		controller.AddListener(modbusServer.Update)
		if err := modbusServer.Start(); err != nil {
			logger.Fatalf("Failed to start Modbus server: %v", err)
		}
		defer modbusServer.Close()
	}

	if cfg.MQTT.Enabled {
		mqttClient := mqtt.NewClient(cfg.MQTT, logger)
		discovery := homeassistant.Configuration(grid, "loadflow", homeassistant.Topics{
			BusVoltage: func(id string) string { return mqtt.BusVoltageTopic(cfg.MQTT.TopicPrefix, id) },
			LineFlow:   func(id string) string { return mqtt.LineFlowTopic(cfg.MQTT.TopicPrefix, id) },
			State:      cfg.MQTT.TopicPrefix + "/state",
		})

		mqttClient.SetCallbacks(
			func(cmd simulation.Command) {
				if err := controller.Execute(ctx, cmd); err != nil {
					logger.Warnf("MQTT: command %s failed: %v", cmd.Action, err)
				}
			},
			func(client pahomqtt.Client) {
				if cfg.MQTT.DiscoveryPrefix != "" {
					homeassistant.SendConfigurationToHa(client, cfg.MQTT.DiscoveryPrefix, discovery, logger)
				}
				mqttClient.PublishSnapshot(controller.Snapshot())
			},
		)
		controller.AddListener(mqttClient.PublishSnapshot)

		if err := mqttClient.Connect(); err != nil {
			logger.Fatalf("Failed to connect to MQTT: %v", err)
		}
		defer mqttClient.Disconnect()
	}

	controller.Bootstrap(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(ctx); err != nil {
			logger.Errorf("API server error: %v", err)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		controller.Start(ctx)
	}()

	logger.Info("All services started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Received shutdown signal")
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down...")
	cancel()

	wg.Wait()
	logger.Info("Shutdown complete")
}
