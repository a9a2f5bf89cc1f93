package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"loadflow-server/internal/simulation"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Drives a running load flow server over MQTT, without docker or a UI.
func main() {
	var broker string
	var prefix string
	var interactive bool

	flag.StringVar(&broker, "broker", "tcp://localhost:1883", "mqtt broker")
	flag.StringVar(&prefix, "prefix", "loadflow", "topic prefix of the server")
	flag.BoolVar(&interactive, "i", false, "interactive mode after the scenario")
	flag.Parse()

	fmt.Println("🧪 Load Flow MQTT Driver")
	fmt.Println("========================")
	fmt.Println()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("loadflow-driver")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("❌ Cannot connect to MQTT (%s)", broker)
		log.Printf("💡 Make sure a broker is running:")
		log.Printf("   docker run -it -p 1883:1883 eclipse-mosquitto:2.0")
		log.Printf("Error: %s", token.Error().Error())
		return
	}
	defer client.Disconnect(250)

	fmt.Printf("✅ Connected to MQTT broker: %s\n", broker)
	fmt.Println()

	commandTopic := prefix + "/command"
	client.Subscribe(prefix+"/state", 0, func(client mqtt.Client, msg mqtt.Message) {
		var snapshot simulation.Snapshot
		if err := json.Unmarshal(msg.Payload(), &snapshot); err != nil {
			fmt.Printf("⚠️  Unreadable state: %v\n", err)
			return
		}
		fmt.Println("   " + describe(snapshot))
	})

	scenarios := []struct {
		step     string
		command  simulation.Command
		wait     time.Duration
		expected string
	}{
		{"1. Newton-Raphson", simulation.Command{Action: simulation.ActionSelect, Algorithm: "newton-raphson"}, 2 * time.Second, "run reset then bootstrapped to iteration 1"},
		{"2. One step", simulation.Command{Action: simulation.ActionAdvance}, 2 * time.Second, "iteration 2"},
		{"3. Run to the cap", simulation.Command{Action: simulation.ActionRun}, 3 * time.Second, "iteration 5, not converged"},
		{"4. Gauss-Seidel", simulation.Command{Action: simulation.ActionSelect, Algorithm: "gauss-seidel"}, 2 * time.Second, "iteration 1"},
		{"5. Run to convergence", simulation.Command{Action: simulation.ActionRun}, 5 * time.Second, "converged at iteration 11"},
		{"6. DC power flow", simulation.Command{Action: simulation.ActionSelect, Algorithm: "dc-power-flow"}, 2 * time.Second, "converged at iteration 1"},
		{"7. Step on DC", simulation.Command{Action: simulation.ActionAdvance}, 2 * time.Second, "no change"},
	}

	for _, scenario := range scenarios {
		fmt.Printf("📊 %s\n", scenario.step)
		fmt.Printf("   Expected: %s\n", scenario.expected)

		publishCommand(client, commandTopic, scenario.command)
		time.Sleep(scenario.wait)
		fmt.Println()
	}

	fmt.Println("✅ Scenario complete")

	if interactive {
		interactiveMode(client, commandTopic)
	}
}

func describe(snapshot simulation.Snapshot) string {
	status := ""
	switch {
	case snapshot.IsRunning:
		status = " ⏳ computing"
	case snapshot.IsConverged:
		status = " ✅ converged"
	}
	return fmt.Sprintf("📥 %s iteration %d/%d%s", snapshot.AlgorithmName, snapshot.Iteration, snapshot.MaxIterations, status)
}

func publishCommand(client mqtt.Client, topic string, cmd simulation.Command) {
	payload, _ := json.Marshal(cmd)

	token := client.Publish(topic, 1, false, payload)
	token.Wait()

	fmt.Printf("📡 Published: %s\n", string(payload))
}

func interactiveMode(client mqtt.Client, topic string) {
	fmt.Println()
	fmt.Println("🎮 Interactive mode")
	fmt.Println("===================")
	fmt.Println("  advance | run | reset | select:<key> - forwarded as is")
	fmt.Println("  quit                                 - exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("🎮 > ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())

		switch input {
		case "":
			continue
		case "quit", "exit", "q":
			fmt.Println("👋 Bye!")
			return
		}

		cmd, err := simulation.ParseCommand([]byte(input))
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			continue
		}
		publishCommand(client, topic, cmd)
	}
}
