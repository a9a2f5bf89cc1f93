package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"loadflow-server/internal/config"
	"loadflow-server/internal/loadflow"
	"loadflow-server/internal/report"
	"loadflow-server/internal/simulation"

	"github.com/guptarohit/asciigraph"
	"github.com/sirupsen/logrus"
)

func main() {
	var gridFile string
	var algorithm string
	var delay time.Duration

	flag.StringVar(&gridFile, "grid", "", "grid file (yaml or json), reference grid when empty")
	flag.StringVar(&algorithm, "algorithm", string(loadflow.NewtonRaphsonKey), "initial algorithm")
	flag.DurationVar(&delay, "delay", 0, "simulated compute time per step")
	flag.Parse()

	fmt.Println("⚡ Load Flow Interactive Stepper")
	fmt.Println("================================")
	fmt.Println()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	cfg := &config.Config{Simulation: config.SimulationConfig{GridFile: gridFile}}
	grid, err := cfg.LoadGrid()
	if err != nil {
		logger.Fatalf("Failed to load grid: %v", err)
	}

	registry := loadflow.NewRegistry()
	controller, err := simulation.NewController(grid, registry, loadflow.AlgorithmKey(algorithm), simulation.Config{StepDelay: delay}, logger)
	if err != nil {
		logger.Fatalf("Failed to create controller: %v", err)
	}

	ctx := context.Background()
	controller.Bootstrap(ctx)

	fmt.Printf("📋 Grid: %d buses, %d lines\n", len(grid.Buses), len(grid.Lines))
	showHelp()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		snapshot := controller.Snapshot()
		fmt.Printf("\n[%s | iteration %d/%d%s] > ", snapshot.AlgorithmName, snapshot.Iteration, snapshot.MaxIterations, convergedMark(snapshot))

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(input)
		command := "step"
		if len(fields) > 0 {
			command = strings.ToLower(fields[0])
		}

		switch command {
		case "quit", "q":
			fmt.Println("👋 Bye!")
			return

		case "help", "h":
			showHelp()

		case "step", "s", "n":
			if controller.Advance(ctx) {
				showState(controller.Snapshot())
			} else {
				fmt.Println("⏹️  Nothing to do: converged or iteration cap reached")
			}

		case "run", "r":
			final := controller.RunToCompletion(ctx)
			showState(final)
			showConvergence(controller)

		case "reset":
			controller.Reset(ctx)
			fmt.Println("🔄 Run restarted")
			showState(controller.Snapshot())

		case "algos", "list":
			showAlgorithms(registry, snapshot.Algorithm)

		case "select", "use":
			if len(fields) < 2 {
				fmt.Println("❌ Usage: select <algorithm-key>")
				continue
			}
			if err := controller.SelectAlgorithm(ctx, loadflow.AlgorithmKey(fields[1])); err != nil {
				fmt.Printf("❌ %v\n", err)
				continue
			}
			fmt.Printf("✅ Switched to %s\n", controller.Snapshot().AlgorithmName)
			showState(controller.Snapshot())

		case "status":
			showState(snapshot)

		case "plot":
			bus := ""
			if len(fields) > 1 {
				bus = fields[1]
			}
			plotVoltages(controller, bus)

		case "compare":
			showComparison(registry)

		default:
			fmt.Println("❌ Unknown command. Type 'help' for the list.")
		}
	}
}

func showHelp() {
	fmt.Println("🎮 Commands:")
	fmt.Println("   <enter>, step  - Take one iteration")
	fmt.Println("   run            - Iterate until converged or capped")
	fmt.Println("   reset          - Restart the current algorithm")
	fmt.Println("   algos          - List algorithms")
	fmt.Println("   select <key>   - Switch algorithm (resets the run)")
	fmt.Println("   status         - Show voltages and flows")
	fmt.Println("   plot [bus]     - ASCII voltage trace, all buses when omitted")
	fmt.Println("   compare        - Comparison scores")
	fmt.Println("   quit           - Exit")
}

func convergedMark(snapshot simulation.Snapshot) string {
	if snapshot.IsConverged {
		return " ✅"
	}
	return ""
}

func showState(snapshot simulation.Snapshot) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("📊 %s - iteration %d/%d", snapshot.AlgorithmName, snapshot.Iteration, snapshot.MaxIterations)
	if snapshot.IsConverged {
		fmt.Printf(" ✅ converged\n")
	} else if snapshot.AtLimit() {
		fmt.Printf(" ⏹️  iteration cap reached\n")
	} else {
		fmt.Printf("\n")
	}

	for _, line := range formatVoltages(snapshot) {
		fmt.Println("   " + line)
	}
	for _, line := range formatFlows(snapshot) {
		fmt.Println("   " + line)
	}
}

func showAlgorithms(registry *loadflow.Registry, selected loadflow.AlgorithmKey) {
	for _, d := range registry.Descriptors() {
		marker := "  "
		if loadflow.AlgorithmKey(d.Key) == selected {
			marker = "👉"
		}
		fmt.Printf("%s %-16s %-15s max %2d iterations\n", marker, d.Key, d.Name, d.MaxIterations)
		fmt.Printf("      %s\n", d.Description)
	}
}

func showComparison(registry *loadflow.Registry) {
	rows := registry.Comparison()
	for _, row := range rows {
		fmt.Printf("   %-12s", row.Metric)
		for _, d := range registry.Descriptors() {
			if score, ok := row.Scores[d.Name]; ok {
				fmt.Printf("  %s %2d", d.Name, score)
			}
		}
		fmt.Println()
	}
}

func showConvergence(controller *simulation.Controller) {
	snapshot := controller.Snapshot()
	trace := report.NewTrace(controller.Grid(), snapshot.AlgorithmName, controller.History())
	if len(trace.MaxChange) < 2 {
		return
	}

	fmt.Println()
	fmt.Println(asciigraph.Plot(trace.MaxChange[1:],
		asciigraph.Height(6),
		asciigraph.Width(40),
		asciigraph.Precision(4),
		asciigraph.Caption("largest voltage change per iteration")))
}

func plotVoltages(controller *simulation.Controller, bus string) {
	snapshot := controller.Snapshot()
	trace := report.NewTrace(controller.Grid(), snapshot.AlgorithmName, controller.History())

	if len(trace.Iterations) < 2 {
		fmt.Println("ℹ️  Not enough iterations to plot yet")
		return
	}

	if bus != "" {
		series, ok := trace.Voltages[bus]
		if !ok {
			fmt.Printf("❌ Unknown bus %s\n", bus)
			return
		}
		fmt.Println(asciigraph.Plot(series,
			asciigraph.Height(8),
			asciigraph.Width(40),
			asciigraph.Precision(3),
			asciigraph.Caption(fmt.Sprintf("%s voltage (p.u.)", bus))))
		return
	}

	all := make([][]float64, 0, len(trace.BusIDs))
	for _, id := range trace.BusIDs {
		all = append(all, trace.Voltages[id])
	}
	fmt.Println(asciigraph.PlotMany(all,
		asciigraph.Height(10),
		asciigraph.Width(40),
		asciigraph.Precision(3),
		asciigraph.Caption("bus voltages (p.u.), "+strings.Join(trace.BusIDs, " "))))
}
