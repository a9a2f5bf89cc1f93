package metrics

import (
	"fmt"
	"net/http"

	"loadflow-server/internal/simulation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes simulation progress as Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	StepsTotal  *prometheus.CounterVec
	RunsTotal   *prometheus.CounterVec
	Iteration   prometheus.Gauge
	Converged   prometheus.Gauge
	StepRunning prometheus.Gauge
	BusVoltage  *prometheus.GaugeVec
	LineFlow    *prometheus.GaugeVec
}

// NewCollector registers the metrics against reg, the default registerer when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	steps, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loadflow_steps_total",
		Help: "Committed solver steps, by algorithm.",
	}, []string{"algorithm"}), "loadflow_steps_total")
	if err != nil {
		return nil, err
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loadflow_runs_total",
		Help: "Runs started by an algorithm switch or reset, by algorithm.",
	}, []string{"algorithm"}), "loadflow_runs_total")
	if err != nil {
		return nil, err
	}

	iteration, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadflow_iteration",
		Help: "Iteration of the current snapshot.",
	}), "loadflow_iteration")
	if err != nil {
		return nil, err
	}

	converged, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadflow_converged",
		Help: "1 when the current snapshot is converged.",
	}), "loadflow_converged")
	if err != nil {
		return nil, err
	}

	running, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loadflow_step_in_flight",
		Help: "1 while a step is being computed.",
	}), "loadflow_step_in_flight")
	if err != nil {
		return nil, err
	}

	voltage, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loadflow_bus_voltage_pu",
		Help: "Bus voltage magnitude in per-unit.",
	}, []string{"bus"}), "loadflow_bus_voltage_pu")
	if err != nil {
		return nil, err
	}

	flow, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loadflow_line_flow",
		Help: "Line flow magnitude.",
	}, []string{"line"}), "loadflow_line_flow")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:    gatherer,
		StepsTotal:  steps,
		RunsTotal:   runs,
		Iteration:   iteration,
		Converged:   converged,
		StepRunning: running,
		BusVoltage:  voltage,
		LineFlow:    flow,
	}, nil
}

// Observe is meant to be registered as a controller listener.
func (c *Collector) Observe(snapshot simulation.Snapshot) {
	if c == nil {
		return
	}

	algorithm := string(snapshot.Algorithm)

	if snapshot.IsRunning {
		c.StepRunning.Set(1)
		return
	}
	c.StepRunning.Set(0)

	if snapshot.Iteration == 0 {
		c.RunsTotal.WithLabelValues(algorithm).Inc()
	} else {
		c.StepsTotal.WithLabelValues(algorithm).Inc()
	}

	c.Iteration.Set(float64(snapshot.Iteration))
	if snapshot.IsConverged {
		c.Converged.Set(1)
	} else {
		c.Converged.Set(0)
	}

	for id, v := range snapshot.State.BusVoltages {
		c.BusVoltage.WithLabelValues(id).Set(v)
	}
	for id, f := range snapshot.State.LineFlows {
		c.LineFlow.WithLabelValues(id).Set(f.Flow)
	}
}

func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler serves the collector's gatherer in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Gatherer(), promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
