package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loadflow-server/internal/loadflow"
	"loadflow-server/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Snapshot is the read-only view handed to presentation consumers.
type Snapshot struct {
	RunID         string                `json:"runId"`
	Algorithm     loadflow.AlgorithmKey `json:"algorithm"`
	AlgorithmName string                `json:"algorithmName"`
	State         models.AlgorithmState `json:"state"`
	Iteration     int                   `json:"iteration"`
	MaxIterations int                   `json:"maxIterations"`
	IsConverged   bool                  `json:"isConverged"`
	IsRunning     bool                  `json:"isRunning"`
	Epoch         uint64                `json:"epoch"`
}

// AtLimit reports whether no further step will be taken.
func (s Snapshot) AtLimit() bool {
	return s.IsConverged || s.Iteration >= s.MaxIterations
}

type Config struct {
	// StepDelay is the artificial compute latency of one step, 0 disables it.
	StepDelay time.Duration
	// AutoStepInterval makes Start advance on a ticker, 0 disables auto-play.
	AutoStepInterval time.Duration
}

type Controller struct {
	grid     *models.Grid
	registry *loadflow.Registry
	config   Config
	logger   *logrus.Logger

	mutex      sync.RWMutex
	selected   loadflow.Descriptor
	history    []models.AlgorithmState
	iteration  int
	inFlight   bool
	epoch      uint64
	runID      string
	cancelStep context.CancelFunc

	listeners []func(Snapshot)
}

func NewController(grid *models.Grid, registry *loadflow.Registry, algorithm loadflow.AlgorithmKey, cfg Config, logger *logrus.Logger) (*Controller, error) {
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("controller grid: %w", err)
	}

	descriptor, err := registry.Lookup(algorithm)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		grid:     grid,
		registry: registry,
		config:   cfg,
		logger:   logger,
	}
	c.resetLocked(descriptor)

	return c, nil
}

// AddListener registers a callback invoked after every committed step and
// every reset. Callbacks run outside the controller lock.
func (c *Controller) AddListener(fn func(Snapshot)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) Grid() *models.Grid {
	return c.grid
}

func (c *Controller) Registry() *loadflow.Registry {
	return c.registry
}

func (c *Controller) Snapshot() Snapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.snapshotLocked()
}

// History returns the snapshots of the current run, indexed by iteration.
func (c *Controller) History() []models.AlgorithmState {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make([]models.AlgorithmState, len(c.history))
	copy(result, c.history)
	return result
}

// Bootstrap performs the first step of a fresh run so that consumers never
// see the raw initial guess as the current result. The step outlives the
// caller's ctx: only a newer run (epoch) can abandon it.
func (c *Controller) Bootstrap(ctx context.Context) bool {
	c.mutex.RLock()
	fresh := c.iteration == 0
	c.mutex.RUnlock()

	if !fresh {
		return false
	}
	return c.Advance(context.WithoutCancel(ctx))
}

// SelectAlgorithm switches method. History is discarded, any step in flight
// is orphaned, and the new run is bootstrapped.
func (c *Controller) SelectAlgorithm(ctx context.Context, key loadflow.AlgorithmKey) error {
	descriptor, err := c.registry.Lookup(key)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	if descriptor.Key == c.selected.Key {
		c.mutex.Unlock()
		return nil
	}
	previous := c.selected.Key
	c.resetLocked(descriptor)
	snapshot := c.snapshotLocked()
	c.mutex.Unlock()

	c.logger.Infof("Controller: switched algorithm %s -> %s (run %s)", previous, descriptor.Key, snapshot.RunID)
	c.notify(snapshot)

	c.Bootstrap(ctx)
	return nil
}

// Reset restarts the current method from the initial guess.
func (c *Controller) Reset(ctx context.Context) {
	c.mutex.Lock()
	c.resetLocked(c.selected)
	snapshot := c.snapshotLocked()
	c.mutex.Unlock()

	c.logger.Infof("Controller: reset %s (run %s)", snapshot.Algorithm, snapshot.RunID)
	c.notify(snapshot)

	c.Bootstrap(ctx)
}

// Advance takes one step. It returns false without doing anything when the
// run is converged, at its iteration cap, or another step is in flight. A
// step whose run was replaced while it was computing is discarded.
func (c *Controller) Advance(ctx context.Context) bool {
	c.mutex.Lock()
	current := c.history[c.iteration]
	if c.inFlight || current.IsConverged || c.iteration >= c.selected.MaxIterations {
		c.mutex.Unlock()
		return false
	}

	c.inFlight = true
	epoch := c.epoch
	descriptor := c.selected
	stepCtx, cancel := context.WithCancel(ctx)
	c.cancelStep = cancel
	running := c.snapshotLocked()
	c.mutex.Unlock()
	defer cancel()

	c.notify(running)

	if err := c.wait(stepCtx); err != nil {
		c.mutex.Lock()
		sameRun := c.epoch == epoch
		if sameRun {
			c.inFlight = false
			c.cancelStep = nil
		}
		idle := c.snapshotLocked()
		c.mutex.Unlock()

		c.logger.Debugf("Controller: step %d of %s abandoned: %v", running.Iteration+1, descriptor.Key, err)
		if sameRun {
			c.notify(idle)
		}
		return false
	}

	next := descriptor.Solver.Step(c.grid, &current)

	c.mutex.Lock()
	if c.epoch != epoch {
		c.mutex.Unlock()
		c.logger.Debugf("Controller: discarding stale %s result for epoch %d", descriptor.Key, epoch)
		return false
	}
	c.history = append(c.history, next)
	c.iteration++
	c.inFlight = false
	c.cancelStep = nil
	snapshot := c.snapshotLocked()
	c.mutex.Unlock()

	c.logger.Debugf("Controller: %s iteration %d/%d converged=%t",
		descriptor.Key, snapshot.Iteration, snapshot.MaxIterations, snapshot.IsConverged)
	c.notify(snapshot)

	return true
}

// RunToCompletion advances until the run converges, hits its cap, or a step
// is refused.
func (c *Controller) RunToCompletion(ctx context.Context) Snapshot {
	for c.Advance(ctx) {
	}
	return c.Snapshot()
}

// Start runs the auto-play loop until ctx is cancelled. Without an
// AutoStepInterval it only waits.
func (c *Controller) Start(ctx context.Context) {
	if c.config.AutoStepInterval <= 0 {
		c.logger.Info("Controller: auto-play disabled, stepping on demand")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(c.config.AutoStepInterval)
	defer ticker.Stop()

	c.logger.Infof("Controller: auto-play every %s", c.config.AutoStepInterval)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping simulation controller")
			return
		case <-ticker.C:
			c.Advance(ctx)
		}
	}
}

func (c *Controller) wait(ctx context.Context) error {
	if c.config.StepDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(c.config.StepDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Controller) resetLocked(descriptor loadflow.Descriptor) {
	if c.cancelStep != nil {
		c.cancelStep()
		c.cancelStep = nil
	}
	c.epoch++
	c.selected = descriptor
	c.history = []models.AlgorithmState{models.InitialState(c.grid)}
	c.iteration = 0
	c.inFlight = false
	c.runID = uuid.NewString()
}

func (c *Controller) snapshotLocked() Snapshot {
	state := c.history[c.iteration]
	return Snapshot{
		RunID:         c.runID,
		Algorithm:     loadflow.AlgorithmKey(c.selected.Key),
		AlgorithmName: c.selected.Name,
		State:         state,
		Iteration:     c.iteration,
		MaxIterations: c.selected.MaxIterations,
		IsConverged:   state.IsConverged,
		IsRunning:     c.inFlight,
		Epoch:         c.epoch,
	}
}

func (c *Controller) notify(snapshot Snapshot) {
	c.mutex.RLock()
	listeners := make([]func(Snapshot), len(c.listeners))
	copy(listeners, c.listeners)
	c.mutex.RUnlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}
