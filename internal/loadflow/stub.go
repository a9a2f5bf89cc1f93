package loadflow

import (
	"loadflow-server/internal/models"
)

// Stub stands in for methods without a numeric model: it only marks the
// state as converged.
type Stub struct {
	name string
}

func NewStub(name string) *Stub {
	return &Stub{name: name}
}

func (s *Stub) GetName() string {
	return s.name
}

func (s *Stub) Step(grid *models.Grid, previous *models.AlgorithmState) models.AlgorithmState {
	if previous != nil {
		next := previous.Clone()
		next.IsConverged = true
		return next
	}

	state := models.InitialState(grid)
	state.IsConverged = true
	state.Iteration = 1
	return state
}
