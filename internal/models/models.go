package models

import (
	"errors"
	"fmt"
)

var ErrInvalidGrid = errors.New("invalid grid")

type BusType string

const (
	GeneratorBus BusType = "generator"
	LoadBus      BusType = "load"
	JunctionBus  BusType = "bus"
)

func (t BusType) Valid() bool {
	switch t {
	case GeneratorBus, LoadBus, JunctionBus:
		return true
	}
	return false
}

// Bus is a node of the grid. Voltage is the known terminal voltage (p.u.) of
// a generator, 0 when unknown. Power is the signed real power injection,
// positive for generation and negative for consumption.
type Bus struct {
	ID      string  `json:"id" mapstructure:"id"`
	X       float64 `json:"x" mapstructure:"x"`
	Y       float64 `json:"y" mapstructure:"y"`
	Type    BusType `json:"type" mapstructure:"type"`
	Voltage float64 `json:"voltage,omitempty" mapstructure:"voltage"`
	Power   float64 `json:"power,omitempty" mapstructure:"power"`
}

func (b Bus) IsGenerator() bool {
	return b.Type == GeneratorBus
}

// Line is a transmission link. From/To only fix the reference direction used
// when reporting flows.
type Line struct {
	ID        string  `json:"id" mapstructure:"id"`
	From      string  `json:"from" mapstructure:"from"`
	To        string  `json:"to" mapstructure:"to"`
	Impedance float64 `json:"impedance" mapstructure:"impedance"`
}

func (l Line) Admittance() float64 {
	return 1 / l.Impedance
}

// Touches returns the bus at the other end of the line when busID is one of
// its endpoints.
func (l Line) Touches(busID string) (string, bool) {
	switch busID {
	case l.From:
		return l.To, true
	case l.To:
		return l.From, true
	}
	return "", false
}

type Grid struct {
	Buses []Bus  `json:"buses" mapstructure:"buses"`
	Lines []Line `json:"lines" mapstructure:"lines"`
}

func (g *Grid) Validate() error {
	buses := make(map[string]struct{}, len(g.Buses))
	for i, bus := range g.Buses {
		if bus.ID == "" {
			return fmt.Errorf("%w: bus #%d has no id", ErrInvalidGrid, i)
		}
		if _, dup := buses[bus.ID]; dup {
			return fmt.Errorf("%w: duplicate bus id %q", ErrInvalidGrid, bus.ID)
		}
		if !bus.Type.Valid() {
			return fmt.Errorf("%w: bus %s has unknown type %q", ErrInvalidGrid, bus.ID, bus.Type)
		}
		buses[bus.ID] = struct{}{}
	}

	lines := make(map[string]struct{}, len(g.Lines))
	for i, line := range g.Lines {
		if line.ID == "" {
			return fmt.Errorf("%w: line #%d has no id", ErrInvalidGrid, i)
		}
		if _, dup := lines[line.ID]; dup {
			return fmt.Errorf("%w: duplicate line id %q", ErrInvalidGrid, line.ID)
		}
		if _, ok := buses[line.From]; !ok {
			return fmt.Errorf("%w: line %s starts at unknown bus %q", ErrInvalidGrid, line.ID, line.From)
		}
		if _, ok := buses[line.To]; !ok {
			return fmt.Errorf("%w: line %s ends at unknown bus %q", ErrInvalidGrid, line.ID, line.To)
		}
		lines[line.ID] = struct{}{}
	}

	return nil
}

func (g *Grid) Bus(id string) (Bus, bool) {
	for _, bus := range g.Buses {
		if bus.ID == id {
			return bus, true
		}
	}
	return Bus{}, false
}

func (g *Grid) BusesOfType(t BusType) []Bus {
	var result []Bus
	for _, bus := range g.Buses {
		if bus.Type == t {
			result = append(result, bus)
		}
	}
	return result
}

// ReferenceGrid returns the 6-bus, 8-line demonstration network. Every call
// builds a fresh value so callers may keep it without sharing slices.
func ReferenceGrid() *Grid {
	return &Grid{
		Buses: []Bus{
			{ID: "B1", X: 100, Y: 200, Type: GeneratorBus, Voltage: 1.05, Power: 1.5},
			{ID: "B2", X: 250, Y: 100, Type: JunctionBus},
			{ID: "B3", X: 400, Y: 200, Type: LoadBus, Power: -1.0},
			{ID: "B4", X: 550, Y: 100, Type: GeneratorBus, Voltage: 1.0, Power: 1.0},
			{ID: "B5", X: 400, Y: 400, Type: LoadBus, Power: -0.8},
			{ID: "B6", X: 250, Y: 500, Type: JunctionBus},
		},
		Lines: []Line{
			{ID: "L1", From: "B1", To: "B2", Impedance: 0.1},
			{ID: "L2", From: "B2", To: "B3", Impedance: 0.12},
			{ID: "L3", From: "B2", To: "B4", Impedance: 0.08},
			{ID: "L4", From: "B4", To: "B5", Impedance: 0.09},
			{ID: "L5", From: "B5", To: "B6", Impedance: 0.11},
			{ID: "L6", From: "B1", To: "B6", Impedance: 0.15},
			{ID: "L7", From: "B2", To: "B6", Impedance: 0.1},
			{ID: "L8", From: "B4", To: "B3", Impedance: 0.13},
		},
	}
}
