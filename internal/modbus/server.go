package modbus

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"loadflow-server/internal/models"
	"loadflow-server/internal/simulation"

	"github.com/sirupsen/logrus"
	mbserver "github.com/tbrandon/mbserver"
)

// Holding register layout. Buses and lines keep grid order.
const (
	BusVoltageBase    = 0
	LineFlowBase      = 100
	IterationRegister = 200
	ConvergedRegister = 201
	RegisterCount     = 202

	maxElements = 100
)

const (
	readHoldingRegisters = 3
	// largest quantity a function 3 response can carry in its byte count
	maxReadRegisters = 125
)

type Server struct {
	grid    *models.Grid
	address string
	logger  *logrus.Logger

	mutex     sync.RWMutex
	registers []uint16

	server *mbserver.Server
}

func NewServer(address string, grid *models.Grid, logger *logrus.Logger) *Server {
	if len(grid.Buses) > maxElements || len(grid.Lines) > maxElements {
		logger.Warnf("Modbus: grid has %d buses and %d lines, only the first %d of each are mapped",
			len(grid.Buses), len(grid.Lines), maxElements)
	}

	return &Server{
		grid:      grid,
		address:   address,
		logger:    logger,
		registers: make([]uint16, RegisterCount),
	}
}

func (s *Server) Start() error {
	s.server = mbserver.NewServer()
	s.server.RegisterFunctionHandler(readHoldingRegisters, s.modbusMessageHandler)

	if err := s.server.ListenTCP(s.address); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}

	s.logger.Infof("Modbus: serving holding registers on %s", s.address)
	return nil
}

func (s *Server) Close() {
	if s.server != nil {
		s.server.Close()
	}
}

// Update is meant to be registered as a controller listener.
func (s *Server) Update(snapshot simulation.Snapshot) {
	registers := Encode(s.grid, snapshot)

	s.mutex.Lock()
	s.registers = registers
	s.mutex.Unlock()
}

// Registers returns a copy of the current register block.
func (s *Server) Registers() []uint16 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]uint16, len(s.registers))
	copy(result, s.registers)
	return result
}

// Encode lays a snapshot out as holding registers: voltages x1000, flows x100.
func Encode(grid *models.Grid, snapshot simulation.Snapshot) []uint16 {
	registers := make([]uint16, RegisterCount)

	for i, bus := range grid.Buses {
		if i >= maxElements {
			break
		}
		registers[BusVoltageBase+i] = scale(snapshot.State.BusVoltages[bus.ID], 1000)
	}

	for i, line := range grid.Lines {
		if i >= maxElements {
			break
		}
		registers[LineFlowBase+i] = scale(snapshot.State.LineFlows[line.ID].Flow, 100)
	}

	registers[IterationRegister] = uint16(snapshot.Iteration)
	if snapshot.IsConverged {
		registers[ConvergedRegister] = 1
	}

	return registers
}

func scale(value, factor float64) uint16 {
	scaled := math.Round(value * factor)
	if math.IsNaN(scaled) || scaled < 0 {
		return 0
	}
	if scaled > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(scaled)
}

func (s *Server) modbusMessageHandler(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	return s.read(frame.GetData())
}

// read answers a function 3 request: byte count followed by big-endian registers.
func (s *Server) read(request []byte) ([]byte, *mbserver.Exception) {
	if len(request) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}

	register := int(binary.BigEndian.Uint16(request[0:2]))
	numRegs := int(binary.BigEndian.Uint16(request[2:4]))

	if numRegs > maxReadRegisters {
		s.logger.Debugf("Modbus: rejecting read of %d registers, limit is %d", numRegs, maxReadRegisters)
		return []byte{}, &mbserver.IllegalDataValue
	}
	if numRegs == 0 || register+numRegs > RegisterCount {
		s.logger.Debugf("Modbus: rejecting read of %d registers at %d", numRegs, register)
		return []byte{}, &mbserver.IllegalDataAddress
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	dataSize := numRegs * 2
	data := make([]byte, 1+dataSize)
	data[0] = byte(dataSize)
	for i := 0; i < numRegs; i++ {
		binary.BigEndian.PutUint16(data[1+2*i:], s.registers[register+i])
	}

	return data, &mbserver.Success
}
