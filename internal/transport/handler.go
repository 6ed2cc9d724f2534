package transport

import (
	"context"
	"errors"
	"log/slog"

	"github.com/simonvetter/modbus"

	"github.com/seikosantana/modbus-sim/internal/logging"
	"github.com/seikosantana/modbus-sim/internal/registers"
)

// handler answers Modbus requests from the bank.
type handler struct {
	bank   *registers.Bank
	cnt    *counters
	logger *slog.Logger
}

var _ modbus.RequestHandler = (*handler)(nil)

// HandleHoldingRegisters serves FC03, FC06 and FC16 against the bank.
// Multi-register writes are all-or-nothing.
func (h *handler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	h.cnt.inc(CntRequests)

	if req.IsWrite {
		if err := h.bank.WriteRange(int(req.Addr), req.Args); err != nil {
			return nil, h.fail(req, err)
		}
		h.cnt.inc(CntWrites)
		h.logger.Debug("holding registers written",
			"client", req.ClientAddr, "unit", req.UnitId, "addr", req.Addr, "quantity", req.Quantity)
		return nil, nil
	}

	res, err := h.bank.ReadRange(int(req.Addr), int(req.Quantity))
	if err != nil {
		return nil, h.fail(req, err)
	}
	h.cnt.inc(CntReads)
	h.logger.Log(context.Background(), logging.LevelTrace, "holding registers read",
		"client", req.ClientAddr, "unit", req.UnitId, "addr", req.Addr, "quantity", req.Quantity)
	return res, nil
}

func (h *handler) HandleInputRegisters(*modbus.InputRegistersRequest) ([]uint16, error) {
	h.cnt.inc(CntExceptions)
	return nil, modbus.ErrIllegalFunction
}

func (h *handler) HandleCoils(*modbus.CoilsRequest) ([]bool, error) {
	h.cnt.inc(CntExceptions)
	return nil, modbus.ErrIllegalFunction
}

func (h *handler) HandleDiscreteInputs(*modbus.DiscreteInputsRequest) ([]bool, error) {
	h.cnt.inc(CntExceptions)
	return nil, modbus.ErrIllegalFunction
}

// fail maps bank errors to Modbus exceptions.
func (h *handler) fail(req *modbus.HoldingRegistersRequest, err error) error {
	h.cnt.inc(CntExceptions)
	h.logger.Debug("holding register request rejected",
		"client", req.ClientAddr, "addr", req.Addr, "quantity", req.Quantity, "write", req.IsWrite, "error", err)
	if errors.Is(err, registers.ErrOutOfRange) {
		return modbus.ErrIllegalDataAddress
	}
	return modbus.ErrServerDeviceFailure
}
