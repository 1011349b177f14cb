package session

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-node/internal/device"
	"github.com/nerrad567/gray-logic-node/internal/mode"
)

// handler executes one command. A nil error yields a success response.
type handler func(ctx context.Context, cmd Command) error

func (m *Manager) handlers() map[string]handler {
	return map[string]handler{
		"set_device":    m.cmdSetDevice,
		"set_devices":   m.cmdSetDevices,
		"set_mode":      m.cmdSetMode,
		"set_interval":  m.cmdSetInterval,
		"set_timestamp": m.cmdSetTimestamp,
		"get_status":    m.cmdGetStatus,
		"reboot":        m.cmdReboot,
		"factory_reset": m.cmdFactoryReset,
	}
}

// Dispatch parses and executes one inbound payload and returns the single
// response for it. Commands are executed one at a time.
func (m *Manager) Dispatch(ctx context.Context, payload []byte) Response {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	cmd, err := ParseCommand(payload)
	if err != nil {
		m.logger.Warn("rejecting malformed command", "cmd_id", cmd.ID, "error", err)
		return errorResponse(cmd.ID, err)
	}

	h, ok := m.handlers()[cmd.Name]
	if !ok {
		m.logger.Warn("unknown command", "cmd_id", cmd.ID, "command", cmd.Name)
		return errorResponse(cmd.ID, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Name))
	}

	m.logger.Info("processing command", "cmd_id", cmd.ID, "command", cmd.Name)
	if err := h(ctx, cmd); err != nil {
		m.logger.Warn("command failed", "cmd_id", cmd.ID, "command", cmd.Name, "error", err)
		return errorResponse(cmd.ID, err)
	}
	return Response{CmdID: cmd.ID, Status: StatusSuccess}
}

func errorResponse(id string, err error) Response {
	return Response{CmdID: id, Status: StatusError, Message: err.Error()}
}

func (m *Manager) cmdSetDevice(_ context.Context, cmd Command) error {
	name, err := cmd.Params.String("device", "")
	if err != nil {
		return err
	}
	out, err := device.ParseOutput(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	state, err := cmd.Params.Int("state", 0)
	if err != nil {
		return err
	}
	return m.deps.Device.SetOutput(out, state > 0)
}

func (m *Manager) cmdSetDevices(_ context.Context, cmd Command) error {
	var vals [3]int
	for i, key := range []string{"fan", "light", "ac"} {
		v, err := cmd.Params.Int(key, -1)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	m.deps.Device.SetOutputs(vals[0], vals[1], vals[2])
	return nil
}

func (m *Manager) cmdSetMode(ctx context.Context, cmd Command) error {
	v, err := cmd.Params.Int("mode", 0)
	if err != nil {
		return err
	}
	if err := m.deps.Mode.Set(ctx, mode.Mode(v)); err != nil {
		if errors.Is(err, mode.ErrInvalidMode) {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		return err
	}
	return nil
}

func (m *Manager) cmdSetInterval(ctx context.Context, cmd Command) error {
	v, err := cmd.Params.Int("interval", 0)
	if err != nil {
		return err
	}
	if err := m.deps.Device.SetInterval(ctx, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	m.resetDataTimer()
	return nil
}

func (m *Manager) cmdSetTimestamp(_ context.Context, cmd Command) error {
	v, err := cmd.Params.Int("timestamp", 0)
	if err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("%w: timestamp must be positive", ErrInvalidParams)
	}
	// Epoch seconds only; a millisecond value would wrap to the 1970s.
	if int64(v) > math.MaxUint32 {
		return fmt.Errorf("%w: timestamp %d exceeds 32-bit epoch seconds", ErrInvalidParams, v)
	}
	m.deps.Clock.Set(uint32(v))
	m.logger.Info("clock set", "timestamp", v)
	return nil
}

func (m *Manager) cmdGetStatus(ctx context.Context, _ Command) error {
	m.publishData(ctx)
	m.publishState(ctx)
	m.publishInfo(ctx)
	return nil
}

func (m *Manager) cmdReboot(_ context.Context, _ Command) error {
	return m.deferTask("reboot", func(context.Context) error {
		m.deps.Rebooter.Reboot("remote command")
		return nil
	})
}

func (m *Manager) cmdFactoryReset(_ context.Context, _ Command) error {
	if m.deps.FactoryReset == nil {
		return fmt.Errorf("%w: factory reset not available", ErrUnknownCommand)
	}
	return m.deferTask("factory_reset", m.deps.FactoryReset)
}

// deferTask hands blocking work to the input worker.
func (m *Manager) deferTask(name string, run func(context.Context) error) error {
	if !m.deps.Tasks.Submit(name, run) {
		return ErrBusy
	}
	return nil
}
