package main

import (
	"fmt"

	"github.com/nerrad567/gray-logic-node/internal/device"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/gpio"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/input"
	"github.com/nerrad567/gray-logic-node/internal/status"
)

// gpioConsumer labels requested lines in gpioinfo output.
const gpioConsumer = "graylogic-node"

// pinSet is the node's physical I/O: buttons, switched loads and
// status LEDs.
type pinSet struct {
	buttons    map[input.Button]input.Pin
	outputs    device.Switches
	indicators status.Indicators
	chip       *gpio.Chip
}

// Close releases the GPIO lines. A virtual pin set has nothing to release.
func (p *pinSet) Close() error {
	if p.chip == nil {
		return nil
	}
	return p.chip.Close()
}

// openPins requests the configured lines, or builds virtual pins when
// GPIO is disabled.
func openPins(cfg *config.Config, log *logging.Logger) (*pinSet, error) {
	if !cfg.GPIO.Enabled {
		log.Info("GPIO disabled, using virtual pins")
		return virtualPins(log.Component("gpio")), nil
	}

	chip, err := gpio.Open(cfg.GPIO.Chip, gpioConsumer)
	if err != nil {
		return nil, fmt.Errorf("opening gpio: %w", err)
	}
	pins, err := requestPins(chip, cfg)
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("requesting gpio lines: %w", err)
	}
	log.Info("GPIO lines requested", "chip", cfg.GPIO.Chip)
	return pins, nil
}

func requestPins(chip *gpio.Chip, cfg *config.Config) (*pinSet, error) {
	p := &pinSet{buttons: make(map[input.Button]input.Pin), chip: chip}

	buttons := map[input.Button]int{
		input.Mode:      cfg.Input.Buttons.Mode,
		input.LinkReset: cfg.Input.Buttons.LinkReset,
		input.OutputA:   cfg.Input.Buttons.OutputA,
		input.OutputB:   cfg.Input.Buttons.OutputB,
		input.OutputC:   cfg.Input.Buttons.OutputC,
	}
	for b, offset := range buttons {
		in, err := chip.Input(offset)
		if err != nil {
			return nil, fmt.Errorf("button %s: %w", b, err)
		}
		p.buttons[b] = in
	}

	output := func(name string, offset int, activeLow bool) (*gpio.Output, error) {
		out, err := chip.Output(offset, activeLow)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return out, nil
	}

	var err error
	if p.outputs.Fan, err = output("fan", cfg.Outputs.Fan, cfg.Outputs.ActiveLow); err != nil {
		return nil, err
	}
	if p.outputs.Light, err = output("light", cfg.Outputs.Light, cfg.Outputs.ActiveLow); err != nil {
		return nil, err
	}
	if p.outputs.AC, err = output("ac", cfg.Outputs.AC, cfg.Outputs.ActiveLow); err != nil {
		return nil, err
	}
	if p.indicators.Mode, err = output("mode led", cfg.Indicators.Mode, false); err != nil {
		return nil, err
	}
	if p.indicators.Link, err = output("link led", cfg.Indicators.Link, false); err != nil {
		return nil, err
	}
	if p.indicators.Session, err = output("session led", cfg.Indicators.Session, false); err != nil {
		return nil, err
	}
	return p, nil
}

// virtualPins backs every line with an in-memory pin. Buttons never read
// pressed; output and LED changes are logged.
func virtualPins(log gpio.Logger) *pinSet {
	p := &pinSet{buttons: make(map[input.Button]input.Pin)}
	for _, b := range []input.Button{input.Mode, input.LinkReset, input.OutputA, input.OutputB, input.OutputC} {
		p.buttons[b] = gpio.NewVirtualInput()
	}
	p.outputs = device.Switches{
		Fan:   gpio.NewVirtualOutput("fan", log),
		Light: gpio.NewVirtualOutput("light", log),
		AC:    gpio.NewVirtualOutput("ac", log),
	}
	p.indicators = status.Indicators{
		Mode:    gpio.NewVirtualOutput("mode_led", log),
		Link:    gpio.NewVirtualOutput("link_led", log),
		Session: gpio.NewVirtualOutput("session_led", log),
	}
	return p
}
