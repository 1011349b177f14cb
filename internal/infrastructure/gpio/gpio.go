// Package gpio provides the node's buttons, switched outputs and status
// LEDs on a Linux GPIO character device, plus virtual pins for hosts
// without GPIO.
package gpio

import (
	"errors"
	"fmt"
	"sync"

	gpiod "github.com/warthog618/go-gpiocdev"
)

// ErrClosed is returned when requesting lines from a closed chip.
var ErrClosed = errors.New("gpio: chip closed")

// Chip owns a GPIO chip and every line requested from it.
type Chip struct {
	mu    sync.Mutex
	chip  *gpiod.Chip
	lines []*gpiod.Line
}

// Open opens the named chip (e.g. "gpiochip0"). consumer labels the
// requested lines in gpioinfo output.
func Open(name, consumer string) (*Chip, error) {
	chip, err := gpiod.NewChip(name, gpiod.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", name, err)
	}
	return &Chip{chip: chip}, nil
}

// Input requests offset as a pulled-up input. Buttons short the line to
// ground, so a pressed button reads 0.
func (c *Chip) Input(offset int) (*Input, error) {
	line, err := c.request(offset, gpiod.AsInput, gpiod.WithPullUp)
	if err != nil {
		return nil, err
	}
	return &Input{line: line}, nil
}

// Output requests offset as an output driven off. With activeLow the
// logical "on" drives the line low.
func (c *Chip) Output(offset int, activeLow bool) (*Output, error) {
	opts := []gpiod.LineReqOption{gpiod.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiod.AsActiveLow)
	}
	line, err := c.request(offset, opts...)
	if err != nil {
		return nil, err
	}
	return &Output{line: line}, nil
}

func (c *Chip) request(offset int, opts ...gpiod.LineReqOption) (*gpiod.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chip == nil {
		return nil, ErrClosed
	}
	line, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}
	c.lines = append(c.lines, line)
	return line, nil
}

// Close releases every requested line and the chip.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, line := range c.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", line.Offset(), err))
		}
	}
	c.lines = nil

	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}
	return errors.Join(errs...)
}

// Input is a button line.
type Input struct {
	line *gpiod.Line
}

// Value returns the raw line level (0 or 1).
func (i *Input) Value() (int, error) {
	return i.line.Value()
}

// Output is a load or LED line.
type Output struct {
	line *gpiod.Line
}

// SetValue switches the output.
func (o *Output) SetValue(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set line %d: %w", o.line.Offset(), err)
	}
	return nil
}
