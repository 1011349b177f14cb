package input

import (
	"context"
	"fmt"
)

// Button identifies a logical button.
type Button int

const (
	Mode Button = iota
	LinkReset
	OutputA
	OutputB
	OutputC
)

// String returns the button name used in logs.
func (b Button) String() string {
	switch b {
	case Mode:
		return "MODE"
	case LinkReset:
		return "LINK_RESET"
	case OutputA:
		return "OUTPUT_A"
	case OutputB:
		return "OUTPUT_B"
	case OutputC:
		return "OUTPUT_C"
	default:
		return fmt.Sprintf("Button(%d)", int(b))
	}
}

// Kind tags an Event.
type Kind int

const (
	KindButton Kind = iota
	KindTask
)

// Task is deferred work submitted by another component.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Event is either a button press or a Task.
type Event struct {
	Kind   Kind
	Button Button
	Task   Task
}

// Name describes the event for logs.
func (e Event) Name() string {
	if e.Kind == KindTask {
		return "task:" + e.Task.Name
	}
	return e.Button.String()
}

// Pressed builds a button event.
func Pressed(b Button) Event {
	return Event{Kind: KindButton, Button: b}
}
