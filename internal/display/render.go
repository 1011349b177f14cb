package display

import (
	"context"
	"slices"
)

// EventSnapshot is the broadcast channel name for display frames.
const EventSnapshot = "display.snapshot"

// LogRenderer writes the frame's text rows to a logger whenever they change.
type LogRenderer struct {
	logger interface {
		Info(msg string, args ...any)
	}
	last []string
}

// NewLogRenderer returns a renderer logging through l.
func NewLogRenderer(l interface{ Info(msg string, args ...any) }) *LogRenderer {
	return &LogRenderer{logger: l}
}

// Render logs the rows if they differ from the last frame.
func (r *LogRenderer) Render(_ context.Context, snap Snapshot) error {
	lines := snap.Lines()
	if slices.Equal(lines, r.last) {
		return nil
	}
	r.last = lines
	r.logger.Info("display", "lines", lines)
	return nil
}

// Broadcaster fans a payload out on a named channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Frame is the broadcast form of a snapshot, with its text rows.
type Frame struct {
	Snapshot
	Lines []string `json:"lines"`
}

// BroadcastRenderer publishes every frame to websocket subscribers.
type BroadcastRenderer struct {
	b Broadcaster
}

// NewBroadcastRenderer returns a renderer publishing frames on EventSnapshot.
func NewBroadcastRenderer(b Broadcaster) *BroadcastRenderer {
	return &BroadcastRenderer{b: b}
}

func (r *BroadcastRenderer) Render(_ context.Context, snap Snapshot) error {
	r.b.Broadcast(EventSnapshot, Frame{Snapshot: snap, Lines: snap.Lines()})
	return nil
}
