// Package display renders a periodic snapshot of the node for local
// viewing. Rendering targets are pluggable: the node ships a structured
// log renderer and a renderer that broadcasts to websocket clients.
package display

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/connectivity"
	"github.com/nerrad567/gray-logic-node/internal/device"
	"github.com/nerrad567/gray-logic-node/internal/mode"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
	"github.com/nerrad567/gray-logic-node/internal/session"
)

// DefaultInterval is the render period.
const DefaultInterval = time.Second

// Snapshot is everything one frame shows.
type Snapshot struct {
	Sensors    sensor.Sample       `json:"sensors"`
	HasSample  bool                `json:"has_sample"`
	Mode       string              `json:"mode"`
	Outputs    device.State        `json:"outputs"`
	Network    connectivity.Status `json:"network"`
	Session    session.State       `json:"session"`
	RenderedAt time.Time           `json:"rendered_at"`
}

// Lines formats the snapshot as short text rows for a character display.
func (s Snapshot) Lines() []string {
	sensors := "T --.-C H --.-%"
	light := "L ----"
	if s.HasSample {
		sensors = fmt.Sprintf("T %.1fC H %.1f%%", s.Sensors.Temperature, s.Sensors.Humidity)
		light = fmt.Sprintf("L %d", s.Sensors.Light)
	}
	return []string{
		sensors,
		light + " " + s.Mode,
		fmt.Sprintf("F%d L%d A%d", onOff(s.Outputs.Fan), onOff(s.Outputs.Light), onOff(s.Outputs.AC)),
		"WiFi " + s.Network.State.String(),
		"MQTT " + s.Session.String(),
	}
}

func onOff(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Renderer draws one frame.
type Renderer interface {
	Render(ctx context.Context, snap Snapshot) error
}

// Sources are read on every frame. Nil sources render as empty.
type Sources struct {
	Sensors *sensor.Store
	Mode    interface{ Get() mode.Mode }
	Outputs interface{ State() device.State }
	Network interface{ Status() connectivity.Status }
	Session interface{ State() session.State }
}

// Logger defines the logging interface used by the Display.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Display periodically captures a Snapshot and hands it to each renderer.
type Display struct {
	sources   Sources
	renderers []Renderer
	interval  time.Duration
	logger    Logger
	now       func() time.Time
}

// New creates a display. A non-positive interval selects DefaultInterval.
func New(sources Sources, interval time.Duration, renderers ...Renderer) *Display {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Display{
		sources:   sources,
		renderers: renderers,
		interval:  interval,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for render failures.
func (d *Display) SetLogger(l Logger) {
	d.logger = l
}

// Run renders immediately and then every interval until ctx is cancelled.
func (d *Display) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.RenderOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RenderOnce(ctx)
		}
	}
}

// RenderOnce captures a snapshot and renders it. A failing renderer does
// not prevent the others from drawing.
func (d *Display) RenderOnce(ctx context.Context) Snapshot {
	snap := d.Capture()
	for _, r := range d.renderers {
		if err := r.Render(ctx, snap); err != nil {
			d.logger.Warn("render failed", "error", err)
		}
	}
	return snap
}

// Capture reads every source. A sensor store that is busy or empty leaves
// HasSample false.
func (d *Display) Capture() Snapshot {
	snap := Snapshot{Mode: mode.Off.String(), RenderedAt: d.now()}

	if d.sources.Sensors != nil {
		sample, err := d.sources.Sensors.Get()
		switch {
		case err == nil:
			snap.Sensors, snap.HasSample = sample, true
		case errors.Is(err, sensor.ErrNotInitialized):
		default:
			d.logger.Debug("sensor store unavailable for display", "error", err)
		}
	}
	if d.sources.Mode != nil {
		snap.Mode = d.sources.Mode.Get().String()
	}
	if d.sources.Outputs != nil {
		snap.Outputs = d.sources.Outputs.State()
	}
	if d.sources.Network != nil {
		snap.Network = d.sources.Network.Status()
	}
	if d.sources.Session != nil {
		snap.Session = d.sources.Session.State()
	}
	return snap
}
