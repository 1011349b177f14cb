package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-node/internal/device"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
)

// Measurement names.
const (
	measurementSensors = "sensors"
	measurementState   = "device_state"
)

// RecordSample queues one sensor sample. It satisfies sensor.Recorder.
//
// The write is non-blocking; errors surface through SetOnError.
// A disconnected client drops the sample.
func (c *Client) RecordSample(_ context.Context, s sensor.Sample) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(samplePoint(c.deviceID, s, time.Now()))
	return nil
}

// RecordState queues the output and mode state after a change.
func (c *Client) RecordState(st device.State, modeOn bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statePoint(c.deviceID, st, modeOn, time.Now()))
}

// samplePoint uses the sample's own timestamp when the node clock has one.
func samplePoint(deviceID string, s sensor.Sample, now time.Time) *write.Point {
	ts := now
	if s.Timestamp > 0 {
		ts = time.Unix(int64(s.Timestamp), 0)
	}
	return write.NewPoint(
		measurementSensors,
		map[string]string{"device_id": deviceID},
		map[string]any{
			"temperature": s.Temperature,
			"humidity":    s.Humidity,
			"light":       int64(s.Light),
			"valid":       s.Valid,
		},
		ts,
	)
}

func statePoint(deviceID string, st device.State, modeOn bool, now time.Time) *write.Point {
	return write.NewPoint(
		measurementState,
		map[string]string{"device_id": deviceID},
		map[string]any{
			"mode":     modeOn,
			"fan":      st.Fan,
			"light":    st.Light,
			"ac":       st.AC,
			"interval": int64(st.Interval),
		},
		now,
	)
}
