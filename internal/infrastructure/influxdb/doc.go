// Package influxdb records the node's sensor samples and output state to
// InfluxDB v2 for history and graphing.
//
// It is optional: when influxdb.enabled is false, Connect returns
// ErrDisabled and the node runs without history.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sampler.SetRecorder(client)
//
// Writes are non-blocking and batched (batch_size, flush_interval);
// failures are delivered to the SetOnError callback.
package influxdb
