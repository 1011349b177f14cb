// Package mqtt provides the node's broker connection.
//
// This package manages:
//   - Connection to the broker, with auto-reconnect once established
//   - Message publishing with per-message QoS and retain
//   - The command subscription, restored on reconnect
//   - A retained online/offline marker on {base}/{id}/status, with the
//     Last Will set to "offline"
//
// Topic names are built by Topics:
//
//	{base}/{id}/data      sensor readings     QoS 0
//	{base}/{id}/state     outputs and mode    QoS 1, retained
//	{base}/{id}/info      identity            QoS 1, retained
//	{base}/{id}/response  command replies     QoS 1, retained
//	{base}/{id}/command   inbound commands
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, mqtt.Topics{Base: "base", DeviceID: id})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Publish(client.Topics().State(), payload, 1, true)
package mqtt
