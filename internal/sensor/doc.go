// Package sensor holds the node's shared sensor cache and the task that fills it.
//
// The Store is the single point of exchange between the sampling task
// (the only writer) and every reader: the session publisher, the local
// display and the local API. Reads and writes take a bounded-wait lock and
// copy the sample in or out, so no reader ever holds the lock during slow
// downstream work.
//
// Partial failure is per sensor: a failed humidity read leaves the cached
// humidity at its last good value and clears the aggregate Valid flag.
//
// Usage:
//
//	store := sensor.NewStore(100 * time.Millisecond)
//	sampler := sensor.NewSampler(store, sensor.Sensors{
//	    Temperature: sensor.NewIIOSensor("/sys/bus/iio/devices/iio:device0/in_temp_input", 0.001),
//	    Clock:       sensor.NewSystemClock(),
//	}, outputs.Interval)
//	go sampler.Run(ctx)
//
//	sample, err := store.Get()
package sensor
