// Package influxdb records checkpoint bridge events in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library and implements the
// bridge's event recorder. Three measurements are written:
//
//   - presence: tag device_id, field online (bool)
//   - broadcast: tag topic, fields recipients and failed (int)
//   - command: tag kind, field count (int)
//
// Tags from influxdb.tags are added to every point.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // recorder not configured
//	}
//	defer client.Close()
//
//	client.RecordPresence("reader-01", true)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Failures
// surface asynchronously through the SetOnError callback, wrapped with
// ErrWriteFailed. Connection and health check errors are returned directly.
package influxdb
