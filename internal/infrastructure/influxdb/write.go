package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the recorder.
const (
	MeasurementPresence  = "presence"
	MeasurementBroadcast = "broadcast"
	MeasurementCommand   = "command"
)

// RecordPresence writes a reader online/offline transition.
//
//	presence,device_id=reader-01 online=true
func (c *Client) RecordPresence(readerID string, online bool) {
	c.writePoint(MeasurementPresence,
		map[string]string{"device_id": readerID},
		map[string]any{"online": online},
	)
}

// RecordBroadcast writes the outcome of one notification fan-out.
//
//	broadcast,topic=notifications/gate recipients=3i,failed=1i
func (c *Client) RecordBroadcast(topic string, recipients, failed int) {
	c.writePoint(MeasurementBroadcast,
		map[string]string{"topic": topic},
		map[string]any{"recipients": recipients, "failed": failed},
	)
}

// RecordCommand writes one command published to a reader.
// The topic is not stored: reader ids would explode tag cardinality.
func (c *Client) RecordCommand(kind, _ string) {
	c.writePoint(MeasurementCommand,
		map[string]string{"kind": kind},
		map[string]any{"count": 1},
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
