package influxdb

import (
	"math"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint records a point stamped now. The macro engine writes one per
// tick, tagged with the vessel, macro and active node.
//
// Example:
//
//	client.WritePoint("macro_tick",
//	    map[string]string{"vessel_id": "lander-1", "macro": "Landing", "node": "Hold attitude"},
//	    map[string]interface{}{"tick": 42, "heading": -90.0})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime records a point with an explicit timestamp.
//
// Non-finite float fields are dropped since line protocol cannot carry
// them; a point left with no fields is not written.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if p := buildPoint(measurement, tags, fields, timestamp); p != nil {
		c.writeAPI.WritePoint(p)
	}
}

func buildPoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) *write.Point {
	clean := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			continue
		}
		clean[k] = v
	}
	if len(clean) == 0 {
		return nil
	}

	cleanTags := make(map[string]string, len(tags))
	for k, v := range tags {
		if v != "" {
			cleanTags[k] = v
		}
	}
	return write.NewPoint(measurement, cleanTags, clean, ts)
}
