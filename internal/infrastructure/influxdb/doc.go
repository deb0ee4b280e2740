// Package influxdb records macro engine ticks in InfluxDB.
//
// It wraps influxdb-client-go v2 with connection management, batched
// non-blocking writes and health checks. The *Client satisfies the macro
// engine's MetricsWriter, so every tick becomes a macro_tick point with the
// vessel's position, attitude and any values the active node reported.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	engine := macro.NewEngine(engineCfg, macro.Deps{Metrics: client})
//
// Writes are batched by the batch_size and flush_interval settings.
package influxdb
