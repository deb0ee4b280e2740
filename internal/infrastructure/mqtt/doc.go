// Package mqtt provides MQTT client connectivity for the macro autopilot.
//
// The broker links the autopilot to vessels it does not simulate itself
// and to anything watching the macro engine:
//
//	Vessel bridge ↔ MQTT Broker ↔ Autopilot ↔ MQTT Broker ↔ Dashboards
//
// A bridged vessel reports on macropilot/telemetry/{vessel_id} and receives
// controls on macropilot/control/{vessel_id}. The engine publishes node
// activations on macropilot/macro/{vessel_id}/activated and retained run
// status on macropilot/macro/{vessel_id}/status. The client's own
// online/offline status, including a Last Will, is retained on
// macropilot/system/status.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllMacroEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("%s: %s", topic, payload)
//	        return nil
//	    })
//
// Use TLS (mqtt.broker.tls) for any broker that is not on localhost.
package mqtt
