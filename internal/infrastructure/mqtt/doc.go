// Package mqtt provides MQTT broker connectivity for the checkpoint bridge.
//
// This package manages:
//   - A single, fail-stop connection to the broker (bounded connect timeout, no reconnect)
//   - Topic subscriptions with wildcard support and concurrent handler dispatch
//   - Acknowledged and fire-and-forget publishing
//   - Topic builders for the reader presence and management scheme
//
// # Architecture
//
// Card readers announce themselves on online/{id} and offline/{id} (the offline
// announcement doubles as their Last Will) and accept management messages on
// {id}/whitelist/{action}, {id}/configure/{key} and {id}/reset.
//
//	Readers ↔ MQTT Broker ↔ checkpoint bridge ↔ Telegram
//
// # Connection Policy
//
// The bridge does not reconnect. When the connection is lost the client logs,
// closes and reports StateDisconnected; Done() is closed so the owner can react.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.PresenceFilter("online"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("online: %s", payload)
//	        return nil
//	    })
//
//	client.PublishAsync(mqtt.Topics{}.Reset("reader-01"), []byte("reader-01"), 1, false)
package mqtt
