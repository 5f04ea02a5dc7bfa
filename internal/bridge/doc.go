// Package bridge connects the MQTT broker with the Telegram chat channel.
//
// Inbound broker messages are classified by their first topic level:
//
//	online/<id>   → reader marked online
//	offline/<id>  → reader marked offline
//	anything else → "Received message: ..." sent to every subscriber
//
// Inbound chat messages register the sender (welcoming them once) and are
// then dispatched as commands, which may publish reader management messages.
//
// The broker connection is fail-stop: once lost, the bridge reports
// Disconnected and stays that way; chat handling keeps working and command
// publishes fail with mqtt.ErrNotConnected.
package bridge
