package app

import (
	"encoding/json"

	"irqlat/pkg/irqlat"
	"irqlat/pkg/mqtt"

	"github.com/womat/debug"
)

// publishResult sends the result of a test to the mqtt broker.
// It is a dispatcher listener and must not block the test.
func (app *App) publishResult(r irqlat.Result) {
	if app.config.MQTT.Connection == "" {
		return
	}
	app.sendMQTT(app.config.MQTT.Topic, r)
}

// sendMQTT send message struct to the mqtt broker.
func (app *App) sendMQTT(topic string, message interface{}) {
	go func(t string, r interface{}) {
		debug.TraceLog.Printf("prepare mqtt message %v %v", t, r)

		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			debug.ErrorLog.Printf("sendMQTT marshal: %v", err)
			return
		}

		app.mqtt.C <- mqtt.Message{
			Qos:      0,
			Retained: true,
			Topic:    t,
			Payload:  b,
		}
	}(topic, message)
}
