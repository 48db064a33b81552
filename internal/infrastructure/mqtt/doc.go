// Package mqtt connects Showrunner to an MQTT broker.
//
// The broker is used two ways:
//   - EventSink republishes domain events so dashboards and other
//     controllers can follow routine activity.
//   - Client.Subscribe feeds mqtt triggers, letting any device or panel
//     that speaks MQTT fire a routine.
//
// # Topics
//
// All topics live under the configured prefix (default "showrunner"):
//
//	showrunner/status                          online/offline, retained (LWT)
//	showrunner/events/{entity}/{id}/{action}   one message per domain event
//
// where action is the event kind without its entity prefix, so
// "routine:completed" for routine "opening" goes to
// showrunner/events/routine/opening/completed.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	relay.Subscribe(mqtt.NewEventSink(client, cfg.MQTT.TopicPrefix, 0))
package mqtt
