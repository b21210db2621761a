// Package monitor implements the hostwatch liveness monitor.
//
// A Monitor is a connection.Handler. On every connect it subscribes to the
// register topic, the availability wildcard and every known report topic,
// broadcasts a re-registration request, and starts the sweep timer:
//
//	mgr, _ := connection.New(connCfg, bus.NewMQTTDialer())
//	mon, _ := monitor.New(mgr, monitor.Config{Topics: topics})
//	err := mgr.Run(ctx, mon)
//
// Availability is published retained on /<root>/<id>/isUp. Non-empty values
// on availability topics that no tracked participant owns are cleared.
package monitor
