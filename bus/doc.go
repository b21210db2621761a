// Package bus provides the publish/subscribe transport used by hostwatch.
//
// # Available Implementations
//
//   - MQTTDialer: broker sessions over MQTT using the Eclipse Paho client,
//     with the client's own auto-reconnect switched off
//   - MemoryBroker: an in-process broker with retained messages and MQTT
//     wildcard matching, for tests and single-process use
//
// # Topics
//
// Topic levels are separated by '/'. Subscription filters may use '+'
// (exactly one level) and '#' (all remaining levels):
//
//	/monitoring/+/isUp     matches /monitoring/h1/isUp
//	/monitoring/#          matches everything under /monitoring
//
// # Retained Messages
//
// Publishing with PublishOptions{Retain: true} stores the value on the
// broker; new subscribers receive it immediately with Message.Retained set.
// Publishing an empty retained payload removes the stored value.
//
// # Sessions
//
// A Client never reconnects by itself. When the session drops, the Events
// sink receives ConnectionLost and the owner decides whether and when to
// dial again.
package bus
