// Package protocol defines the hostwatch topic layout and the registration
// message exchanged between agents and the monitor.
//
// All topics live under a single root (default "monitoring"):
//
//	/<root>/register              agent → monitor, registration JSON
//	/<root>/reregister            monitor → agents, "true"
//	/<root>/<id>/isUp             monitor → any, "true" | "false" (retained)
//	/<root>/<id>/systemInfo       agent → monitor, telemetry snapshot JSON
//	/<root>/<id>/hostInfo         agent → any, static host info (retained)
package protocol
