// Package agent implements the hostwatch host agent.
//
// An Agent is a connection.Handler. On every connect it registers with the
// monitor, subscribes to re-registration requests, publishes its static
// host info (retained) and starts the report timer. Each tick collects a
// telemetry snapshot off the event loop and publishes it to the report
// topic; a tick that finds the previous collection still running is skipped.
package agent
