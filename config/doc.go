// Package config loads the settings shared by hostwatch-agent and
// hostwatch-monitor.
//
// Values are layered in this order, later layers winning:
//
//  1. built-in defaults
//  2. the JSON configuration file (comments and trailing commas allowed)
//  3. HOSTWATCH_* environment variables
//  4. broker credentials from a TOML credentials file
//
// Durations are written as integer milliseconds or Go duration strings:
//
//	{
//	  "host": "broker.lan",
//	  "reportInterval": 5000,    // ms
//	  "checkInterval": "10s",
//	  "clients": [{"id": "nas", "systemTopic": "/monitoring/nas/systemInfo"}]
//	}
package config
