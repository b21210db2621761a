// Package cli holds what hostwatch-agent and hostwatch-monitor share: the
// cobra command with its flags, configuration and logger setup, the process
// lifecycle around the connection event loop, and the mapping from errors
// to exit codes.
package cli
