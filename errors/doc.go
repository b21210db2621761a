// Package errors provides the structured error taxonomy used by hostwatch.
//
// # Error Categories
//
// Errors are classified into three categories:
//
//   - Transient: the condition may clear on its own (a dropped broker connection)
//   - Permanent: retrying the same input will not help (bad config, malformed payload)
//   - Internal: unexpected failures indicating a bug
//
// # Error Codes
//
//   - CONFIG: malformed or missing configuration, including static clients
//     without an id or report topic
//   - RESOLUTION: the broker host name could not be resolved
//   - CONNECT: transport-level failure talking to the broker
//   - PROTOCOL_PARSE: an inbound message could not be decoded
//   - CONFLICT: a registration collides with a configured participant
//
// # Fatal Errors
//
// Components never exit the process. Conditions the process cannot recover
// from are returned as errors marked fatal; the entry point turns them into
// an exit code with ExitCode:
//
//	if err := manager.Run(ctx, handler); err != nil {
//	    log.Fatal(err.Error(), nil)
//	    os.Exit(errors.ExitCode(err))
//	}
package errors
