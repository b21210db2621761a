// Package shutdown stops a hostwatch process in order.
//
// Handlers are registered with a phase; lower phases run first and handlers
// sharing a phase run concurrently. The binaries use two phases:
//
//	PhaseConnection  cancel the event loop, which stops every timer and
//	                 disconnects from the broker
//	PhaseMetrics     stop the /metrics endpoint
//
// SIGINT and SIGTERM start the sequence; so does the event loop returning
// on its own after a fatal error.
//
//	coord := shutdown.New(10*time.Second, shutdown.WithLogger(log))
//	coord.RegisterFunc("connection", shutdown.PhaseConnection, stopLoop)
//	coord.RegisterFunc("metrics", shutdown.PhaseMetrics, srv.Shutdown)
//	stop := coord.HandleSignals()
//	defer stop()
//	<-coord.Done()
package shutdown
