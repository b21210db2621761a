package cli

import (
	"context"

	"github.com/vinayprograms/hostwatch/connection"
	"github.com/vinayprograms/hostwatch/errors"
	"github.com/vinayprograms/hostwatch/metrics"
	"github.com/vinayprograms/hostwatch/shutdown"
)

// Serve runs h on mgr until ctx is cancelled, SIGINT or SIGTERM arrives, or
// the loop stops on a fatal error. It then shuts down in phases: the event
// loop first, then the metrics endpoint. The loop's fatal error, if any, is
// returned.
func Serve(ctx context.Context, env *Env, mgr *connection.Manager, h connection.Handler) error {
	var srv *metrics.Server
	if env.Config.MetricsAddr != "" {
		srv = metrics.NewServer(env.Config.MetricsAddr, env.Metrics, env.Log)
		if err := srv.Start(); err != nil {
			return errors.Config("cannot serve metrics",
				errors.WithCause(err),
				errors.WithMetadata("addr", env.Config.MetricsAddr))
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var runErr error
	stopped := make(chan struct{})
	go func() {
		runErr = mgr.Run(loopCtx, h)
		close(stopped)
	}()

	coord := shutdown.New(shutdown.DefaultTimeout, shutdown.WithLogger(env.Log))
	coord.RegisterFunc("connection", shutdown.PhaseConnection, func(sctx context.Context) error {
		cancel()
		select {
		case <-stopped:
			return nil
		case <-sctx.Done():
			return sctx.Err()
		}
	})
	if srv != nil {
		coord.RegisterFunc("metrics", shutdown.PhaseMetrics, srv.Shutdown)
	}
	stop := coord.HandleSignals()
	defer stop()

	select {
	case <-stopped:
		_ = coord.Shutdown("event loop stopped")
	case <-ctx.Done():
		_ = coord.Shutdown("context cancelled")
	case <-coord.Done():
	}
	<-coord.Done()
	<-stopped
	return runErr
}
