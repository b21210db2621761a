// Command hostwatch-monitor tracks which hosts are alive and publishes
// their availability as retained MQTT messages.
//
// Usage:
//
//	hostwatch-monitor -c monitor.json [--log-level debug]
package main

import (
	"context"
	"os"

	"github.com/vinayprograms/hostwatch/bus"
	"github.com/vinayprograms/hostwatch/cli"
	"github.com/vinayprograms/hostwatch/connection"
	"github.com/vinayprograms/hostwatch/monitor"
)

func main() {
	cmd := cli.NewCommand(cli.Program{
		Use:   "hostwatch-monitor",
		Short: "Track host liveness and publish availability",
		Run:   run,
	})
	os.Exit(cli.Execute(context.Background(), cmd))
}

func run(ctx context.Context, env *cli.Env) error {
	mgr, err := connection.New(env.Config.Connection(), bus.NewMQTTDialer(),
		connection.WithLogger(env.Log),
		connection.WithObserver(env.Metrics))
	if err != nil {
		return err
	}

	mcfg := env.Config.Monitor()
	mon, err := monitor.New(mgr, mcfg,
		monitor.WithLogger(env.Log),
		monitor.WithMetrics(env.Metrics))
	if err != nil {
		return err
	}

	env.Log.Info("starting monitor", map[string]interface{}{
		"root":           mcfg.Topics.Root(),
		"check_interval": env.Config.CheckInterval.String(),
		"static":         len(mcfg.Static),
		"broker":         mgr.Config().Host,
	})
	return cli.Serve(ctx, env, mgr, mon)
}
