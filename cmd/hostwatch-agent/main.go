// Command hostwatch-agent registers this host with a hostwatch monitor and
// publishes its telemetry over MQTT.
//
// Usage:
//
//	hostwatch-agent -c agent.json [--log-level debug]
package main

import (
	"context"
	"os"

	"github.com/vinayprograms/hostwatch/agent"
	"github.com/vinayprograms/hostwatch/bus"
	"github.com/vinayprograms/hostwatch/cli"
	"github.com/vinayprograms/hostwatch/connection"
	"github.com/vinayprograms/hostwatch/telemetry"
)

func main() {
	cmd := cli.NewCommand(cli.Program{
		Use:   "hostwatch-agent",
		Short: "Report this host's presence and telemetry to a hostwatch monitor",
		Run:   run,
	})
	os.Exit(cli.Execute(context.Background(), cmd))
}

func run(ctx context.Context, env *cli.Env) error {
	collector := telemetry.NewSystemCollector()

	id, err := agent.ResolveID(ctx, env.Config.ID, env.Config.UseMACAsID, collector)
	if err != nil {
		return err
	}

	mgr, err := connection.New(env.Config.Connection(), bus.NewMQTTDialer(),
		connection.WithLogger(env.Log),
		connection.WithObserver(env.Metrics))
	if err != nil {
		return err
	}

	a, err := agent.New(mgr, collector, env.Config.Agent(id),
		agent.WithLogger(env.Log),
		agent.WithMetrics(env.Metrics))
	if err != nil {
		return err
	}

	env.Log.Info("starting agent", map[string]interface{}{
		"id":       a.ID(),
		"topic":    a.ReportTopic(),
		"interval": env.Config.ReportInterval.String(),
		"broker":   mgr.Config().Host,
	})
	return cli.Serve(ctx, env, mgr, a)
}
