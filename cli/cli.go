package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/hostwatch/config"
	"github.com/vinayprograms/hostwatch/errors"
	"github.com/vinayprograms/hostwatch/logging"
	"github.com/vinayprograms/hostwatch/metrics"
)

// Env is what a Program receives once configuration has loaded.
type Env struct {
	Config  *config.Config
	Log     *logging.Logger
	Metrics *metrics.Metrics
}

// Program describes one binary.
type Program struct {
	Use   string
	Short string
	Long  string

	// Run starts the process and blocks until it stops.
	Run func(ctx context.Context, env *Env) error
}

// NewCommand builds the root command for p.
func NewCommand(p Program) *cobra.Command {
	var (
		configFile string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           p.Use,
		Short:         p.Short,
		Long:          p.Long,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Flags parsed; from here on errors are not usage problems.
			cmd.SilenceUsage = true

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				if _, err := logging.ParseLevel(logLevel); err != nil {
					return errors.Config(err.Error(), errors.WithMetadata("flag", "log-level"))
				}
				cfg.LogLevel = logLevel
			}

			log := logging.New()
			log.SetOutput(cmd.OutOrStdout())
			log.SetLevel(cfg.Level())

			env := &Env{Config: cfg, Log: log}
			if cfg.MetricsAddr != "" {
				env.Metrics = metrics.New()
			}

			if err := p.Run(cmd.Context(), env); err != nil {
				if errors.As(err) != nil {
					return err
				}
				return errors.Wrap(err, p.Use+" stopped")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "configFile", "c", "", "path to the JSON configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("configFile")
	return cmd
}

// Execute runs cmd with ctx and returns the process exit code. Errors that
// cobra raises before the program starts (unknown or missing flags) map to
// errors.ExitConfig.
func Execute(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return errors.ExitOK
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	if errors.As(err) == nil {
		return errors.ExitConfig
	}
	return errors.ExitCode(err)
}
