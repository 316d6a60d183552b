package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stackwatch/stackwatch/internal/config"
	"github.com/stackwatch/stackwatch/internal/logging"
	"github.com/stackwatch/stackwatch/internal/sys/proc"
	"github.com/stackwatch/stackwatch/pkg/version"
)

var (
	flagConfigFile string
	flagLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "stackwatch [command...]",
	Short: "Stackwatch - sampling profiler for running Python processes",
	Long: `Estimate where a running Python process spends its time without
stopping or instrumenting it.

Stackwatch attaches an external debugger to the target, periodically
captures its Python-level call stack, and turns presence counts for the
functions you name into execution-time estimates with error bounds.

Commands given on the command line are executed as the first shell
command, so 'stackwatch start -p 1234 -f handle_request' attaches and
starts sampling immediately.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		return NewShell(cfg, logger).Run(args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default ~/.stackwatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")

	// Arguments after the command name belong to the shell command, not
	// to cobra, so 'stackwatch start -p 1234' must not have -p eaten here.
	rootCmd.Flags().SetInterspersed(false)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newPsCmd())
}

// setup loads configuration and builds the root logger shared by every
// component.
func setup() (*config.Config, zerolog.Logger, error) {
	loader := config.NewLoader()

	var (
		cfg *config.Config
		err error
	)
	if flagConfigFile != "" {
		cfg, err = loader.LoadFile(flagConfigFile)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("failed to load config: %w", err)
	}

	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Pretty = cfg.Logging.Pretty
	logger := logging.New(logCfg)

	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Stackwatch version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List running Python processes that can be profiled",
		RunE: func(cmd *cobra.Command, args []string) error {
			procs, err := proc.FindPython()
			if err != nil {
				return fmt.Errorf("failed to list processes: %w", err)
			}
			if len(procs) == 0 {
				cmd.Println("No Python processes found.")
				return nil
			}
			renderProcesses(cmd.OutOrStdout(), procs)
			return nil
		},
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
