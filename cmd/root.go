package cmd

import (
	"fmt"
	"os"

	"cohort-copilot/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "cohort-copilot",
	Short: "Cohort Copilot Service",
	Long: `Cohort Copilot answers natural-language questions about a clinical
cohort by translating them into JSON filter specs and running them against a
cached preview dataset.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Command failures are reported through the app logger. Console
		// format at debug level gets readable ISO8601 timestamps on a
		// terminal instead of the production epoch encoding.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			// Plain print if even the logger cannot be built.
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
