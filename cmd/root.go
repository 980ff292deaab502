package cmd

import (
	"fmt"
	"os"

	"github.com/portal-orchestrator/config"
	"github.com/portal-orchestrator/lib/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "portal-orchestrator",
	Short: "Student project build & deploy orchestrator",
	Long:  "Builds student repositories into images with Kaniko jobs and rolls them out to the student namespaces.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnv()
		logger.Init(config.GetEnvBool("LOG_DEV", false))
	},
}

// Execute runs the root command
func Execute() {
	defer func() { _ = zap.L().Sync() }()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "An error occurred: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
