package cmd

import (
	"fmt"
	"os"

	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "skillstream",
	Short: "Stream skill replies from the terminal",
	Long: `skillstream invokes a server-side skill and streams its reply, logs,
structured data and canvas content to the terminal over SSE or a
browser-extension message port.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if used := config.GetConfigFileUsed(); used != "" {
			logger.Debug("Using config file: %s", used)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.skillstream/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(configCmd)
}
