package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/killallgit/skillstream/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := renderConfig(config.Get())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		if used := config.GetConfigFileUsed(); used != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "\nloaded from %s\n", used)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration to a settings file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.BuildSettingsPath("settings.yaml")
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := config.WriteSettings(path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

// renderConfig prints cfg as indented JSON with secrets masked
func renderConfig(cfg *config.Config) (string, error) {
	masked := *cfg
	if masked.Web.Token != "" {
		masked.Web.Token = "********"
	}
	if masked.History.RedisPassword != "" {
		masked.History.RedisPassword = "********"
	}
	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(data), nil
}
