// ABOUTME: Root cobra command and helpers shared by subcommands
// ABOUTME: Resolves the config path from --config, MOLTBOT_CONFIG, or the XDG default

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389/moltbot-gateway/internal/config"
	"github.com/2389/moltbot-gateway/internal/gateway"
)

const banner = `
                 _ _           _
 _ __ ___   ___ | | |_| |__   ___ | |_
| '_ ' _ \ / _ \| | __| '_ \ / _ \| __|
| | | | | | (_) | | |_| |_) | (_) | |_
|_| |_| |_|\___/|_|\__|_.__/ \___/ \__|
`

func newRootCmd(v string) *cobra.Command {
	version = v
	gateway.Version = v

	root := &cobra.Command{
		Use:           "moltbot-gateway",
		Short:         "moltbot gateway: control plane for agents, channels, and operator clients",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (default $MOLTBOT_CONFIG or $XDG_CONFIG_HOME/moltbot/gateway.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newPasswordCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newClientsCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// configPath returns the path selected by the persistent --config flag.
func configPath(cmd *cobra.Command) (string, error) {
	flagValue, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	return config.ResolvePath(flagValue)
}

// loadConfig resolves and loads the config for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "moltbot-gateway", version)
		},
	}
}
