package main

import (
	"github.com/spf13/cobra"

	"github.com/Elzor/vstorage/internal/config"
)

var configPath string

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vstorage",
		Short: "The little block engine that could!",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a HuJSON config file")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(serveCmd())
	root.AddCommand(compactNowCmd())
	root.AddCommand(statusCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(configPath, cmd.Flags())
}
