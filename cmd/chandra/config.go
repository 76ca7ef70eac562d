package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LastGentlman/chandra/internal/api"
	"github.com/LastGentlman/chandra/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config to the home directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		if h.ConfigExists() && !configInitForce {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", h.ConfigPath())
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", h.ConfigPath())
		return nil
	},
}

var configShowDefaults bool

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging defaults, the config file and
CHANDRA_* environment overrides. With --defaults, list every key with its
default and description instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configShowDefaults {
			return api.Output(config.DefaultEntries())
		}

		h, err := getHome()
		if err != nil {
			return err
		}
		cfgMgr, err := loadConfig(h, newLogger())
		if err != nil {
			return err
		}
		return api.Output(cfgMgr.Get())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config")
	configShowCmd.Flags().BoolVar(&configShowDefaults, "defaults", false, "List keys with defaults and descriptions")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
