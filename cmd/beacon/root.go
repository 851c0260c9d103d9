package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/pkg/log"
)

var (
	flagConfig   string
	flagLogLevel string
	flagLogType  string
)

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	defaults := config.Default().Node

	root := &cobra.Command{
		Use:           "beacon",
		Short:         "threshold relay random beacon node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML or TOML config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogType, "log-type", defaults.LogType, "log output (console, json)")
	_ = v.BindPFlag("node.log_level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("node.log_type", root.PersistentFlags().Lookup("log-type"))

	root.AddCommand(newRunCmd(v), newTicketsCmd(v), newKeygenCmd())
	return root
}

// loadConfig reads the configuration and sets up logging from it
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg, err := config.Load(v, flagConfig)
	if err != nil {
		return config.Config{}, err
	}
	level, err := log.ParseLogLevel(cfg.Node.LogLevel)
	if err != nil {
		return config.Config{}, fmt.Errorf("node.log_level: %w", err)
	}
	logType, err := log.ParseLoggerType(cfg.Node.LogType)
	if err != nil {
		return config.Config{}, fmt.Errorf("node.log_type: %w", err)
	}
	log.Init(log.Options{LogLevel: level, Type: logType})
	return cfg, nil
}
