package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shenikar/dispatch_coordination_system/internal/config"
	"github.com/shenikar/dispatch_coordination_system/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "dispatchd",
	Short:         "Dispatch coordination service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// setup загружает конфигурацию и создает логгер
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.LogLevel), nil
}
