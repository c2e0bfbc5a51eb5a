package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

// @title Dispatch Coordination System API
// @version 1.0
// @description Real-time coordination of accident reports, responder dispatch and availability.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("dispatchd failed")
		os.Exit(1)
	}
}
