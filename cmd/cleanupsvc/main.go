package main

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/rfid-relay/configs"
	"github.com/avvvet/rfid-relay/internal/relaysvc/maintenance"
	"github.com/avvvet/rfid-relay/internal/relaysvc/store"
)

const SERVICE_NAME = "cleanup"

var settings *config.MaintenanceConfig

func init() {
	config.LoadEnv(SERVICE_NAME)

	s, err := config.LoadMaintenance()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	settings = s

	// one-shot command, log to stdout
	config.Logging(SERVICE_NAME+"_service", "", settings.Log.Level)
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cardStore, txStore, closeStore, err := store.Open(ctx, settings.Store)
	if err != nil {
		log.Errorf("Failed to configure store: %v", err)
		os.Exit(1)
	}
	defer closeStore()

	report, err := maintenance.Cleanup(ctx, cardStore, txStore, settings.DryRun)
	if err != nil {
		log.Errorf("Cleanup failed: %v", err)
		closeStore()
		os.Exit(1)
	}

	if report.DryRun {
		log.Infof("dry run, nothing written: %s", report)
		return
	}
	log.Infof("cleanup complete: %s", report)
}
