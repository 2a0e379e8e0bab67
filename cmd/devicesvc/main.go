package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/rfid-relay/configs"
	"github.com/avvvet/rfid-relay/internal/devicesvc"
	"github.com/avvvet/rfid-relay/internal/hwlink"
)

const SERVICE_NAME = "device"

var settings *config.DeviceConfig

func init() {
	config.LoadEnv(SERVICE_NAME)

	s, err := config.LoadDevice()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	settings = s

	config.Logging(SERVICE_NAME+"_service", settings.Log.Dir, settings.Log.Level)
}

func main() {
	instanceId := config.CreateUniqueInstance(SERVICE_NAME)

	balance, err := decimal.NewFromString(settings.Device.DefaultBalance)
	if err != nil {
		log.Fatalf("Invalid DEVICE_DEFAULT_BALANCE: %v", err)
	}

	prefix := settings.Hardware.TopicPrefix
	will := &hwlink.Will{Topic: prefix + devicesvc.DeviceStatusSuffix, Payload: "offline"}

	ch, err := hwlink.Open(settings.Hardware, SERVICE_NAME+"-"+instanceId, will)
	if err != nil {
		log.Errorf("Error: unable to open hardware link %v", err)
		os.Exit(1)
	}
	defer ch.Close()

	reader := devicesvc.NewReader(ch, prefix, balance)
	if err := reader.Start(); err != nil {
		log.Errorf("Error: unable to start reader %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	uid := settings.Device.UID
	log.Infof("holding card %s for %d heartbeats", uid, settings.Device.Heartbeats)
	if err := reader.Hold(ctx, uid, settings.Device.Heartbeats, settings.Device.HeartbeatInterval); err != nil {
		log.Warnf("heartbeats interrupted: %v", err)
	}
	if settings.Device.SendRemoved {
		if err := reader.Remove(uid); err != nil {
			log.Errorf("Error publishing removal: %v", err)
		}
	}

	// keep answering topups until stopped
	health := time.NewTicker(60 * time.Second)
	defer health.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infof("%s service stopped", SERVICE_NAME)
			return
		case <-health.C:
			if err := reader.PublishHealth(instanceId); err != nil {
				log.Warnf("health report failed: %v", err)
			}
		}
	}
}
