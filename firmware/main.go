//go:build tinygo

//go:generate tinygo flash -target=pico-w -ldflags "-X main.ssid=$GASMON_WIFI_SSID -X main.passphrase=$GASMON_WIFI_PASSPHRASE -X main.apiKey=$GASMON_API_KEY"

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/gasmon/pkg/calibration"
	"github.com/itohio/gasmon/pkg/console"
	"github.com/itohio/gasmon/pkg/monitor"
	"github.com/itohio/gasmon/pkg/network"
	"github.com/itohio/gasmon/pkg/storage"
	"github.com/itohio/gasmon/pkg/telemetry"
	"tinygo.org/x/drivers/netlink/probe"
)

// Set with -ldflags "-X main.name=value".
var (
	ssid         string
	passphrase   string
	apiKey       string
	telemetryURL = telemetry.DefaultURL
)

func main() {
	log := console.Print{}

	// Give the USB console a moment to attach.
	time.Sleep(2 * time.Second)

	region, err := storage.NewRegion(machine.Flash, 0, STORAGE_BLOCKS)
	if err != nil {
		halt(log, "storage", err)
	}
	store, err := storage.InitOrErase(region)
	if err != nil {
		halt(log, "storage", err)
	}
	if store.Erased() {
		log.Warnf("storage erased and re-initialized")
	}
	boots, err := store.Increment("boots")
	if err != nil {
		log.Warnf("failed to update boot counter: %v", err)
	}
	log.Infof("boot #%d", boots)

	link, _ := probe.Probe()
	boot := network.New(newWiFiLink(link, ssid, passphrase, log),
		network.WithLogger(log),
		network.WithName(ssid),
	)
	if err := boot.Start(); err != nil {
		halt(log, "network", err)
	}
	boot.Wait()

	sensor := newADCSensor(PIN_SENSOR)
	alarm := newPinAlarm(PIN_ALARM)

	up, err := telemetry.New(telemetryURL, apiKey, telemetry.WithLogger(log))
	if err != nil {
		halt(log, "telemetry", err)
	}

	mon := monitor.New(sensor, alarm, up,
		monitor.WithThreshold(ALARM_THRESHOLD),
		monitor.WithInterval(SAMPLE_INTERVAL),
		monitor.WithCurve(calibration.DefaultCurve()),
		monitor.WithSinglePrecision(),
		monitor.WithLogger(log),
	)
	mon.Run(context.Background())
}

// halt reports an unrecoverable startup error and stops.
func halt(log console.Logger, what string, err error) {
	for {
		log.Errorf("%s: %v", what, err)
		time.Sleep(10 * time.Second)
	}
}
