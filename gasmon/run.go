package main

import (
	"context"
	"fmt"

	"github.com/itohio/gasmon/pkg/calibration"
	"github.com/itohio/gasmon/pkg/config"
	"github.com/itohio/gasmon/pkg/console"
	"github.com/itohio/gasmon/pkg/device"
	"github.com/itohio/gasmon/pkg/history"
	"github.com/itohio/gasmon/pkg/monitor"
	"github.com/itohio/gasmon/pkg/network"
	"github.com/itohio/gasmon/pkg/status"
	"github.com/itohio/gasmon/pkg/storage"
	"github.com/itohio/gasmon/pkg/telemetry"
)

const bootsKey = "boots"

// run brings the station up in order (storage, network, sensor) and then
// samples until ctx is done. The status server, when configured, binds before
// the network wait so a busy address fails startup.
func run(ctx context.Context, cfg *config.Config, log console.Logger) error {
	boots, err := initStorage(cfg.Storage, log)
	if err != nil {
		return err
	}

	boot := network.New(newLink(cfg),
		network.WithReconnector(newReconnector(cfg.Network.Reconnect)),
		network.WithLogger(log),
		network.WithName(linkName(cfg.Network)),
	)
	if err := boot.Start(); err != nil {
		return fmt.Errorf("failed to start network: %w", err)
	}
	defer boot.Close()

	var hist *history.Buffer
	if cfg.Status.Listen != "" {
		hist = history.New(cfg.Status.Window)
		srv := status.New(hist, boot, boots, log)
		ln, err := srv.Listen(cfg.Status.Listen)
		if err != nil {
			return err
		}

		srvCtx, cancel := context.WithCancel(ctx)
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := srv.Serve(srvCtx, ln); err != nil {
				log.Errorf("%v", err)
			}
		}()
		defer func() {
			cancel()
			<-served
		}()
	}

	select {
	case <-boot.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	dev, err := newDevice(cfg, log)
	if err != nil {
		return err
	}
	if err := dev.Connect(); err != nil {
		return fmt.Errorf("failed to connect %s sensor: %w", cfg.Sensor.Driver, err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Warnf("failed to close sensor: %v", err)
		}
	}()

	up, err := telemetry.New(cfg.Telemetry.URL, cfg.Telemetry.APIKey, telemetry.WithLogger(log))
	if err != nil {
		return err
	}

	mon := monitor.New(dev, dev, up,
		monitor.WithThreshold(cfg.Sensor.Threshold),
		monitor.WithInterval(cfg.Sensor.Interval),
		monitor.WithCurve(calibration.Curve{
			A:    cfg.Calibration.A,
			B:    cfg.Calibration.B,
			VRef: cfg.Sensor.VRef,
			Max:  calibration.DefaultMax,
		}),
		monitor.WithLogger(log),
	)

	if hist != nil {
		mon.OnReading(hist.Add)
	}

	return mon.Run(ctx)
}

// initStorage opens the persistent region, recovering from corruption, and
// bumps the boot counter.
func initStorage(cfg config.StorageConfig, log console.Logger) (uint32, error) {
	f, err := storage.OpenFile(cfg.Path, cfg.Size)
	if err != nil {
		return 0, fmt.Errorf("failed to open storage: %w", err)
	}
	defer f.Close()

	store, err := storage.InitOrErase(f)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if store.Erased() {
		log.Warnf("storage %s was erased and re-initialized", cfg.Path)
	} else {
		log.Debugf("storage %s holds %v", cfg.Path, store.Keys())
	}

	boots, err := store.Increment(bootsKey)
	if err != nil {
		log.Warnf("failed to update boot counter: %v", err)
	}
	if err := f.Sync(); err != nil {
		log.Warnf("failed to sync storage: %v", err)
	}

	log.Infof("boot #%d", boots)
	return boots, nil
}

func newLink(cfg *config.Config) network.Link {
	if cfg.Sensor.Driver == config.DriverMock {
		return network.NewMock(cfg.Mock.WifiFailures)
	}
	return network.NewInterface(cfg.Network.Interface, cfg.Network.PollInterval)
}

func linkName(cfg config.NetworkConfig) string {
	if cfg.SSID != "" {
		return cfg.SSID
	}
	return cfg.Interface
}

func newReconnector(cfg config.ReconnectConfig) network.Reconnector {
	if cfg.Policy == config.ReconnectBackoff {
		return network.Backoff{Initial: cfg.Initial, Max: cfg.Max, Factor: cfg.Factor}
	}
	return network.Immediate{}
}

func newDevice(cfg *config.Config, log console.Logger) (device.Device, error) {
	switch cfg.Sensor.Driver {
	case config.DriverMock:
		return device.NewMock(&cfg.Mock), nil
	case config.DriverSerial:
		return device.NewSerial(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.StaleAfter, log), nil
	case config.DriverPeriph:
		return device.NewPeriph(cfg.Periph, cfg.Sensor.VRef), nil
	}
	return nil, fmt.Errorf("unknown sensor driver %q", cfg.Sensor.Driver)
}
