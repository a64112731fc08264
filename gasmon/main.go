package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/gasmon/pkg/config"
	"github.com/itohio/gasmon/pkg/device"
	"github.com/itohio/gasmon/pkg/logger"
)

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		driverFlag = flag.String("driver", "", "Sensor driver override (mock, serial or periph)")
		portFlag   = flag.String("p", "", "Serial port override (e.g., /dev/ttyACM0)")
		listenFlag = flag.String("listen", "", "Status server address override (e.g., :8080)")
		listFlag   = flag.Bool("list-ports", false, "List serial ports and exit")
		writeFlag  = flag.String("write-config", "", "Write the effective configuration to this file and exit")
	)
	flag.Parse()

	if *listFlag {
		listPorts()
		return
	}

	lg := logger.New(os.Stderr, logger.InfoLevel)

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		lg.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.ApplyEnv()

	if *driverFlag != "" {
		cfg.Sensor.Driver = *driverFlag
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *listenFlag != "" {
		cfg.Status.Listen = *listenFlag
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		lg.Warnf("%v, using info", err)
	}
	lg.SetLevel(level)

	if err := cfg.Validate(); err != nil {
		lg.Fatalf("Invalid configuration: %v", err)
	}

	if *writeFlag != "" {
		if err := cfg.Save(*writeFlag); err != nil {
			lg.Fatalf("Failed to write configuration: %v", err)
		}
		lg.Infof("configuration written to %s", *writeFlag)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil && !errors.Is(err, context.Canceled) {
		lg.Fatalf("%v", err)
	}
	lg.Infof("stopped")
}

func listPorts() {
	ports, err := device.Ports()
	if err != nil {
		log.Fatalf("Failed to list serial ports: %v", err)
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Println(p.Name)
	}
}
