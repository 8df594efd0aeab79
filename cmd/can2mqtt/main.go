// Command can2mqtt bridges a CAN adapter to an MQTT broker using the rule
// set from a JSON configuration file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yiweisong/ace-can/internal/bridge"
	"github.com/yiweisong/ace-can/internal/config"
	"github.com/yiweisong/ace-can/internal/logging"
)

func main() {
	cfgPath := flag.String("config", "configs/can2mqtt.json", "path to the bridge configuration")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "optional log file with rotation")

	// Overrides for the corresponding config fields. Empty or negative
	// values leave the file's setting in place.
	broker := flag.String("broker", "", "MQTT broker URL, e.g. tcp://user:pw@host:1883")
	bus := flag.String("bus", "", "CAN backend: busmust or pcan")
	channel := flag.Int("channel", -1, "CAN channel index")
	bitrate := flag.Int("bitrate", -1, "CAN bitrate in bit/s")
	direction := flag.Int("direction", -1, "0 bidirectional, 1 can->mqtt, 2 mqtt->can")
	flag.Parse()

	logger := logging.Setup(*logLevel, *logFile)
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if *broker != "" {
		cfg.Broker = *broker
	}
	if *bus != "" {
		cfg.Bus = *bus
	}
	if *channel >= 0 {
		cfg.Channel = *channel
	}
	if *bitrate > 0 {
		cfg.Bitrate = *bitrate
	}
	if *direction >= 0 {
		cfg.Direction = *direction
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config overrides", zap.Error(err))
	}

	b, err := bridge.New(cfg, logger)
	if err != nil {
		logger.Fatal("build bridge", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGHUP reloads the rule set without restarting the session.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := b.Reload(*cfgPath); err != nil {
				logger.Warn("reload config", zap.Error(err))
			}
		}
	}()

	if err := b.Run(ctx); err != nil {
		logger.Fatal("bridge", zap.Error(err))
	}
}
