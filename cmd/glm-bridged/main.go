// Command glm-bridged connects to an allowlisted Bosch GLM laser
// rangefinder over BLE and bridges its measurements to Redis.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/openglm/glm-ble-client/pkg/ble"
	"github.com/openglm/glm-ble-client/pkg/bleradio"
	"github.com/openglm/glm-ble-client/pkg/config"
	"github.com/openglm/glm-ble-client/pkg/glmapi"
	"github.com/openglm/glm-ble-client/pkg/telemetry"
)

var (
	allowlistPath = flag.String("allowlist", "/etc/glm-bridged/allowlist.cbor", "Path to the CBOR-encoded peripheral allowlist")
	redisAddr     = flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPass     = flag.String("redis-pass", "", "Redis password")
	redisDB       = flag.Int("redis-db", 0, "Redis database number")
	recordPath    = flag.String("record", "", "If set, CBOR-record every device-initiated sync container to this file")
	logLevel      = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func buildLogger() log.Logger {
	base := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	base = log.With(base, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var allowed level.Option
	switch *logLevel {
	case "debug":
		allowed = level.AllowDebug()
	case "warn":
		allowed = level.AllowWarn()
	case "error":
		allowed = level.AllowError()
	default:
		allowed = level.AllowInfo()
	}
	return level.NewFilter(base, allowed)
}

func main() {
	flag.Parse()
	logger := buildLogger()

	allowlist, err := config.Load(*allowlistPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load allowlist", "err", err)
		os.Exit(1)
	}

	publisher, err := telemetry.NewPublisher(*redisAddr, *redisPass, *redisDB, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer publisher.Close()

	var recorder *telemetry.Recorder
	if *recordPath != "" {
		recorder, err = telemetry.NewRecorder(*recordPath)
		if err != nil {
			level.Error(logger).Log("msg", "failed to open recording file", "err", err)
			os.Exit(1)
		}
		defer recorder.Close()
	}

	adapter := bleradio.NewTinygoAdapter()

	manager := ble.NewCentralManager(adapter, logger, func(s *ble.Session) {
		s.HandleCommand(0x50, func(payload []byte) {
			container, err := glmapi.ParseSyncContainer(payload)
			if err != nil {
				level.Warn(logger).Log("msg", "malformed sync container", "peripheral", s.UUIDString(), "err", err)
				return
			}
			level.Info(logger).Log("msg", "sync", "peripheral", s.UUIDString(), "distance_m", container.Result)
			if err := publisher.PublishMeasurement(s.UUIDString(), container); err != nil {
				level.Warn(logger).Log("msg", "publish measurement failed", "err", err)
			}
			if recorder != nil {
				if err := recorder.Record(time.Now().UnixNano(), s.UUIDString(), 0x50, payload); err != nil {
					level.Warn(logger).Log("msg", "record sync container failed", "err", err)
				}
			}
		})
	})

	if err := manager.Start(allowlist.UUIDStrings()); err != nil {
		level.Error(logger).Log("msg", "failed to start central manager", "err", err)
		os.Exit(1)
	}
	level.Info(logger).Log("msg", "started central manager", "peripherals", len(allowlist.Peripherals))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	level.Info(logger).Log("msg", "shutting down")
	manager.Stop()
}
