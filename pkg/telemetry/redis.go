// Package telemetry publishes measurement and device-status events to
// Redis and optionally records the frames passed to a Recorder to a
// CBOR file for offline replay during development.
package telemetry

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/redis/go-redis/v9"

	"github.com/openglm/glm-ble-client/pkg/glmapi"
)

// Publisher writes measurement telemetry to Redis using a pipelined
// HSet+Publish per update.
type Publisher struct {
	client *redis.Client
	ctx    context.Context
	logger log.Logger
}

// NewPublisher connects to addr and verifies it with a ping.
func NewPublisher(addr, password string, db int, logger log.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to redis %s: %w", addr, err)
	}
	return &Publisher{client: client, ctx: ctx, logger: logger}, nil
}

// Close closes the underlying Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// measurementKey is the Redis hash these fields are written under, and
// the channel measurement updates are published on.
const measurementKey = "glm:measurement"

// PublishMeasurement writes a decoded sync container's fields to the
// measurement hash and publishes a summary in one pipelined call.
func (p *Publisher) PublishMeasurement(peripheralUUID string, c glmapi.SyncContainer) error {
	pipe := p.client.Pipeline()
	pipe.HSet(p.ctx, measurementKey,
		"peripheral", peripheralUUID,
		"distance_m", c.Result,
		"dist_reference", c.DistReference.String(),
		"distance_unit", c.DistanceUnit.String(),
		"laser_on", c.LaserOn,
		"timestamp", c.Timestamp,
	)
	pipe.Publish(p.ctx, measurementKey, fmt.Sprintf("%s:%.4f", peripheralUUID, c.Result))
	if _, err := pipe.Exec(p.ctx); err != nil {
		level.Error(p.logger).Log("msg", "publish measurement failed", "err", err)
		return fmt.Errorf("telemetry: publish measurement: %w", err)
	}
	return nil
}

// deviceInfoKey is the Redis hash device-info snapshots are written
// under.
const deviceInfoKey = "glm:device_info"

// PublishDeviceInfo writes a decoded device-info block for the given
// peripheral.
func (p *Publisher) PublishDeviceInfo(peripheralUUID string, info glmapi.DeviceInfo) error {
	pipe := p.client.Pipeline()
	pipe.HSet(p.ctx, deviceInfoKey,
		"peripheral", peripheralUUID,
		"serial_number", info.SerialNumber,
		"sw_revision", info.SWRevision,
	)
	pipe.Publish(p.ctx, deviceInfoKey, peripheralUUID)
	if _, err := pipe.Exec(p.ctx); err != nil {
		return fmt.Errorf("telemetry: publish device info: %w", err)
	}
	return nil
}
