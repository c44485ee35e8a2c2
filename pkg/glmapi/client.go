package glmapi

import (
	"context"
	"fmt"

	"github.com/openglm/glm-ble-client/pkg/ble"
)

// Command codes for the MT commands this client speaks (spec §6).
const (
	cmdPayloadSize       = 0x00
	cmdProtocolVersion   = 0x04
	cmdDeviceInfo        = 0x06
	cmdRealTimeClock     = 0x0F
	cmdDeviceInfoString  = 0x3A
	cmdUploadBlock       = 0x3B
	cmdControl           = 0x50
	cmdGetMeasurements   = 0x51
	cmdClearMeasurements = 0x52
	cmdReadSettings      = 0x53
	cmdWriteSettings     = 0x54
)

// syncContainerRecordSize is the fixed record length GetMeasurements
// pages over.
const syncContainerRecordSize = 33

// Client is the typed command API layered over one peripheral
// session (spec §4.G).
type Client struct {
	session *ble.Session
}

// NewClient wraps an already-connected session.
func NewClient(session *ble.Session) *Client {
	return &Client{session: session}
}

// ReadSettings reads the device's persisted settings (command 0x53).
func (c *Client) ReadSettings(ctx context.Context) (Settings, error) {
	payload, err := c.session.SendRequest(ctx, cmdReadSettings, nil)
	if err != nil {
		return Settings{}, err
	}
	return decodeSettings(payload)
}

// SettingsOption mutates a baseline Settings value before it is
// written back (spec §4.G "overlays a diff").
type SettingsOption func(*Settings)

func WithSpiritLevelEnabled(v bool) SettingsOption {
	return func(s *Settings) { s.SpiritLevelEnabled = v }
}
func WithDisplayRotationEnabled(v bool) SettingsOption {
	return func(s *Settings) { s.DisplayRotationEnabled = v }
}
func WithSpeakerEnabled(v bool) SettingsOption {
	return func(s *Settings) { s.SpeakerEnabled = v }
}
func WithLaserPointerEnabled(v bool) SettingsOption {
	return func(s *Settings) { s.LaserPointerEnabled = v }
}
func WithBacklightMode(v byte) SettingsOption {
	return func(s *Settings) { s.BacklightMode = v }
}
func WithAngleUnit(v byte) SettingsOption {
	return func(s *Settings) { s.AngleUnit = v }
}
func WithMeasurementUnit(v DistanceUnit) SettingsOption {
	return func(s *Settings) { s.MeasurementUnit = v }
}

// WriteSettings overlays opts onto base and writes the result back
// (command 0x54). If base is nil, the current settings are read first
// (spec §4.G: "reads current settings first if none are supplied").
func (c *Client) WriteSettings(ctx context.Context, base *Settings, opts ...SettingsOption) error {
	var settings Settings
	if base != nil {
		settings = *base
	} else {
		current, err := c.ReadSettings(ctx)
		if err != nil {
			return err
		}
		settings = current
	}
	for _, opt := range opts {
		opt(&settings)
	}
	_, err := c.session.SendRequest(ctx, cmdWriteSettings, settings.encode())
	return err
}

// DeviceInfo reads the device identification block (command 0x06).
func (c *Client) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	payload, err := c.session.SendRequest(ctx, cmdDeviceInfo, nil)
	if err != nil {
		return DeviceInfo{}, err
	}
	return decodeDeviceInfo(payload)
}

// Control issues a measurement/mode control command and returns the
// resulting sync container (command 0x50).
func (c *Client) Control(ctx context.Context, req ControlRequest) (SyncContainer, error) {
	payload, err := c.session.SendRequest(ctx, cmdControl, req.encode())
	if err != nil {
		return SyncContainer{}, err
	}
	return decodeSyncContainer(payload)
}

// GetMeasurements pages through stored measurement records in
// [first,last], issuing repeated 0x51 requests until the device
// returns no further records (spec §4.G).
func (c *Client) GetMeasurements(ctx context.Context, first, last byte) ([]SyncContainer, error) {
	var results []SyncContainer
	for first <= last {
		payload, err := c.session.SendRequest(ctx, cmdGetMeasurements, []byte{first, last})
		if err != nil {
			return nil, err
		}
		if len(payload) < 2 {
			return nil, fmt.Errorf("glmapi: get measurements response too short: %d bytes", len(payload))
		}
		count := (len(payload) - 2) / syncContainerRecordSize
		if count == 0 || payload[0] != first {
			break
		}
		for i := 0; i < count; i++ {
			start := 2 + i*syncContainerRecordSize
			record, err := decodeSyncContainer(payload[start : start+syncContainerRecordSize])
			if err != nil {
				return nil, err
			}
			results = append(results, record)
		}
		first = payload[1] + 1
	}
	return results, nil
}

// ClearMeasurements deletes stored measurement records in [first,last]
// (command 0x52).
func (c *Client) ClearMeasurements(ctx context.Context, first, last byte) error {
	_, err := c.session.SendRequest(ctx, cmdClearMeasurements, []byte{first, last})
	return err
}

// PayloadSize reports the negotiated maximum MT payload sizes
// (command 0x00).
func (c *Client) PayloadSize(ctx context.Context) (PayloadSize, error) {
	payload, err := c.session.SendRequest(ctx, cmdPayloadSize, nil)
	if err != nil {
		return PayloadSize{}, err
	}
	return decodePayloadSize(payload)
}

// MTProtocolVersion reads the device's MT protocol version (command
// 0x04).
func (c *Client) MTProtocolVersion(ctx context.Context) (ProtocolVersion, error) {
	payload, err := c.session.SendRequest(ctx, cmdProtocolVersion, nil)
	if err != nil {
		return ProtocolVersion{}, err
	}
	return decodeProtocolVersion(payload)
}

// DeviceRealTimeClock reads the device's clock, in seconds (command
// 0x0F).
func (c *Client) DeviceRealTimeClock(ctx context.Context) (uint32, error) {
	payload, err := c.session.SendRequest(ctx, cmdRealTimeClock, nil)
	if err != nil {
		return 0, err
	}
	return decodeRealTimeClock(payload)
}

// DeviceInfoString reads the device's free-form identification string
// (command 0x3A).
func (c *Client) DeviceInfoString(ctx context.Context) ([]byte, error) {
	return c.session.SendRequest(ctx, cmdDeviceInfoString, nil)
}

// UploadBlock uploads one block of firmware/data and returns the
// device's per-block acknowledgment (command 0x3B).
func (c *Client) UploadBlock(ctx context.Context, blockNumber, blockType byte, data []byte) (UploadResult, error) {
	if len(data) > 0xFF {
		return UploadResult{}, fmt.Errorf("glmapi: upload block data length %d exceeds 255", len(data))
	}
	payload := make([]byte, 0, 2+len(data))
	payload = append(payload, (blockNumber<<4)|(blockType&0x0F), byte(len(data)))
	payload = append(payload, data...)
	result, err := c.session.SendRequest(ctx, cmdUploadBlock, payload)
	if err != nil {
		return UploadResult{}, err
	}
	return decodeUploadResult(result)
}

// SetLaserPower turns the laser pointer on or off by overlaying a
// single settings field (glm-server.py's setLaserPower).
func (c *Client) SetLaserPower(ctx context.Context, on bool) error {
	return c.WriteSettings(ctx, nil, WithLaserPointerEnabled(on))
}

// TurnOnAutoSync enables sync-controlled measurement broadcast
// (glm-server.py's turnOnAutoSync).
func (c *Client) TurnOnAutoSync(ctx context.Context) error {
	_, err := c.Control(ctx, ControlRequest{SyncControl: true})
	return err
}

// MeasureDistance forces metric units, ensures the laser is on, takes
// one measurement from distRef, and returns its distance
// (glm-server.py's measureDistance). If the laser was off, a first
// measurement is issued and discarded to light it before the
// measurement that is actually returned — matching the original's
// shape exactly.
func (c *Client) MeasureDistance(ctx context.Context, distRef DistReference) (float32, error) {
	settings, err := c.ReadSettings(ctx)
	if err != nil {
		return 0, err
	}
	if settings.MeasurementUnit != DistanceUnitMetric {
		if err := c.WriteSettings(ctx, &settings, WithMeasurementUnit(DistanceUnitMetric)); err != nil {
			return 0, err
		}
	}
	req := ControlRequest{MeasurementType: 1, DistReference: distRef}
	if !settings.LaserPointerEnabled {
		if _, err := c.Control(ctx, req); err != nil {
			return 0, err
		}
	}
	result, err := c.Control(ctx, req)
	if err != nil {
		return 0, err
	}
	return result.Result, nil
}
