// Package glmapi is the typed command API layered over a peripheral
// session: it formats MT command payloads, calls Session.SendRequest,
// and parses the response into Go structs (spec §4.G).
package glmapi

import "fmt"

// DistReference selects which point on the device a distance
// measurement is taken from.
type DistReference byte

const (
	DistReferenceFront DistReference = iota
	DistReferenceCenter
	DistReferenceBack
	DistReferenceTripod
)

func (r DistReference) String() string {
	switch r {
	case DistReferenceFront:
		return "Front"
	case DistReferenceCenter:
		return "Center"
	case DistReferenceBack:
		return "Back"
	case DistReferenceTripod:
		return "Tripod"
	default:
		return fmt.Sprintf("DistReference(%d)", byte(r))
	}
}

// DistanceUnit selects the unit system a measurement is reported in.
type DistanceUnit byte

const (
	DistanceUnitMetric DistanceUnit = iota
	DistanceUnitImperial
)

func (u DistanceUnit) String() string {
	if u == DistanceUnitImperial {
		return "Imperial"
	}
	return "Metric"
}

// Settings is the device's 11-byte persisted settings block (commands
// 0x53/0x54).
type Settings struct {
	SpiritLevelEnabled     bool
	DisplayRotationEnabled bool
	SpeakerEnabled         bool
	LaserPointerEnabled    bool
	BacklightMode          byte
	AngleUnit              byte
	MeasurementUnit        DistanceUnit
}

func decodeSettings(b []byte) (Settings, error) {
	if len(b) < 7 {
		return Settings{}, fmt.Errorf("glmapi: settings payload too short: %d bytes", len(b))
	}
	return Settings{
		SpiritLevelEnabled:     b[0] != 0,
		DisplayRotationEnabled: b[1] != 0,
		SpeakerEnabled:         b[2] != 0,
		LaserPointerEnabled:    b[3] != 0,
		BacklightMode:          b[4],
		AngleUnit:              b[5],
		MeasurementUnit:        DistanceUnit(b[6]),
	}, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// encode renders the settings back to the on-wire 11-byte form,
// padding the trailing reserved bytes with zero.
func (s Settings) encode() []byte {
	out := make([]byte, 11)
	out[0] = boolByte(s.SpiritLevelEnabled)
	out[1] = boolByte(s.DisplayRotationEnabled)
	out[2] = boolByte(s.SpeakerEnabled)
	out[3] = boolByte(s.LaserPointerEnabled)
	out[4] = s.BacklightMode
	out[5] = s.AngleUnit
	out[6] = byte(s.MeasurementUnit)
	return out
}

// DeviceInfo is the device identification block (command 0x06).
type DeviceInfo struct {
	SerialNumber  int32
	SWRevision    int16
	SWVersionMain byte
	SWVersionSub  byte
	SWVersionBug  byte
	HWPCBVersion  byte
	HWPCBVariant  byte
	HWPCBBug      byte
	Unknown       [12]byte
}

// SyncContainer is the 33-byte measurement/status block returned by
// Control and pushed unsolicited as a device-initiated request on
// command 0x50.
type SyncContainer struct {
	MeasurementType      byte
	CalcIndicator        byte
	DistReference        DistReference
	AngleReference        byte
	DistanceUnit         DistanceUnit
	StateOfCharge        byte
	Temperature          byte
	Distance             [3]float32
	Result               float32
	Angle                float32
	Timestamp            int32
	LaserOn              bool
	UsabilityErrors      byte
	MeasurementListIndex byte
	CompassHeading       int16
	NDOFSensorStatus     byte
}

// PayloadSize reports the negotiated maximum MT payload sizes (command
// 0x00).
type PayloadSize struct {
	RXPayloadSize uint16
	TXPayloadSize uint16
}

// ProtocolVersion is the MT protocol version block (command 0x04).
type ProtocolVersion struct {
	Main, Sub, Bug          byte
	ProjMain, ProjSub, ProjBug byte
}

// UploadResult is the per-block acknowledgment for UploadBlock
// (command 0x3b).
type UploadResult struct {
	ErrorCode   byte
	BlockNumber byte
}

// ControlRequest parameterizes the Control command (command 0x50).
// Zero value matches the device's power-on defaults.
type ControlRequest struct {
	SwitchMode      bool
	SyncControl     bool
	SignalOperation bool
	MeasurementType byte
	AngleReference  byte
	DistReference   DistReference
}

func (c ControlRequest) encode() []byte {
	b0 := (c.MeasurementType & 0x1F)
	if c.SwitchMode {
		b0 |= 0x80
	}
	if c.SyncControl {
		b0 |= 0x40
	}
	if c.SignalOperation {
		b0 |= 0x20
	}
	b1 := byte(c.DistReference&0x07) | ((c.AngleReference & 0x07) << 3)
	return []byte{b0, b1}
}
