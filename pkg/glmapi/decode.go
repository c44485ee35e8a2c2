package glmapi

import (
	"encoding/binary"
	"fmt"
	"math"
)

func decodeDeviceInfo(b []byte) (DeviceInfo, error) {
	if len(b) < 29 {
		return DeviceInfo{}, fmt.Errorf("glmapi: device info payload too short: %d bytes", len(b))
	}
	var info DeviceInfo
	info.SerialNumber = int32(binary.LittleEndian.Uint32(b[4:8]))
	info.SWRevision = int16(binary.LittleEndian.Uint16(b[8:10]))
	info.SWVersionMain = b[10]
	info.SWVersionSub = b[11]
	info.SWVersionBug = b[12]
	info.HWPCBVersion = b[13]
	info.HWPCBVariant = b[14]
	info.HWPCBBug = b[15]
	copy(info.Unknown[:], b[16:28])
	return info, nil
}

func decodeFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// ParseSyncContainer decodes a raw 33-byte sync container payload.
// Exported so cmd/ can register it as the handler for device-initiated
// 0x50 requests without pkg/ble needing to import pkg/glmapi (spec
// §4.E "request from device").
func ParseSyncContainer(b []byte) (SyncContainer, error) {
	return decodeSyncContainer(b)
}

func decodeSyncContainer(b []byte) (SyncContainer, error) {
	if len(b) < 33 {
		return SyncContainer{}, fmt.Errorf("glmapi: sync container payload too short: %d bytes", len(b))
	}
	var c SyncContainer
	c.MeasurementType = b[0] & 0x1F
	c.CalcIndicator = b[0] >> 5
	c.DistReference = DistReference(b[1] & 0x07)
	c.AngleReference = (b[1] >> 3) & 0x07
	c.DistanceUnit = DistanceUnit((b[1] >> 6) & 0x01)
	c.StateOfCharge = b[2]
	c.Temperature = b[3]
	c.Distance[0] = decodeFloat32(b[4:8])
	c.Distance[1] = decodeFloat32(b[8:12])
	c.Distance[2] = decodeFloat32(b[12:16])
	c.Result = decodeFloat32(b[16:20])
	c.Angle = decodeFloat32(b[20:24])
	c.Timestamp = int32(binary.LittleEndian.Uint32(b[24:28]))
	c.LaserOn = b[28]&1 != 0
	c.UsabilityErrors = b[28] >> 1
	c.MeasurementListIndex = b[29]
	c.CompassHeading = int16(binary.LittleEndian.Uint16(b[30:32]))
	c.NDOFSensorStatus = b[32]
	return c, nil
}

func decodePayloadSize(b []byte) (PayloadSize, error) {
	if len(b) < 8 {
		return PayloadSize{}, fmt.Errorf("glmapi: payload size response too short: %d bytes", len(b))
	}
	return PayloadSize{
		RXPayloadSize: binary.LittleEndian.Uint16(b[4:6]),
		TXPayloadSize: binary.LittleEndian.Uint16(b[6:8]),
	}, nil
}

func decodeProtocolVersion(b []byte) (ProtocolVersion, error) {
	if len(b) < 6 {
		return ProtocolVersion{}, fmt.Errorf("glmapi: protocol version response too short: %d bytes", len(b))
	}
	return ProtocolVersion{
		Main: b[0], Sub: b[1], Bug: b[2],
		ProjMain: b[3], ProjSub: b[4], ProjBug: b[5],
	}, nil
}

func decodeRealTimeClock(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("glmapi: real-time clock response too short: %d bytes", len(b))
	}
	return binary.LittleEndian.Uint32(b[0:4]), nil
}

func decodeUploadResult(b []byte) (UploadResult, error) {
	if len(b) < 1 {
		return UploadResult{}, fmt.Errorf("glmapi: upload result response too short: %d bytes", len(b))
	}
	return UploadResult{ErrorCode: b[0] & 0x0F, BlockNumber: b[0] >> 4}, nil
}
