package mtproto

import "fmt"

// CRCError is raised when a reassembled frame fails its trailing
// CRC-8 check (spec §4.C, §7).
type CRCError struct{}

func (CRCError) Error() string { return "mtproto: CRC-8 check failed" }

// StatusError wraps a non-zero MT response status byte. The low 3
// bits select a reason; the upper bits are independent flags.
type StatusError struct {
	Code byte
}

var statusReasons = [8]string{
	"Success",
	"CommunicationTimeout",
	"ModeInvalid",
	"ChecksumError",
	"UnknownCommand",
	"InvalidAccessLevel",
	"InvalidDatabytes",
	"Reserved",
}

func (e StatusError) Error() string {
	s := statusReasons[e.Code&0x07]
	if e.Code&0x08 != 0 {
		s += " | HardwareError"
	}
	if e.Code&0x10 != 0 {
		s += " | DeviceNotReady"
	}
	if e.Code&0x20 != 0 {
		s += " | HandRaised"
	}
	return fmt.Sprintf("mtproto: status error: %s", s)
}

// LinkError wraps an underlying BLE transport error observed on a
// write-response, a notification, or a disconnect callback.
type LinkError struct {
	Cause error
}

func (e LinkError) Error() string { return fmt.Sprintf("mtproto: link error: %v", e.Cause) }

func (e LinkError) Unwrap() error { return e.Cause }

// AdapterFatalError signals that the local Bluetooth adapter cannot be
// used at all (unsupported hardware, permission denied). Per spec §7
// this is process-fatal at this layer.
type AdapterFatalError struct {
	Reason string
}

func (e AdapterFatalError) Error() string { return fmt.Sprintf("mtproto: adapter fatal: %s", e.Reason) }
