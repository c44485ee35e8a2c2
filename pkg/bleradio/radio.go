// Package bleradio defines the minimal radio capability the MT link
// layer (pkg/ble) needs from a BLE central/peripheral stack, and a
// binding of that capability to tinygo.org/x/bluetooth. Keeping the
// link layer behind this interface is what makes it unit-testable
// without real hardware (spec §8's simulation-based testable
// properties), and is the Go translation of spec §9's "dynamic
// callbacks → typed traits": a GATTDelegate capability set instead of
// objc selector dispatch.
package bleradio

import "fmt"

// CharacteristicKind identifies which of the two MT characteristics a
// discovery callback refers to.
type CharacteristicKind int

const (
	CharacteristicTX CharacteristicKind = iota
	CharacteristicRX
)

func (k CharacteristicKind) String() string {
	if k == CharacteristicTX {
		return "tx"
	}
	return "rx"
}

// Delegate is the set of radio callbacks a peripheral session
// implements. All methods may be invoked from any goroutine.
type Delegate interface {
	OnCharacteristicDiscovered(kind CharacteristicKind, err error)
	OnNotifyStateChanged(err error)
	OnValueUpdated(value []byte, err error)
	OnWriteComplete(err error)
	OnDisconnect(err error)
}

// Peripheral is the capability set a connected peripheral session
// drives: the characteristic discovery sequence of spec §4.E, chunk
// writes, and disconnection.
type Peripheral interface {
	UUIDString() string

	// SetDelegate installs the callback sink before any discovery
	// traffic can arrive.
	SetDelegate(d Delegate)

	// DiscoverCharacteristics kicks off discovery of the MT service's
	// TX and RX characteristics; results arrive via
	// Delegate.OnCharacteristicDiscovered.
	DiscoverCharacteristics()

	// EnableRXNotifications subscribes to notifications on RX;
	// completion arrives via Delegate.OnNotifyStateChanged and
	// subsequent values via Delegate.OnValueUpdated.
	EnableRXNotifications()

	// WriteChunk issues a write-with-response of one MT chunk.
	// Completion arrives via Delegate.OnWriteComplete. The session
	// releases request chunks one at a time, each after the peer acks
	// the previous one, but writes an ack chunk as soon as a content
	// chunk arrives, so an ack write may be outstanding alongside a
	// request chunk.
	WriteChunk(data []byte)

	// Disconnect tears down the BLE connection.
	Disconnect() error
}

// ScanResult is one sighting of a peripheral, either from an active
// scan or from a retrieve-known-peripherals query.
type ScanResult struct {
	UUIDString string
}

// Adapter is the capability set a central manager drives.
type Adapter interface {
	// Enable powers on the local Bluetooth adapter. A nil error means
	// the adapter is usable; ErrUnsupported/ErrUnauthorized distinguish
	// the process-fatal cases from a transient powered-off state.
	Enable() error

	// Scan starts an unfiltered scan, invoking handler for every
	// advertisement seen, until StopScan is called.
	Scan(handler func(ScanResult)) error
	StopScan() error

	// Connect blocks until the peripheral identified by uuidString is
	// connected or the attempt fails.
	Connect(uuidString string) (Peripheral, error)

	// RetrieveKnown returns any of the given peripherals the OS
	// already knows about (bonded/cached), without scanning.
	RetrieveKnown(uuidStrings []string) []ScanResult
}

// ErrUnsupported indicates the local hardware has no usable BLE
// adapter.
var ErrUnsupported = fmt.Errorf("bleradio: bluetooth low energy not supported on this hardware")

// ErrUnauthorized indicates the process lacks OS permission to use
// Bluetooth.
var ErrUnauthorized = fmt.Errorf("bleradio: permission denied to use bluetooth low energy")
