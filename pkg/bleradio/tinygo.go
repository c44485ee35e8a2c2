package bleradio

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// Fixed BLE identifiers for the MT protocol's service and
// characteristics (spec §6).
const (
	ServiceUUIDString = "00005301-0000-0041-5253-534F46540000"
	TXUUIDString      = "00004301-0000-0041-5253-534F46540000"
	RXUUIDString      = "00004302-0000-0041-5253-534F46540000"
)

var (
	serviceUUID, _ = bluetooth.ParseUUID(ServiceUUIDString)
	txUUID, _      = bluetooth.ParseUUID(TXUUIDString)
	rxUUID, _      = bluetooth.ParseUUID(RXUUIDString)
)

// TinygoAdapter binds Adapter to tinygo.org/x/bluetooth's default
// adapter.
type TinygoAdapter struct {
	adapter *bluetooth.Adapter

	mu         sync.Mutex
	peripherals map[string]*tinygoPeripheral // by UUIDString, for disconnect fan-out
}

// NewTinygoAdapter wraps the process-wide default Bluetooth adapter.
func NewTinygoAdapter() *TinygoAdapter {
	a := &TinygoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		peripherals: make(map[string]*tinygoPeripheral),
	}
	a.adapter.SetConnectHandler(a.handleConnectEvent)
	return a
}

func (a *TinygoAdapter) handleConnectEvent(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	uuidString := device.Address.String()
	a.mu.Lock()
	p, ok := a.peripherals[uuidString]
	if ok {
		delete(a.peripherals, uuidString)
	}
	a.mu.Unlock()
	if ok {
		p.notifyDisconnect(fmt.Errorf("bleradio: peripheral disconnected"))
	}
}

func (a *TinygoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("bleradio: enable adapter: %w", err)
	}
	return nil
}

func (a *TinygoAdapter) Scan(handler func(ScanResult)) error {
	return a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		handler(ScanResult{UUIDString: result.Address.String()})
	})
}

func (a *TinygoAdapter) StopScan() error {
	return a.adapter.StopScan()
}

func (a *TinygoAdapter) RetrieveKnown(uuidStrings []string) []ScanResult {
	// tinygo.org/x/bluetooth has no bonded-peripheral retrieval API
	// uniform across platforms; known peripherals surface only through
	// Scan, so the central manager's allowlist-driven scan already
	// covers the "already known" case on every backend it supports.
	return nil
}

func (a *TinygoAdapter) Connect(uuidString string) (Peripheral, error) {
	address := bluetooth.Address{}
	if err := address.Set(uuidString); err != nil {
		return nil, fmt.Errorf("bleradio: parse peripheral address %q: %w", uuidString, err)
	}
	device, err := a.adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("bleradio: connect %s: %w", uuidString, err)
	}
	p := &tinygoPeripheral{uuidString: uuidString, device: device}
	a.mu.Lock()
	a.peripherals[uuidString] = p
	a.mu.Unlock()
	return p, nil
}

// tinygoPeripheral binds Peripheral to a connected tinygo.bluetooth
// Device.
type tinygoPeripheral struct {
	uuidString string
	device     bluetooth.Device

	mu       sync.Mutex
	delegate Delegate
	txChar   *bluetooth.DeviceCharacteristic
	rxChar   *bluetooth.DeviceCharacteristic
}

func (p *tinygoPeripheral) UUIDString() string { return p.uuidString }

func (p *tinygoPeripheral) SetDelegate(d Delegate) {
	p.mu.Lock()
	p.delegate = d
	p.mu.Unlock()
}

func (p *tinygoPeripheral) notifyDisconnect(err error) {
	p.mu.Lock()
	d := p.delegate
	p.mu.Unlock()
	if d != nil {
		d.OnDisconnect(err)
	}
}

// DiscoverCharacteristics runs tinygo's synchronous discovery calls in
// a goroutine and reports each characteristic via the delegate, so the
// caller observes the same two-callback sequence spec §4.E describes
// for CoreBluetooth even though tinygo's API is blocking rather than
// delegate-driven.
func (p *tinygoPeripheral) DiscoverCharacteristics() {
	go func() {
		p.mu.Lock()
		d := p.delegate
		p.mu.Unlock()

		services, err := p.device.DiscoverServices([]bluetooth.UUID{serviceUUID})
		if err != nil || len(services) == 0 {
			if err == nil {
				err = fmt.Errorf("bleradio: MT service not found on %s", p.uuidString)
			}
			d.OnCharacteristicDiscovered(CharacteristicTX, err)
			d.OnCharacteristicDiscovered(CharacteristicRX, err)
			return
		}
		service := services[0]

		chars, err := service.DiscoverCharacteristics([]bluetooth.UUID{txUUID, rxUUID})
		if err != nil {
			d.OnCharacteristicDiscovered(CharacteristicTX, err)
			d.OnCharacteristicDiscovered(CharacteristicRX, err)
			return
		}
		for i := range chars {
			c := chars[i]
			switch c.UUID() {
			case txUUID:
				p.mu.Lock()
				p.txChar = &chars[i]
				p.mu.Unlock()
				d.OnCharacteristicDiscovered(CharacteristicTX, nil)
			case rxUUID:
				p.mu.Lock()
				p.rxChar = &chars[i]
				p.mu.Unlock()
				d.OnCharacteristicDiscovered(CharacteristicRX, nil)
			}
		}
	}()
}

func (p *tinygoPeripheral) EnableRXNotifications() {
	p.mu.Lock()
	d := p.delegate
	rx := p.rxChar
	p.mu.Unlock()
	if rx == nil {
		d.OnNotifyStateChanged(fmt.Errorf("bleradio: RX characteristic not yet discovered"))
		return
	}
	err := rx.EnableNotifications(func(value []byte) {
		d.OnValueUpdated(value, nil)
	})
	d.OnNotifyStateChanged(err)
}

// WriteChunk issues a write-with-response: tinygo's Write blocks until
// the peer's GATT write confirmation, which this binding reports back
// through OnWriteComplete exactly as an async CoreBluetooth callback
// would.
func (p *tinygoPeripheral) WriteChunk(data []byte) {
	go func() {
		p.mu.Lock()
		d := p.delegate
		tx := p.txChar
		p.mu.Unlock()
		if tx == nil {
			d.OnWriteComplete(fmt.Errorf("bleradio: TX characteristic not yet discovered"))
			return
		}
		_, err := tx.Write(data)
		d.OnWriteComplete(err)
	}()
}

func (p *tinygoPeripheral) Disconnect() error {
	return p.device.Disconnect()
}
