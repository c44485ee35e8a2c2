package ble

import (
	"sync"

	"github.com/openglm/glm-ble-client/pkg/bleradio"
)

// fakePeripheral is an in-memory bleradio.Peripheral that never
// touches real hardware, letting session tests drive the delegate
// callbacks directly and observe every write (spec §8's
// simulation-based testable properties).
type fakePeripheral struct {
	uuidString string

	mu       sync.Mutex
	delegate bleradio.Delegate
	writes   [][]byte // every WriteChunk call, in order

	// autoRespondWrites, if set, is invoked synchronously from
	// WriteChunk to simulate the radio's write-response callback.
	autoRespondWrites bool
}

func newFakePeripheral(uuidString string) *fakePeripheral {
	return &fakePeripheral{uuidString: uuidString, autoRespondWrites: true}
}

func (p *fakePeripheral) UUIDString() string { return p.uuidString }

func (p *fakePeripheral) SetDelegate(d bleradio.Delegate) {
	p.mu.Lock()
	p.delegate = d
	p.mu.Unlock()
}

func (p *fakePeripheral) delegateRef() bleradio.Delegate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delegate
}

func (p *fakePeripheral) DiscoverCharacteristics() {
	d := p.delegateRef()
	d.OnCharacteristicDiscovered(bleradio.CharacteristicTX, nil)
	d.OnCharacteristicDiscovered(bleradio.CharacteristicRX, nil)
}

func (p *fakePeripheral) EnableRXNotifications() {
	p.delegateRef().OnNotifyStateChanged(nil)
}

func (p *fakePeripheral) WriteChunk(data []byte) {
	p.mu.Lock()
	p.writes = append(p.writes, append([]byte(nil), data...))
	auto := p.autoRespondWrites
	p.mu.Unlock()
	if auto {
		p.delegateRef().OnWriteComplete(nil)
	}
}

func (p *fakePeripheral) Disconnect() error { return nil }

// lastWrite returns the most recent WriteChunk payload, or nil.
func (p *fakePeripheral) lastWrite() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.writes) == 0 {
		return nil
	}
	return p.writes[len(p.writes)-1]
}

func (p *fakePeripheral) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

// notify simulates an RX characteristic notification arriving from
// the peer.
func (p *fakePeripheral) notify(value []byte) {
	p.delegateRef().OnValueUpdated(value, nil)
}

// disconnect simulates the radio observing a disconnect.
func (p *fakePeripheral) disconnect(err error) {
	p.delegateRef().OnDisconnect(err)
}
