package ble

import (
	"sync"

	"github.com/openglm/glm-ble-client/pkg/bleradio"
)

// fakeAdapter is an in-memory bleradio.Adapter driving CentralManager
// tests without a real Bluetooth stack.
type fakeAdapter struct {
	mu sync.Mutex

	enableErr   error
	enableCalls int

	knownUUIDs map[string]bool

	scanHandler func(bleradio.ScanResult)
	scanning    bool
	scanErr     error

	connectErr  map[string]error
	peripherals map[string]*fakePeripheral
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		knownUUIDs:  make(map[string]bool),
		connectErr:  make(map[string]error),
		peripherals: make(map[string]*fakePeripheral),
	}
}

func (a *fakeAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enableCalls++
	return a.enableErr
}

func (a *fakeAdapter) Scan(handler func(bleradio.ScanResult)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scanErr != nil {
		return a.scanErr
	}
	a.scanHandler = handler
	a.scanning = true
	return nil
}

func (a *fakeAdapter) StopScan() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanning = false
	a.scanHandler = nil
	return nil
}

func (a *fakeAdapter) Connect(uuidString string) (bleradio.Peripheral, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.connectErr[uuidString]; ok {
		return nil, err
	}
	p, ok := a.peripherals[uuidString]
	if !ok {
		p = newFakePeripheral(uuidString)
		a.peripherals[uuidString] = p
	}
	return p, nil
}

func (a *fakeAdapter) RetrieveKnown(uuidStrings []string) []bleradio.ScanResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []bleradio.ScanResult
	for _, u := range uuidStrings {
		if a.knownUUIDs[u] {
			out = append(out, bleradio.ScanResult{UUIDString: u})
		}
	}
	return out
}

// advertise simulates a scan hit for uuidString, delivered only while a
// scan is active.
func (a *fakeAdapter) advertise(uuidString string) {
	a.mu.Lock()
	handler := a.scanHandler
	a.mu.Unlock()
	if handler != nil {
		handler(bleradio.ScanResult{UUIDString: uuidString})
	}
}

func (a *fakeAdapter) isScanning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanning
}

func (a *fakeAdapter) setKnown(uuidString string) {
	a.mu.Lock()
	a.knownUUIDs[uuidString] = true
	a.mu.Unlock()
}
