package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/openglm/glm-ble-client/pkg/async"
	"github.com/openglm/glm-ble-client/pkg/bleradio"
	"github.com/openglm/glm-ble-client/pkg/mtproto"
)

// AdapterState mirrors the OS Bluetooth adapter's lifecycle (spec
// §4.F).
type AdapterState int

const (
	AdapterStateUnknown AdapterState = iota
	AdapterStateUnsupported
	AdapterStateUnauthorized
	AdapterStatePoweredOff
	AdapterStatePoweredOn
)

// recoveryInterval is how often the central manager re-enters the
// adapter state handler to recover from a stuck powered-off state
// (spec §4.F "periodic 4-second timer").
const recoveryInterval = 4 * time.Second

// CentralManager discovers and connects the peripherals named in its
// allowlist, handing each a Session once connected (spec §4.F).
type CentralManager struct {
	adapter bleradio.Adapter
	logger  log.Logger

	newSessionOpts []SessionOption

	mu         sync.Mutex
	wanted     []string
	known      map[string]struct{}
	connecting map[string]struct{}
	connected  map[string]*Session

	state AdapterState

	connect *async.KeyedEvent

	scanning bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewCentralManager constructs a manager over adapter. opts are passed
// through to every Session created for a newly connected peripheral
// (e.g. WithRequestHandler for device-initiated requests).
func NewCentralManager(adapter bleradio.Adapter, logger log.Logger, opts ...SessionOption) *CentralManager {
	return &CentralManager{
		adapter:        adapter,
		logger:         logger,
		newSessionOpts: opts,
		known:          make(map[string]struct{}),
		connecting:     make(map[string]struct{}),
		connected:      make(map[string]*Session),
		connect:        async.NewKeyedEvent(),
		stop:           make(chan struct{}),
	}
}

// Start begins managing the given allowlist of peripheral UUID
// strings: it powers on the adapter, begins scanning as needed, and
// launches the periodic recovery timer. Start returns once the
// adapter's initial state has been handled; connections continue to
// form asynchronously.
func (m *CentralManager) Start(uuidStrings []string) error {
	m.mu.Lock()
	for _, u := range uuidStrings {
		m.wanted = append(m.wanted, u)
	}
	m.mu.Unlock()

	if err := m.handleAdapterState(); err != nil {
		return err
	}

	m.wg.Add(1)
	go m.recoveryLoop()
	return nil
}

// Stop halts the recovery timer and scanning. Existing sessions are
// left connected; callers close them individually via Session.Close.
func (m *CentralManager) Stop() {
	close(m.stop)
	m.wg.Wait()
	_ = m.adapter.StopScan()
}

func (m *CentralManager) recoveryLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if err := m.handleAdapterState(); err != nil {
				level.Error(m.logger).Log("msg", "adapter recovery failed", "err", err)
			}
		}
	}
}

// handleAdapterState runs the adapter lifecycle decision described in
// spec §4.F. It is re-entrant: called once at Start and again every
// recoveryInterval.
func (m *CentralManager) handleAdapterState() error {
	err := m.adapter.Enable()
	switch {
	case err == nil:
		m.setState(AdapterStatePoweredOn)
		return m.reconcileWanted()
	case err == bleradio.ErrUnsupported:
		m.setState(AdapterStateUnsupported)
		return mtproto.AdapterFatalError{Reason: "bluetooth low energy not supported"}
	case err == bleradio.ErrUnauthorized:
		m.setState(AdapterStateUnauthorized)
		return mtproto.AdapterFatalError{Reason: "bluetooth low energy permission denied"}
	default:
		// Transient powered-off state: best-effort, retried by the
		// recovery timer.
		m.setState(AdapterStatePoweredOff)
		level.Warn(m.logger).Log("msg", "bluetooth adapter not yet powered on", "err", err)
		return nil
	}
}

func (m *CentralManager) setState(state AdapterState) {
	m.mu.Lock()
	prev := m.state
	m.state = state
	if state != AdapterStatePoweredOn && prev == AdapterStatePoweredOn {
		m.known = make(map[string]struct{})
		m.connecting = make(map[string]struct{})
	}
	m.mu.Unlock()
}

// reconcileWanted retrieves already-known peripherals and starts or
// stops scanning depending on whether any wanted peripheral remains
// undiscovered.
func (m *CentralManager) reconcileWanted() error {
	m.mu.Lock()
	wanted := append([]string(nil), m.wanted...)
	m.mu.Unlock()

	if len(wanted) == 0 {
		return nil
	}

	for _, result := range m.adapter.RetrieveKnown(wanted) {
		m.onDiscovered(result.UUIDString)
	}

	m.mu.Lock()
	allKnown := true
	for _, u := range wanted {
		if _, ok := m.known[u]; !ok {
			allKnown = false
			break
		}
	}
	shouldScan := !allKnown
	alreadyScanning := m.scanning
	m.mu.Unlock()

	if shouldScan && !alreadyScanning {
		if err := m.adapter.Scan(func(r bleradio.ScanResult) { m.onDiscovered(r.UUIDString) }); err != nil {
			return fmt.Errorf("ble: start scan: %w", err)
		}
		m.mu.Lock()
		m.scanning = true
		m.mu.Unlock()
	} else if !shouldScan && alreadyScanning {
		if err := m.adapter.StopScan(); err != nil {
			level.Warn(m.logger).Log("msg", "stop scan failed", "err", err)
		}
		m.mu.Lock()
		m.scanning = false
		m.mu.Unlock()
	}
	return nil
}

func (m *CentralManager) isWanted(uuidString string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.wanted {
		if u == uuidString {
			return true
		}
	}
	return false
}

// onDiscovered marks a peripheral known and, if wanted and not already
// connecting/connected, initiates a connection.
func (m *CentralManager) onDiscovered(uuidString string) {
	if !m.isWanted(uuidString) {
		return
	}

	m.mu.Lock()
	m.known[uuidString] = struct{}{}
	_, connecting := m.connecting[uuidString]
	_, connected := m.connected[uuidString]
	if connecting || connected {
		m.mu.Unlock()
		return
	}
	m.connecting[uuidString] = struct{}{}
	m.mu.Unlock()

	go m.connectOne(uuidString)
}

func (m *CentralManager) connectOne(uuidString string) {
	level.Info(m.logger).Log("msg", "connecting to peripheral", "peripheral", uuidString)
	peripheral, err := m.adapter.Connect(uuidString)

	m.mu.Lock()
	delete(m.connecting, uuidString)
	if err != nil {
		m.mu.Unlock()
		level.Error(m.logger).Log("msg", "connect failed", "peripheral", uuidString, "err", err)
		m.connect.Trigger(uuidString, nil, mtproto.LinkError{Cause: err})
		return
	}
	session := NewSession(peripheral, log.With(m.logger, "peripheral", uuidString), m.newSessionOpts...)
	m.connected[uuidString] = session
	m.mu.Unlock()

	m.connect.Trigger(uuidString, session, nil)
	go m.watchDisconnect(uuidString, session)
}

func (m *CentralManager) watchDisconnect(uuidString string, session *Session) {
	fut, cancel := session.disconnected.Register()
	defer cancel()
	_, _ = fut.Wait(context.Background())

	m.mu.Lock()
	if m.connected[uuidString] == session {
		delete(m.connected, uuidString)
		delete(m.known, uuidString)
	}
	m.mu.Unlock()

	level.Warn(m.logger).Log("msg", "peripheral disconnected", "peripheral", uuidString)
}

// DeviceFromUUIDString returns the session for uuidString, connecting
// to it first if necessary, blocking until a session exists or ctx is
// done (spec §4.F "deviceFromUUIDString").
func (m *CentralManager) DeviceFromUUIDString(ctx context.Context, uuidString string) (*Session, error) {
	m.mu.Lock()
	isNew := true
	for _, u := range m.wanted {
		if u == uuidString {
			isNew = false
			break
		}
	}
	if isNew {
		m.wanted = append(m.wanted, uuidString)
	}
	if session, ok := m.connected[uuidString]; ok {
		m.mu.Unlock()
		return session, nil
	}
	m.mu.Unlock()

	fut, cancel := m.connect.Register(uuidString)
	defer cancel()

	if isNew {
		if err := m.reconcileWanted(); err != nil {
			return nil, err
		}
	}

	value, err := fut.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return value.(*Session), nil
}
