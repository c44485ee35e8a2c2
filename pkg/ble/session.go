// Package ble implements the MT link layer over BLE: the per-peripheral
// session that turns the TX/RX characteristic pair into a reliable,
// ordered request/response channel (component E), and the central
// manager that discovers and connects known peripherals (component F).
package ble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/openglm/glm-ble-client/pkg/async"
	"github.com/openglm/glm-ble-client/pkg/bleradio"
	"github.com/openglm/glm-ble-client/pkg/fragment"
	"github.com/openglm/glm-ble-client/pkg/mtproto"
)

// RequestHandler processes a device-initiated MT request frame's
// payload (spec §4.E "Request from device"). Handlers are looked up by
// command code; unregistered commands are ignored.
type RequestHandler func(payload []byte)

// frameResult is what a completed response frame posts to the
// response stream.
type frameResult struct {
	status  byte
	payload []byte
}

type writeItem struct {
	completion *async.Future // nil: no one is waiting on this write
	chunk      []byte        // nil: flush sentinel, complete immediately on pop
}

// SessionOption configures a Session at construction time.
type SessionOption func(*Session)

// WithRequestHandler registers a handler for a device-initiated
// request command before discovery traffic can arrive.
func WithRequestHandler(command byte, handler RequestHandler) SessionOption {
	return func(s *Session) {
		s.handlers[command] = handler
	}
}

// Session is one peripheral's MT link layer session (spec §4.E).
type Session struct {
	uuidString string
	peripheral bleradio.Peripheral
	logger     log.Logger

	readyMu    sync.Mutex
	readyGates struct{ tx, rx, notify bool }
	ready      *async.Fuse

	disconnected *async.Fuse

	reassembleMu sync.Mutex
	reassembler  *fragment.Reassembler

	txSeqnoMu sync.Mutex
	txSeqno   byte

	writeMu         sync.Mutex
	deferredWrites  []writeItem
	submittedWrites []*async.Future

	responseStream *async.FutureStream

	requestMu sync.Mutex // serializes sendRequest per spec §9 "Concurrent requesters"

	handlersMu sync.Mutex
	handlers   map[byte]RequestHandler
}

// NewSession constructs a session for an already-connected peripheral
// and begins characteristic discovery. The session installs itself as
// the peripheral's delegate.
func NewSession(peripheral bleradio.Peripheral, logger log.Logger, opts ...SessionOption) *Session {
	s := &Session{
		uuidString:     peripheral.UUIDString(),
		peripheral:     peripheral,
		logger:         logger,
		ready:          async.NewFuse(),
		disconnected:   async.NewFuse(),
		reassembler:    fragment.NewReassembler(),
		txSeqno:        fragment.MinSeqno,
		responseStream: async.NewFutureStream(),
		handlers:       make(map[byte]RequestHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	peripheral.SetDelegate(s)
	level.Info(s.logger).Log("msg", "discovering MT characteristics", "peripheral", s.uuidString)
	peripheral.DiscoverCharacteristics()
	return s
}

// UUIDString returns the peripheral's stable identifier.
func (s *Session) UUIDString() string { return s.uuidString }

// HandleCommand registers (or replaces) the handler for a
// device-initiated request command. Safe to call after construction,
// unlike the WithRequestHandler option.
func (s *Session) HandleCommand(command byte, handler RequestHandler) {
	s.handlersMu.Lock()
	s.handlers[command] = handler
	s.handlersMu.Unlock()
}

// Disconnected reports whether the session has observed a disconnect.
func (s *Session) Disconnected() bool { return s.disconnected.Triggered() }

// Close tears down the BLE connection.
func (s *Session) Close() error {
	return s.peripheral.Disconnect()
}

// --- readiness ---

func (s *Session) updateReadiness(set func()) {
	s.readyMu.Lock()
	set()
	allReady := s.readyGates.tx && s.readyGates.rx && s.readyGates.notify
	s.readyMu.Unlock()
	if allReady && !s.ready.Triggered() {
		s.ready.Trigger(nil, nil)
	}
}

func (s *Session) awaitReady(ctx context.Context) error {
	fut, cancel := s.ready.Register()
	defer cancel()
	_, err := fut.Wait(ctx)
	return err
}

// --- write pipeline ---

// submitWrite pushes a completion slot onto submittedWrites and issues
// the radio write. Used both by the pump (our own request/flush
// items) and directly for ack chunks, which bypass the deferred queue
// entirely so an ack is never stuck behind a pending request (spec
// §4.C: every accepted non-ack chunk earns exactly one ack).
func (s *Session) submitWrite(completion *async.Future, data []byte) {
	s.writeMu.Lock()
	s.submittedWrites = append(s.submittedWrites, completion)
	s.writeMu.Unlock()
	s.peripheral.WriteChunk(data)
}

// pump pops one deferred write and acts on it: a chunk is submitted to
// the radio; a flush sentinel completes immediately. Invoked after
// every enqueue and after every peer ack (spec §4.E).
func (s *Session) pump() {
	s.writeMu.Lock()
	if len(s.deferredWrites) == 0 {
		s.writeMu.Unlock()
		return
	}
	item := s.deferredWrites[0]
	s.deferredWrites = s.deferredWrites[1:]
	s.writeMu.Unlock()

	if item.chunk != nil {
		s.submitWrite(item.completion, item.chunk)
		return
	}
	if item.completion != nil {
		item.completion.Complete(nil, nil)
	}
}

func (s *Session) enqueueAndPump(item writeItem) {
	s.writeMu.Lock()
	s.deferredWrites = append(s.deferredWrites, item)
	s.writeMu.Unlock()
	s.pump()
}

// --- bleradio.Delegate ---

func (s *Session) OnCharacteristicDiscovered(kind bleradio.CharacteristicKind, err error) {
	if err != nil {
		level.Error(s.logger).Log("msg", "characteristic discovery failed", "kind", kind, "err", err)
		s.ready.Trigger(nil, mtproto.LinkError{Cause: err})
		return
	}
	switch kind {
	case bleradio.CharacteristicTX:
		s.updateReadiness(func() { s.readyGates.tx = true })
	case bleradio.CharacteristicRX:
		s.updateReadiness(func() { s.readyGates.rx = true })
		s.peripheral.EnableRXNotifications()
	}
}

func (s *Session) OnNotifyStateChanged(err error) {
	if err != nil {
		level.Error(s.logger).Log("msg", "enable notifications failed", "err", err)
		s.ready.Trigger(nil, mtproto.LinkError{Cause: err})
		return
	}
	s.updateReadiness(func() { s.readyGates.notify = true })
}

func (s *Session) OnValueUpdated(value []byte, err error) {
	if err != nil {
		s.responseStream.Post(nil, mtproto.LinkError{Cause: err})
		return
	}
	if len(value) == 0 {
		return
	}
	isAck, peerSeqno, chunk, decodeErr := fragment.DecodeChunk(value)
	if decodeErr != nil {
		level.Debug(s.logger).Log("msg", "dropping malformed chunk", "err", decodeErr)
		return
	}
	if isAck {
		level.Debug(s.logger).Log("msg", "received ack", "seqno", peerSeqno)
		s.pump()
		return
	}

	s.submitWrite(nil, fragment.EncodeAck(chunk.HeaderByte()))

	s.reassembleMu.Lock()
	frame, complete := s.reassembler.Feed(chunk)
	s.reassembleMu.Unlock()
	if !complete {
		return
	}
	decoded, frameErr := mtproto.DecodeFrameWithCRC(frame)
	if frameErr != nil {
		s.responseStream.Post(nil, frameErr)
		return
	}
	switch decoded.Type {
	case mtproto.FrameTypeResponse:
		s.responseStream.Post(frameResult{status: decoded.Status, payload: decoded.Payload}, nil)
	case mtproto.FrameTypeRequest:
		s.dispatchRequest(decoded.Command, decoded.Payload)
	}
}

func (s *Session) dispatchRequest(command byte, payload []byte) {
	s.handlersMu.Lock()
	handler, ok := s.handlers[command]
	s.handlersMu.Unlock()
	if !ok {
		level.Debug(s.logger).Log("msg", "ignoring unhandled device request", "command", fmt.Sprintf("0x%02x", command))
		return
	}
	handler(payload)
}

func (s *Session) OnWriteComplete(err error) {
	s.writeMu.Lock()
	if len(s.submittedWrites) == 0 {
		s.writeMu.Unlock()
		level.Debug(s.logger).Log("msg", "unexpected write callback")
		return
	}
	completion := s.submittedWrites[0]
	s.submittedWrites = s.submittedWrites[1:]
	s.writeMu.Unlock()
	if completion == nil {
		return
	}
	if err != nil {
		completion.Complete(nil, mtproto.LinkError{Cause: err})
		return
	}
	completion.Complete(nil, nil)
}

func (s *Session) OnDisconnect(err error) {
	if err == nil {
		err = fmt.Errorf("peripheral disconnected")
	}
	wrapped := mtproto.LinkError{Cause: err}
	level.Warn(s.logger).Log("msg", "peripheral disconnected", "peripheral", s.uuidString, "err", err)
	s.responseStream.SetTerminalError(wrapped)
	s.disconnected.Trigger(nil, wrapped)
}

// --- request/response ---

// SendRequest issues an MT command with the given payload and returns
// the response payload, or an error if the status byte was non-zero,
// the link failed, or ctx was cancelled (spec §4.E).
func (s *Session) SendRequest(ctx context.Context, command byte, payload []byte) ([]byte, error) {
	s.requestMu.Lock()
	defer s.requestMu.Unlock()

	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}

	fut, cancel := s.disconnected.Register()
	defer cancel()

	if !fut.Done() {
		frame, err := mtproto.EncodeRequest(command, payload)
		if err != nil {
			return nil, err
		}

		s.txSeqnoMu.Lock()
		seqno := s.txSeqno
		s.txSeqno = fragment.NextSeqno(seqno)
		s.txSeqnoMu.Unlock()

		chunks, lastIndex := fragment.Split(frame, seqno)
		s.writeMu.Lock()
		for i, c := range chunks {
			var completion *async.Future
			if i == lastIndex {
				completion = fut
			}
			s.deferredWrites = append(s.deferredWrites, writeItem{completion: completion, chunk: c})
		}
		s.writeMu.Unlock()
		s.pump()
	}

	if _, err := fut.Wait(ctx); err != nil {
		return nil, err
	}

	claimed := s.responseStream.Claim()
	result, err := claimed.Wait(ctx)
	if err != nil {
		return nil, err
	}
	fr := result.(frameResult)
	if fr.status != 0 {
		return nil, mtproto.StatusError{Code: fr.status}
	}
	return fr.payload, nil
}

// Flush enqueues a marker into the write pipeline and waits for every
// write queued ahead of it to finish submitting (spec §4.E's "flush").
func (s *Session) Flush(ctx context.Context) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	fut, cancel := s.disconnected.Register()
	defer cancel()
	if !fut.Done() {
		s.enqueueAndPump(writeItem{completion: fut, chunk: nil})
	}
	_, err := fut.Wait(ctx)
	return err
}
