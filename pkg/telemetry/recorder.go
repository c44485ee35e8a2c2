package telemetry

import (
	"fmt"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// recordedFrame is one CBOR-encoded entry in a recording file: a
// timestamp (supplied by the caller, never time.Now — see Recorder's
// doc comment), the peripheral it came from, the MT command code, and
// the raw frame payload.
type recordedFrame struct {
	UnixNano       int64  `cbor:"ts"`
	PeripheralUUID string `cbor:"peripheral"`
	Command        byte   `cbor:"command"`
	Payload        []byte `cbor:"payload"`
}

// Recorder CBOR-encodes the frames its caller passes to Record to a
// file, one frame per call, for offline replay during development. It
// is not attached to the response stream; cmd/glm-bridged records only
// device-initiated 0x50 sync containers (spec
// SPEC_FULL.md "DOMAIN STACK"). Callers supply the timestamp, since
// this package never calls time.Now itself.
type Recorder struct {
	mu sync.Mutex
	f  *os.File
	enc *cbor.Encoder
}

// NewRecorder opens (truncating) path for CBOR-encoded frame
// recording.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open recording file %s: %w", path, err)
	}
	return &Recorder{f: f, enc: cbor.NewEncoder(f)}, nil
}

// Record appends one frame to the recording.
func (r *Recorder) Record(unixNano int64, peripheralUUID string, command byte, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(recordedFrame{
		UnixNano:       unixNano,
		PeripheralUUID: peripheralUUID,
		Command:        command,
		Payload:        payload,
	})
}

// Close closes the underlying file.
func (r *Recorder) Close() error {
	return r.f.Close()
}
