package telemetry

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func TestRecorderAppendsFramesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recording.cbor")
	rec, err := NewRecorder(path)
	require.NoError(t, err)

	require.NoError(t, rec.Record(1000, "uuid-a", 0x50, []byte{1, 2, 3}))
	require.NoError(t, rec.Record(2000, "uuid-a", 0x53, []byte{4}))
	require.NoError(t, rec.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	dec := cbor.NewDecoder(bytes.NewReader(data))
	var frames []recordedFrame
	for {
		var f recordedFrame
		if err := dec.Decode(&f); err != nil {
			break
		}
		frames = append(frames, f)
	}

	require.Len(t, frames, 2)
	require.Equal(t, recordedFrame{UnixNano: 1000, PeripheralUUID: "uuid-a", Command: 0x50, Payload: []byte{1, 2, 3}}, frames[0])
	require.Equal(t, recordedFrame{UnixNano: 2000, PeripheralUUID: "uuid-a", Command: 0x53, Payload: []byte{4}}, frames[1])
}
