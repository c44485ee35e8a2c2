package ble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/openglm/glm-ble-client/pkg/fragment"
	"github.com/openglm/glm-ble-client/pkg/mtproto"
)

func testLogger() log.Logger { return log.NewNopLogger() }

// buildResponseFrame constructs a raw MT response frame (frame type
// 0) the way a device would, for feeding through a simulated
// notification stream.
func buildResponseFrame(status byte, payload []byte) []byte {
	body := append([]byte{status, byte(len(payload))}, payload...)
	return append(body, mtproto.CRC8(body))
}

func TestSessionSingleChunkRequest(t *testing.T) {
	peripheral := newFakePeripheral("uuid-single")
	session := NewSession(peripheral, testLogger())

	type result struct {
		payload []byte
		err     error
	}
	resCh := make(chan result, 1)
	go func() {
		payload, err := session.SendRequest(context.Background(), 0x53, nil)
		resCh <- result{payload, err}
	}()

	require.Eventually(t, func() bool { return peripheral.writeCount() >= 1 }, time.Second, time.Millisecond)
	chunk := peripheral.lastWrite()
	require.Equal(t, byte((1<<4)|0), chunk[0])
	require.Equal(t, []byte{0xC0, 0x53, 0x00, mtproto.CRC8([]byte{0xC0, 0x53, 0x00})}, chunk[1:])

	peripheral.notify(fragment.EncodeAck(chunk[0]))

	settings := []byte{1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0}
	respFrame := buildResponseFrame(0x00, settings)
	respChunks, _ := fragment.Split(respFrame, 1)
	for _, c := range respChunks {
		peripheral.notify(c)
	}

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		require.Equal(t, settings, res.payload)
	case <-time.After(time.Second):
		t.Fatal("SendRequest did not complete")
	}
}

func TestSessionTwoChunkFrame(t *testing.T) {
	peripheral := newFakePeripheral("uuid-two-chunk")
	session := NewSession(peripheral, testLogger())

	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}
	resCh := make(chan []byte, 1)
	go func() {
		result, err := session.SendRequest(context.Background(), 0x3A, nil)
		require.NoError(t, err)
		resCh <- result
	}()

	require.Eventually(t, func() bool { return peripheral.writeCount() >= 1 }, time.Second, time.Millisecond)

	respFrame := buildResponseFrame(0x00, payload)
	respChunks, lastIndex := fragment.Split(respFrame, 1)
	require.Equal(t, 1, lastIndex, "20-byte payload plus 2-byte header and CRC byte must need two chunks")

	// Feed the first chunk only: the assembler must not yield yet.
	peripheral.notify(respChunks[0])
	select {
	case <-resCh:
		t.Fatal("response resolved before the final chunk arrived")
	case <-time.After(20 * time.Millisecond):
	}

	peripheral.notify(respChunks[1])
	select {
	case got := <-resCh:
		require.Equal(t, payload, got)
	case <-time.After(time.Second):
		t.Fatal("SendRequest did not complete after final chunk")
	}
}

func TestSessionCRCFailurePropagatesToClaim(t *testing.T) {
	peripheral := newFakePeripheral("uuid-crc")
	session := NewSession(peripheral, testLogger())

	payload := make([]byte, 20)
	resCh := make(chan error, 1)
	go func() {
		_, err := session.SendRequest(context.Background(), 0x3A, nil)
		resCh <- err
	}()

	require.Eventually(t, func() bool { return peripheral.writeCount() >= 1 }, time.Second, time.Millisecond)

	respFrame := buildResponseFrame(0x00, payload)
	respFrame[len(respFrame)-1] ^= 0xFF // corrupt the trailing CRC byte
	respChunks, _ := fragment.Split(respFrame, 1)
	for _, c := range respChunks {
		peripheral.notify(c)
	}

	select {
	case err := <-resCh:
		var crcErr mtproto.CRCError
		require.ErrorAs(t, err, &crcErr)
	case <-time.After(time.Second):
		t.Fatal("SendRequest did not fail on CRC error")
	}
}

func TestSessionDisconnectMidRequestFailsInFlightAndFutureRequests(t *testing.T) {
	peripheral := newFakePeripheral("uuid-disconnect")
	peripheral.autoRespondWrites = false // hold the write open so we can disconnect mid-flight
	session := NewSession(peripheral, testLogger())

	resCh := make(chan error, 1)
	go func() {
		_, err := session.SendRequest(context.Background(), 0x53, nil)
		resCh <- err
	}()

	require.Eventually(t, func() bool { return peripheral.writeCount() >= 1 }, time.Second, time.Millisecond)

	peripheral.disconnect(errors.New("lost connection"))

	select {
	case err := <-resCh:
		var linkErr mtproto.LinkError
		require.ErrorAs(t, err, &linkErr)
	case <-time.After(time.Second):
		t.Fatal("in-flight SendRequest did not fail on disconnect")
	}

	_, err := session.SendRequest(context.Background(), 0x53, nil)
	require.Error(t, err)
}

func TestSessionAtMostOneChunkInFlight(t *testing.T) {
	peripheral := newFakePeripheral("uuid-inflight")
	peripheral.autoRespondWrites = false
	session := NewSession(peripheral, testLogger())

	// A big payload forces multiple chunks.
	go session.SendRequest(context.Background(), 0x3B, make([]byte, 19*3))

	require.Eventually(t, func() bool { return peripheral.writeCount() >= 1 }, time.Second, time.Millisecond)

	// Observe between pumps: never more than one write-response
	// completion outstanding.
	session.writeMu.Lock()
	inFlight := len(session.submittedWrites)
	session.writeMu.Unlock()
	require.LessOrEqual(t, inFlight, 1)

	// The next chunk is only pumped out once the peer acks the one
	// just sent — our own write-response alone must not advance the
	// queue.
	first := peripheral.lastWrite()
	peripheral.delegateRef().OnWriteComplete(nil)
	require.Never(t, func() bool { return peripheral.writeCount() >= 2 }, 20*time.Millisecond, time.Millisecond)

	peripheral.notify(fragment.EncodeAck(first[0]))
	require.Eventually(t, func() bool { return peripheral.writeCount() >= 2 }, time.Second, time.Millisecond)

	session.writeMu.Lock()
	inFlight = len(session.submittedWrites)
	session.writeMu.Unlock()
	require.LessOrEqual(t, inFlight, 1)
}
