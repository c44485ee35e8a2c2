package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFutureCompletesOnce(t *testing.T) {
	fut := NewFuture()
	require.True(t, fut.Complete("first", nil))
	require.False(t, fut.Complete("second", nil))

	value, err := fut.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "first", value)
}

func TestFutureWaitRespectsContext(t *testing.T) {
	fut := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := fut.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuseListenBeforeAndAfterTrigger(t *testing.T) {
	fuse := NewFuse()
	before, cancelBefore := fuse.Register()
	defer cancelBefore()

	fuse.Trigger(42, nil)

	after, cancelAfter := fuse.Register()
	defer cancelAfter()

	for _, fut := range []*Future{before, after} {
		value, err := fut.Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, 42, value)
	}
}

func TestFuseTriggerIsIdempotent(t *testing.T) {
	fuse := NewFuse()
	fuse.Trigger(1, nil)
	fuse.Trigger(2, errors.New("ignored"))

	fut, cancel := fuse.Register()
	defer cancel()
	value, err := fut.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, value)
}

func TestFutureStreamClaimBeforePost(t *testing.T) {
	stream := NewFutureStream()
	claimed := stream.Claim()
	stream.Post("result", nil)

	value, err := claimed.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "result", value)
}

func TestFutureStreamPostBeforeClaim(t *testing.T) {
	stream := NewFutureStream()
	stream.Post("early", nil)

	value, err := stream.Claim().Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "early", value)
}

func TestFutureStreamFIFOOrdering(t *testing.T) {
	stream := NewFutureStream()
	const n = 20
	claims := make([]*Future, n)
	for i := 0; i < n; i++ {
		claims[i] = stream.Claim()
	}
	for i := 0; i < n; i++ {
		stream.Post(i, nil)
	}
	for i := 0; i < n; i++ {
		value, err := claims[i].Wait(context.Background())
		require.NoError(t, err)
		require.Equal(t, i, value)
	}
}

func TestFutureStreamTerminalErrorFailsPendingAndFutureClaims(t *testing.T) {
	stream := NewFutureStream()
	pending := stream.Claim()

	terminal := errors.New("link down")
	stream.SetTerminalError(terminal)

	_, err := pending.Wait(context.Background())
	require.ErrorIs(t, err, terminal)

	_, err = stream.Claim().Wait(context.Background())
	require.ErrorIs(t, err, terminal)
}

func TestFutureStreamLateSuccessSurvivesTerminalError(t *testing.T) {
	stream := NewFutureStream()
	stream.Post("queued", nil)
	stream.SetTerminalError(errors.New("link down"))

	value, err := stream.Claim().Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "queued", value)
}

func TestKeyedEventDeliversOnlyToItsKey(t *testing.T) {
	event := NewKeyedEvent()
	futA, cancelA := event.Register("a")
	defer cancelA()
	futB, cancelB := event.Register("b")
	defer cancelB()

	event.Trigger("a", "for-a", nil)

	require.True(t, futA.Done())
	require.False(t, futB.Done())
}

func TestConcurrentClaimsAndPostsPairUpExactlyOnce(t *testing.T) {
	stream := NewFutureStream()
	const n = 100
	var wg sync.WaitGroup
	results := make([]int, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := stream.Claim().Wait(context.Background())
			require.NoError(t, err)
			results[i] = value.(int)
		}(i)
	}
	for i := 0; i < n; i++ {
		go stream.Post(i, nil)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, v := range results {
		require.False(t, seen[v], "value %d delivered more than once", v)
		seen[v] = true
	}
	require.Len(t, seen, n)
}
