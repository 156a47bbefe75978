package ingester

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	assert := assert.New(t)

	initial := time.Second
	max := 30 * time.Second

	prev := time.Duration(0)
	for retries := 0; retries < 6; retries++ {
		d := backoff(retries, initial, max)
		assert.GreaterOrEqual(d, prev)
		prev = d - time.Second // allow for jitter
	}

	// far past the cap, still bounded by max plus jitter
	d := backoff(50, initial, max)
	assert.LessOrEqual(d, max+time.Second)
	assert.GreaterOrEqual(d, max)
}

func TestSleepOrDoneReturnsOnCancel(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// a canceled context must not wait out the full backoff
	start := time.Now()
	sleepOrDone(ctx, time.Minute)
	assert.Less(time.Since(start), 5*time.Second)
}

func TestSleepOrDoneWaits(t *testing.T) {
	assert := assert.New(t)

	start := time.Now()
	sleepOrDone(context.Background(), 10*time.Millisecond)
	assert.GreaterOrEqual(time.Since(start), 10*time.Millisecond)
}

func TestConnStateString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("disconnected", StateDisconnected.String())
	assert.Equal("connecting", StateConnecting.String())
	assert.Equal("connected", StateConnected.String())
	assert.Equal("stopping", StateStopping.String())
	assert.Equal("unknown", ConnState(99).String())
}

func TestStopIsTerminal(t *testing.T) {
	assert := assert.New(t)

	c := &Consumer{}
	assert.Equal(StateDisconnected, c.State())

	c.setState(StateConnecting)
	assert.Equal(StateConnecting, c.State())

	c.Stop()
	assert.Equal(StateStopping, c.State())

	// state transitions after Stop are suppressed
	c.setState(StateConnected)
	assert.Equal(StateStopping, c.State())
	c.setState(StateDisconnected)
	assert.Equal(StateStopping, c.State())
}

func TestIsLive(t *testing.T) {
	assert := assert.New(t)

	c := &Consumer{ReplayWindow: time.Minute}

	// no timestamp on the frame: assume live
	assert.True(c.isLive(&Event{}))

	assert.True(c.isLive(&Event{Time: time.Now().UTC().Format(time.RFC3339)}))
	assert.False(c.isLive(&Event{Time: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)}))
}
