package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleKeepsPerClientBuckets(t *testing.T) {
	throttle := NewThrottle(1, 1)

	assert.True(t, throttle.limiter("10.0.0.1").Allow())
	assert.False(t, throttle.limiter("10.0.0.1").Allow(), "second request burns the burst")
	assert.True(t, throttle.limiter("10.0.0.2").Allow(), "other clients have their own bucket")
}

func TestThrottleSweepsIdleClients(t *testing.T) {
	throttle := NewThrottle(1, 1)
	throttle.limiter("10.0.0.1")
	throttle.limiter("10.0.0.2")
	require.Len(t, throttle.limiters, 2)

	// Age one entry past the TTL and force the next call to sweep.
	throttle.limiters["10.0.0.1"].lastSeen = time.Now().Add(-clientIdleTTL - time.Minute)
	throttle.nextSweep = time.Now().Add(-time.Second)

	throttle.limiter("10.0.0.3")

	assert.Len(t, throttle.limiters, 2, "the idle entry is gone, the fresh ones remain")
	assert.NotContains(t, throttle.limiters, "10.0.0.1")
	assert.Contains(t, throttle.limiters, "10.0.0.2")
	assert.Contains(t, throttle.limiters, "10.0.0.3")
}
