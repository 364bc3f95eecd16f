package auctionhub

import "time"

// reconnectDelays is the fixed backoff schedule for reconnection attempts:
// retry immediately, then 2s, 10s, 30s, and 30s for every attempt after
// that. The schedule is a pure attempt→delay mapping so it can be tested
// without timers.
var reconnectDelays = []time.Duration{
	0,
	2 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// retryDelay returns the delay to wait before reconnection attempt n
// (zero-based).
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(reconnectDelays) {
		return reconnectDelays[len(reconnectDelays)-1]
	}
	return reconnectDelays[attempt]
}
