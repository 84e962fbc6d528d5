package client

import (
	"math/rand"
	"time"
)

// A request gets only a few tries, so its pauses start short and stay short:
// with DefaultAttempts the whole schedule is under a second.
const (
	retryInitial = 250 * time.Millisecond
	retryMax     = 2 * time.Second
)

// retryWaits returns the pauses between attempts tries. The base doubles from
// initial up to max, and each pause is drawn from [base/2, base] so the cap
// is never exceeded.
func retryWaits(attempts int, initial, max time.Duration) []time.Duration {
	if attempts < 2 {
		return nil
	}
	if initial <= 0 {
		initial = retryInitial
	}
	if max < initial {
		max = initial
	}

	waits := make([]time.Duration, attempts-1)
	base := initial
	for i := range waits {
		half := base / 2
		waits[i] = half + time.Duration(rand.Int63n(int64(base-half+1))) //nolint:gosec // not crypto
		base = min(base*2, max)
	}
	return waits
}
