package spsc

import (
	"runtime"
	"time"
)

// Backoff implements the spin-then-sleep idle strategy used by the
// processor and UDP receiver when a ring is empty (or persistently full):
// spin with Gosched for a bounded number of iterations, then fall back to
// a short sleep so an idle shard doesn't burn a full core.
type Backoff struct {
	spins int
}

// SpinThreshold is the number of Gosched-based spins attempted before
// falling back to SleepDuration.
const SpinThreshold = 1000

// SleepDuration is the backoff sleep once SpinThreshold is exceeded.
const SleepDuration = 100 * time.Microsecond

// Wait backs off once: spin while under SpinThreshold, else sleep.
func (b *Backoff) Wait() {
	if b.spins < SpinThreshold {
		runtime.Gosched()
		b.spins++
		return
	}
	time.Sleep(SleepDuration)
}

// Reset clears the spin counter, called after a successful operation.
func (b *Backoff) Reset() {
	b.spins = 0
}
