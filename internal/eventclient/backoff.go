package eventclient

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// falloffPolicy implements backoff.BackOff with spec.md §4.4's reconnect
// falloff table: interval = base × min(falloff, maxFalloff), falloff
// starts at 0 and increments by 1 on every NextBackOff call, Reset drops
// it back to 0. cenkalti/backoff/v4 supplies the interface and would-be
// timer primitive (used the same way the teacher never got around to —
// it is present in its go.mod but unused); the multiplier table itself
// is spec.md's linear falloff, not the library's own exponential growth.
type falloffPolicy struct {
	base       time.Duration
	maxFalloff int
	falloff    int
}

var _ backoff.BackOff = (*falloffPolicy)(nil)

func newFalloffPolicy(base time.Duration, maxFalloff int) *falloffPolicy {
	return &falloffPolicy{base: base, maxFalloff: maxFalloff}
}

// NextBackOff returns the next reconnect delay and advances the falloff
// counter.
func (p *falloffPolicy) NextBackOff() time.Duration {
	p.falloff++
	if p.falloff > p.maxFalloff {
		p.falloff = p.maxFalloff
	}
	return p.base * time.Duration(p.falloff)
}

// Reset drops the falloff counter to 0, the state spec.md requires after
// every successful Open.
func (p *falloffPolicy) Reset() {
	p.falloff = 0
}
