package counter

import "time"

// Policy bounds the open/lock retry loops.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 5, Delay: 100 * time.Millisecond}
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultPolicy().Attempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}
