// Package ratelimit throttles requests per key with the generic cell rate
// algorithm: each key stores a theoretical arrival time (TAT) that advances
// by Period/Requests on every admitted request.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBackend wraps failures of the limiter's storage.
var ErrBackend = errors.New("ratelimit: backend unavailable")

// Limiter checks a key and, when the request is admitted, consumes one slot.
// A limited request leaves the stored state untouched.
type Limiter interface {
	CheckAndConsume(ctx context.Context, key string) (limited bool, err error)
}

// Rate admits Requests per Period, all of which may arrive as one burst.
type Rate struct {
	Requests int
	Period   time.Duration
}

// Validate rejects rates that cannot admit anything.
func (r Rate) Validate() error {
	if r.Requests <= 0 || r.Period <= 0 {
		return fmt.Errorf("ratelimit: invalid rate %d per %s", r.Requests, r.Period)
	}
	return nil
}

// Interval is the emission interval T = Period / Requests.
func (r Rate) Interval() time.Duration {
	return r.Period / time.Duration(r.Requests)
}

// gcra applies one check at now against the stored TAT (zero when absent)
// and returns the TAT to store and whether the request is limited.
func gcra(stored, now time.Time, r Rate) (time.Time, bool) {
	tat := stored
	if tat.Before(now) {
		tat = now
	}
	if tat.Sub(now) <= r.Period-r.Interval() {
		return tat.Add(r.Interval()), false
	}
	return stored, true
}
