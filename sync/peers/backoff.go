package peers

import (
	"time"
)

// outcome is a negative result reported against a peer.
type outcome int

const (
	outcomeNoProgress outcome = iota
	outcomeNoProgressSevere
	outcomeInvalid
)

func (o outcome) String() string {
	switch o {
	case outcomeNoProgress:
		return "no_progress"
	case outcomeNoProgressSevere:
		return "no_progress_severe"
	case outcomeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// sleepState is the Awake/Asleep state of a peer. The zero value is Awake.
type sleepState struct {
	since time.Time
	until time.Time
}

func (s sleepState) asleep() bool {
	return !s.since.IsZero()
}

// sleep puts the peer to sleep for at least d from now. An existing longer sleep is never
// shortened.
func (s *sleepState) sleep(now time.Time, d time.Duration) {
	s.since = now
	if until := now.Add(d); until.After(s.until) {
		s.until = until
	}
}

// wakeIfDue wakes the peer if its backoff has elapsed and reports whether it did.
func (s *sleepState) wakeIfDue(now time.Time) bool {
	if !s.asleep() || now.Before(s.until) {
		return false
	}
	s.wake()
	return true
}

func (s *sleepState) wake() {
	*s = sleepState{}
}

// offenceRecord counts negative reports against a peer within Parameters.OffenceCooldown of
// each other.
type offenceRecord struct {
	severe  int
	invalid int
	last    time.Time
}

// note registers the outcome and returns how many reports of the same kind preceded it
// within the cooldown.
func (r *offenceRecord) note(o outcome, now time.Time, cooldown time.Duration) int {
	if !r.last.IsZero() && now.Sub(r.last) > cooldown {
		*r = offenceRecord{}
	}
	r.last = now

	var prior int
	switch o {
	case outcomeNoProgressSevere:
		prior = r.severe
		r.severe++
	case outcomeInvalid:
		prior = r.invalid
		r.invalid++
	}
	return prior
}

func (r *offenceRecord) expired(now time.Time, cooldown time.Duration) bool {
	return now.Sub(r.last) > cooldown
}

// backoff returns how long a peer sleeps for the given outcome, where prior is the number of
// earlier reports of the same kind within the cooldown. Severe no-progress reports double the
// backoff for every prior severe report, capped at MaxBackoff.
func backoff(params Parameters, o outcome, prior int) time.Duration {
	switch o {
	case outcomeNoProgress:
		return params.NoProgressBackoff
	case outcomeNoProgressSevere:
		d := params.SevereBackoff
		for i := 0; i < prior && d < params.MaxBackoff; i++ {
			d *= 2
		}
		if d > params.MaxBackoff {
			d = params.MaxBackoff
		}
		return d
	case outcomeInvalid:
		return params.MaxBackoff
	default:
		return 0
	}
}
