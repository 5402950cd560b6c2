// Package statemachine drives one PCB's OFF->INIT->PROBE_1..3->
// ANNOUNCE_1..3->RUNNING/DUP lifecycle (spec §4.3). Grounded on
// micro-go-micro/util/mdns/server.go's probe()/announce timing shape
// (three spaced probes, then doubling announce delays) and on
// original_source mdns.c's exact collision/rename/duplicate rules, which
// spec.md §4.3 only summarizes.
package statemachine

import (
	"time"

	"github.com/tinynet-io/mdnsd/internal/xrand"
)

const (
	// ProbeInterval is the gap between successive probes (spec §4.3).
	ProbeInterval = 250 * time.Millisecond
	// AnnounceInterval is the gap between successive announcements.
	AnnounceInterval = 1000 * time.Millisecond
	// ProbeCount is the number of probes sent before announcing.
	ProbeCount = 3
	// AnnounceCount is the number of announcement copies sent.
	AnnounceCount = 3

	// failedProbeThreshold is the failed_probes count past which the
	// initial/retry probe delay switches to the slower back-off schedule
	// (spec §4.3).
	failedProbeThreshold = 5
)

// InitialProbeDelay returns the delay before the first probe of a round,
// per spec §4.3: "120ms + random 7-bit ms when failed_probes <= 5; 1000ms +
// random 7-bit ms otherwise."
func InitialProbeDelay(rnd xrand.Source, failedProbes int) time.Duration {
	jitter := time.Duration(rnd.IntN(128)) * time.Millisecond
	if failedProbes <= failedProbeThreshold {
		return 120*time.Millisecond + jitter
	}
	return time.Second + jitter
}

// RenameRestartDelay returns the delay before PROBE_1 restarts after a
// collision forces a rename: "120-247ms (or +1s after >5 failed probes)"
// (spec §4.3). This is the same schedule as InitialProbeDelay; named
// separately because the two call sites (first enable vs. post-collision
// restart) are conceptually distinct events in the FSM.
func RenameRestartDelay(rnd xrand.Source, failedProbes int) time.Duration {
	return InitialProbeDelay(rnd, failedProbes)
}

// sharedAnswerSteps is the static 4-step shared-answer delay cycle (spec
// §4.3 "cycling through a 4-step sequence"; spec §9 Open Question (ii):
// "replicate the behavior unless tests demand otherwise").
var sharedAnswerSteps = [4]time.Duration{
	25 * time.Millisecond,
	50 * time.Millisecond,
	75 * time.Millisecond,
	100 * time.Millisecond,
}

// SharedAnswerDelay returns the delay for the step'th shared-record
// response, cycling through the 4-step sequence.
func SharedAnswerDelay(step int) time.Duration {
	return sharedAnswerSteps[step%len(sharedAnswerSteps)]
}
