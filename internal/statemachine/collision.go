package statemachine

import (
	"bytes"

	"github.com/tinynet-io/mdnsd/internal/wire"
)

// Outcome is the result of comparing our candidate record against a peer's
// conflicting one during probing (spec §4.3).
type Outcome int

const (
	// OutcomeNoConflict means the peer's record doesn't actually contest
	// ours (e.g. it's a goodbye or has empty data).
	OutcomeNoConflict Outcome = iota
	// OutcomeWeWin means our record is lexicographically greater; we keep
	// our name and need not reschedule probes.
	OutcomeWeWin
	// OutcomeWeLose means the peer's record wins; we must mangle and
	// restart probing.
	OutcomeWeLose
)

// rdataBytes serializes just r's rdata, for the lexicographic comparison
// spec §4.3 and §9 call for ("serialize both records into a temporary
// buffer and compare byte-wise").
func rdataBytes(r wire.Record) ([]byte, error) {
	return wire.EncodeRData(r.Data)
}

// CompareRecords implements the RFC 6762 §8.2 "lexicographically greater"
// tie-break: the peer's record loses if ours sorts greater byte-wise. A
// peer record with TTL=0 (goodbye) or empty rdata never conflicts (spec
// §4.3: "If the conflicting record on the wire has TTL=0 ... or its data is
// empty, we keep our name").
func CompareRecords(ours, theirs wire.Record) Outcome {
	if theirs.TTL == 0 {
		return OutcomeNoConflict
	}

	oursBytes, err1 := rdataBytes(ours)
	theirsBytes, err2 := rdataBytes(theirs)
	if err1 != nil || err2 != nil || len(theirsBytes) == 0 {
		return OutcomeNoConflict
	}

	switch bytes.Compare(oursBytes, theirsBytes) {
	case 1:
		return OutcomeWeWin
	case 0:
		return OutcomeNoConflict
	default:
		return OutcomeWeLose
	}
}

// CompareSRV implements the SRV collision tie-break: compare priority,
// weight, port, then target name lexicographically (spec §4.3).
func CompareSRV(ours, theirs wire.SRVData) Outcome {
	if ours.Priority != theirs.Priority {
		if ours.Priority > theirs.Priority {
			return OutcomeWeWin
		}
		return OutcomeWeLose
	}
	if ours.Weight != theirs.Weight {
		if ours.Weight > theirs.Weight {
			return OutcomeWeWin
		}
		return OutcomeWeLose
	}
	if ours.Port != theirs.Port {
		if ours.Port > theirs.Port {
			return OutcomeWeWin
		}
		return OutcomeWeLose
	}
	switch bytes.Compare([]byte(ours.Target), []byte(theirs.Target)) {
	case 1:
		return OutcomeWeWin
	case 0:
		return OutcomeNoConflict
	default:
		return OutcomeWeLose
	}
}
