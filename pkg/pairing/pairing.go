// Package pairing implements the measurement alignment engine (spec.md §4.4,
// L5): a fixed 86400-slot array aligning receiver and counter epochs on the
// UTC integer-second grid.
package pairing

import (
	"fmt"

	"github.com/bipm-ttc/mktimetx/pkg/measurement"
)

// SlotsPerDay is the number of UTC seconds-of-day, and the size of the
// pairing array (spec.md §3 MeasurementPair).
const SlotsPerDay = 86400

// Stats reports the outcome of a pairing run (spec.md §6 process-log
// diagnostics).
type Stats struct {
	Matched             int
	DuplicateCounters   int
	DuplicateReceivers  int
}

// Pair aligns counter and receiver measurements onto an 86400-slot array
// indexed by UTC second-of-day (spec.md §4.4). Pass 1 attaches counter
// readings, retaining the first on a duplicate slot and flagging the
// duplicate. Pass 2 does the same for receiver epochs, using the PC
// timestamp. Pass 3 links matched pairs and checks strict monotonicity of
// the counter-measurement-bearing slots in PC-seconds-of-day order,
// returning an error (fatal per spec.md §7) if that invariant is violated.
func Pair(counters []*measurement.CounterMeasurement, receivers []*measurement.ReceiverMeasurement) ([SlotsPerDay]measurement.Pair, Stats, error) {
	var pairs [SlotsPerDay]measurement.Pair
	var stats Stats

	for _, c := range counters {
		i := c.SecondOfDay()
		if i < 0 || i >= SlotsPerDay {
			continue
		}
		if pairs[i].Flags&measurement.FlagHasCounter != 0 {
			pairs[i].Flags |= measurement.FlagDuplicateCounter
			stats.DuplicateCounters++
			continue // retain first
		}
		pairs[i].Flags |= measurement.FlagHasCounter
		pairs[i].Counter = c
	}

	for _, r := range receivers {
		i := r.SecondOfDay()
		if i < 0 || i >= SlotsPerDay {
			continue
		}
		if pairs[i].Flags&measurement.FlagHasReceiver != 0 {
			pairs[i].Flags |= measurement.FlagDuplicateReceiver
			stats.DuplicateReceivers++
			continue // retain first
		}
		pairs[i].Flags |= measurement.FlagHasReceiver
		pairs[i].Receiver = r
	}

	lastSlot := -1
	for i := 0; i < SlotsPerDay; i++ {
		if !pairs[i].Matched() {
			continue
		}
		pairs[i].Receiver.Counter = pairs[i].Counter
		stats.Matched++
		if i <= lastSlot {
			return pairs, stats, fmt.Errorf("pairing: matched pairs are not monotonic in PC seconds-of-day at slot %d (last=%d)", i, lastSlot)
		}
		lastSlot = i
	}

	return pairs, stats, nil
}
