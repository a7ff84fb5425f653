package pairing

import (
	"testing"
	"time"

	"github.com/bipm-ttc/mktimetx/pkg/measurement"
	"github.com/stretchr/testify/assert"
)

func counterAt(hh, mm, ss int) *measurement.CounterMeasurement {
	return &measurement.CounterMeasurement{HH: hh, MM: mm, SS: ss}
}

func receiverAtPC(hh, mm, ss int) *measurement.ReceiverMeasurement {
	return &measurement.ReceiverMeasurement{PCTime: time.Date(2024, 1, 1, hh, mm, ss, 0, time.UTC)}
}

// S3: pairing on a counter log whose clock steps back by 10s mid-file.
func TestPair_S3_ClockStepBackFlagsExactlyOneDuplicate(t *testing.T) {
	counters := []*measurement.CounterMeasurement{
		counterAt(0, 0, 0),
		counterAt(0, 0, 1),
		counterAt(0, 0, 2),
		// step back 10s
		counterAt(23, 59, 52), // unrelated slot, no collision
		counterAt(0, 0, 1),    // duplicate of the second reading above
	}
	receivers := []*measurement.ReceiverMeasurement{
		receiverAtPC(0, 0, 0),
		receiverAtPC(0, 0, 1),
		receiverAtPC(0, 0, 2),
	}

	pairs, stats, err := Pair(counters, receivers)
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.DuplicateCounters)
	assert.Equal(t, 3, stats.Matched)
	assert.NotZero(t, pairs[1].Flags&measurement.FlagDuplicateCounter)
}

func TestPair_MatchedRequiresBothFlags(t *testing.T) {
	counters := []*measurement.CounterMeasurement{counterAt(0, 0, 0)}
	receivers := []*measurement.ReceiverMeasurement{} // no receiver epoch

	pairs, stats, err := Pair(counters, receivers)
	assert.NoError(t, err)
	assert.Equal(t, 0, stats.Matched)
	assert.False(t, pairs[0].Matched())
	assert.NotZero(t, pairs[0].Flags&measurement.FlagHasCounter)
}

func TestPair_LinksReceiverToCounter(t *testing.T) {
	c := counterAt(1, 2, 3)
	r := receiverAtPC(1, 2, 3)

	_, _, err := Pair([]*measurement.CounterMeasurement{c}, []*measurement.ReceiverMeasurement{r})
	assert.NoError(t, err)
	assert.Same(t, c, r.Counter)
}
