package javad

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bipm-ttc/mktimetx/pkg/receiver"
)

func le64(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func TestDecodeTO_RejectsOutlier(t *testing.T) {
	d := &Decoder{}
	st := newEpochState()
	err := d.decodeTO(receiver.Line{Payload: le64(0.01)}, st)
	assert.Error(t, err)
}

func TestDecodeTO_AcceptsInRangeOffset(t *testing.T) {
	d := &Decoder{}
	st := newEpochState()
	require.NoError(t, d.decodeTO(receiver.Line{Payload: le64(1e-7)}, st))
	assert.Equal(t, 1e-7, st.rxTimeOffset)
	assert.NotZero(t, st.have&msgTO)
}

func TestDecodeRC_ResolvesOnePseudorangePerTrackedSV(t *testing.T) {
	d := &Decoder{}
	st := newEpochState()
	st.trackedSVs = []int{3, 14}
	payload := append(le64(0.075), le64(0.080)...)
	require.NoError(t, d.decodeRC(receiver.Line{Payload: payload}, st))
	require.Len(t, st.caPr, 2)
	assert.InDelta(t, 0.075, st.caPr[0], 1e-12)
	assert.InDelta(t, 0.080, st.caPr[1], 1e-12)
}

func TestFlushEpoch_DropsUnlockedAndOutOfRangeSVs(t *testing.T) {
	d := &Decoder{}
	st := newEpochState()
	st.have = reqdMsgs
	st.trackedSVs = []int{1, 2, 3}
	st.caPr = []float64{0.075, 0.075, 0.500} // 3rd fails the sanity range
	st.lockFlags = []int{83, 0, 83}          // 2nd is not locked ('S' == 83)
	st.gpsTOD = 12345000
	st.rdYear, st.rdMonth, st.rdDay = 2024, 3, 1

	result := receiver.NewResult()
	d.flushEpoch(st, receiver.Line{HH: 3, MM: 25, SS: 45}, result)

	require.Len(t, result.Receivers, 1)
	rm := result.Receivers[0]
	require.Len(t, rm.SV, 1)
	assert.EqualValues(t, 1, rm.SV[0].SVN)
}

func TestFlushEpoch_NoOutputWhenMessagesIncomplete(t *testing.T) {
	d := &Decoder{}
	st := newEpochState()
	st.have = msgSI | msgTO // incomplete
	result := receiver.NewResult()
	d.flushEpoch(st, receiver.Line{}, result)
	assert.Empty(t, result.Receivers)
}
