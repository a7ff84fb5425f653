package nvs

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

func TestDecode46_WrapsTOWIntoOneDay(t *testing.T) {
	d := &Decoder{}
	st := &epochState{}
	payload := make([]byte, 10)
	binary.LittleEndian.PutUint32(payload[0:4], 90000) // 1 day + 3600s
	require.NoError(t, d.decode46(receiver.Line{Payload: payload}, st))
	assert.Equal(t, 90000-86400, st.gpsTOW)
}

func TestDecodeF5_FiltersNonGPSAndBadFlags(t *testing.T) {
	d := &Decoder{}
	st := &epochState{}
	header := make([]byte, 27)
	header[26] = 0 // rxTimeOffset byte

	gpsRec := make([]byte, 30)
	gpsRec[0] = 0x02 // GPS signal bit set
	gpsRec[1] = 7    // SVN
	copy(gpsRec[11:19], le64(75.0))
	gpsRec[27] = 0x01 // valid flag bit

	gloRec := make([]byte, 30)
	gloRec[0] = 0x00 // not GPS
	gloRec[1] = 9

	badRec := make([]byte, 30)
	badRec[0] = 0x02 // GPS signal bit set
	badRec[1] = 8    // SVN
	copy(badRec[11:19], le64(75.0))
	badRec[27] = 0x00 // no usable flag bit

	payload := append(append([]byte{}, header...), gpsRec...)
	payload = append(payload, gloRec...)
	payload = append(payload, badRec...)

	require.NoError(t, d.decodeF5(receiver.Line{Payload: payload}, st))
	require.Len(t, st.meas, 1)
	assert.EqualValues(t, 7, st.meas[0].SVN)
	assert.InDelta(t, 0.075, st.meas[0].Value, 1e-12)
}

func TestDecode72_SignFlipsAndScalesSawtooth(t *testing.T) {
	d := &Decoder{}
	st := &epochState{}
	payload := make([]byte, 34)
	copy(payload[21:29], le64(5e6)) // 5ms in ns
	require.NoError(t, d.decode72(receiver.Line{Payload: payload}, st))
	assert.InDelta(t, -5e-3, st.sawtooth, 1e-12)
}

func TestFlush_RequiresAllThreeMessagesAndNonEmptyMeas(t *testing.T) {
	st := &epochState{have: msg46 | msg72, pctime: "12:00:00"}
	result := receiver.NewResult()
	d := &Decoder{}
	d.flush(st, result)
	assert.Empty(t, result.Receivers)
}
