package trimble

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bipm-ttc/mktimetx/pkg/receiver"
)

func beF32Bytes(v float32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func TestBeFloat32_RoundTrips(t *testing.T) {
	v, err := beFloat32(beF32Bytes(0.0825))
	require.NoError(t, err)
	assert.InDelta(t, 0.0825, v, 1e-6)
}

func TestDecode8F_BailsWhenGPSTimeNotYetValid(t *testing.T) {
	d := &Decoder{}
	st := &epochState{}
	payload := make([]byte, 18)
	payload[0], payload[1] = reportTiming, subcodePrimary
	payload[10] = 0x04 // GPS time not set

	require.NoError(t, d.decode8F(receiver.Line{Payload: payload}, st, receiver.NewResult()))
	assert.False(t, st.timeValid)
}

func TestDecode8F_ParsesTimingFieldsWhenValid(t *testing.T) {
	d := &Decoder{}
	st := &epochState{}
	payload := make([]byte, 18)
	payload[0], payload[1] = reportTiming, subcodePrimary
	binary.BigEndian.PutUint32(payload[2:6], 123456)
	binary.BigEndian.PutUint16(payload[6:8], 2300)
	payload[10] = 0 // time valid
	payload[11], payload[12], payload[13] = 45, 30, 14
	payload[14], payload[15] = 15, 6
	binary.BigEndian.PutUint16(payload[16:18], 2024)

	require.NoError(t, d.decode8F(receiver.Line{Payload: payload}, st, receiver.NewResult()))
	assert.True(t, st.timeValid)
	assert.EqualValues(t, 123456, st.gpsTOW)
	assert.EqualValues(t, 2300, st.gpsWN)
	assert.Equal(t, 2024, st.year)
}

func TestDecode5A_SkipsNonGPSSVN(t *testing.T) {
	d := &Decoder{}
	st := &epochState{timeValid: true}
	payload := make([]byte, 14)
	payload[1] = 200 // way beyond GPS SVN range
	require.NoError(t, d.decode5A(receiver.Line{Payload: payload}, st))
	assert.Empty(t, st.meas)
}

func TestDecode5A_AppliesReceiverOffsetAtFlush(t *testing.T) {
	d := &Decoder{}
	st := &epochState{timeValid: true, rxTimeOffset: 10}
	payload := make([]byte, 14)
	payload[1] = 5
	copy(payload[10:14], beF32Bytes(0.077))
	require.NoError(t, d.decode5A(receiver.Line{Payload: payload}, st))

	result := receiver.NewResult()
	d.flush(st, result)
	require.Len(t, result.Receivers, 1)
	require.Len(t, result.Receivers[0].SV, 1)
	assert.InDelta(t, float64(float32(0.077))+10*1e-9, result.Receivers[0].SV[0].Value, 1e-12)
}
