package ublox

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bipm-ttc/mktimetx/pkg/gnss"
	"github.com/bipm-ttc/mktimetx/pkg/receiver"
)

func putLEFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

func TestDecode0215_FiltersUnknownGNSSAndKeepsValidRecord(t *testing.T) {
	d := &Decoder{}
	st := &epochState{}

	header := make([]byte, 16)
	header[11] = 2 // nmeas

	gpsRec := make([]byte, 32)
	putLEFloat64(gpsRec[0:8], 2.1e7) // plausible pseudorange in meters
	gpsRec[20] = 0                   // GPS
	gpsRec[21] = 11                  // svID
	gpsRec[30] = 1                   // trkStat valid

	badRec := make([]byte, 32)
	putLEFloat64(badRec[0:8], 2.1e7)
	badRec[20] = 99 // unknown GNSS ID
	badRec[21] = 5
	badRec[30] = 1

	payload := append(append([]byte{}, header...), gpsRec...)
	payload = append(payload, badRec...)

	require.NoError(t, d.decode0215(receiver.Line{Payload: payload}, st))
	require.Len(t, st.meas, 1)
	assert.Equal(t, gnss.SysGPS, st.meas[0].Constellation)
	assert.EqualValues(t, 11, st.meas[0].SVN)
}

func TestDecode0215_SkipsZeroTrackStatus(t *testing.T) {
	d := &Decoder{}
	st := &epochState{}

	header := make([]byte, 16)
	header[11] = 1

	rec := make([]byte, 32)
	putLEFloat64(rec[0:8], 2.1e7)
	rec[20] = 0
	rec[21] = 4
	rec[30] = 0 // untracked

	payload := append(header, rec...)
	require.NoError(t, d.decode0215(receiver.Line{Payload: payload}, st))
	assert.Empty(t, st.meas)
}

func TestDecode0121_IgnoresWhenUTCNotYetValid(t *testing.T) {
	d := &Decoder{}
	st := &epochState{}
	payload := make([]byte, 20)
	payload[19] = 0 // valid bit not set
	require.NoError(t, d.decode0121(receiver.Line{Payload: payload}, st))
	assert.Zero(t, st.have&msg0121)
}

func TestDecode0121_ParsesUTCWhenValid(t *testing.T) {
	d := &Decoder{}
	st := &epochState{}
	payload := make([]byte, 20)
	binary.LittleEndian.PutUint16(payload[12:14], 2024)
	payload[14], payload[15], payload[16], payload[17], payload[18] = 6, 17, 2, 0, 0
	payload[19] = 0x04 // valid
	require.NoError(t, d.decode0121(receiver.Line{Payload: payload}, st))
	assert.Equal(t, 2024, st.utcYear)
	assert.NotZero(t, st.have&msg0121)
}

func TestDecode0D01_ParsesSawtoothPicoseconds(t *testing.T) {
	d := &Decoder{}
	st := &epochState{}
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint32(payload[8:12], uint32(1500))
	require.NoError(t, d.decode0D01(receiver.Line{Payload: payload}, st))
	assert.EqualValues(t, 1500, st.sawtoothPs)
	assert.NotZero(t, st.have&msg0D01)
}

func TestPow2_MatchesIntegerPowersOfTwo(t *testing.T) {
	assert.Equal(t, 8.0, pow2(3))
	assert.Equal(t, 0.25, pow2(-2))
	assert.Equal(t, 1.0, pow2(0))
}

func sfrbxPayload(gnssID byte, svID byte, words []uint32) []byte {
	payload := make([]byte, 8+4*len(words))
	payload[0] = gnssID
	payload[1] = svID
	payload[4] = byte(len(words))
	for i, w := range words {
		off := 8 + i*4
		binary.LittleEndian.PutUint32(payload[off:off+4], w)
	}
	return payload
}

func TestDecodeSFRBX_RoutesGPSWordsBySubframeAndStoresEphemerisOnCompletion(t *testing.T) {
	var gpsEph, galEph ephemerisScratch
	result := receiver.NewResult()

	words := make([]uint32, 10)
	words[1] = 1 << 8 // subframe 1
	words[2] = 100 << 20
	require.NoError(t, decodeSFRBX(receiver.Line{Payload: sfrbxPayload(0, 7, words)}, &gpsEph, &galEph, result))
	assert.Empty(t, result.StoreBySystem[gnss.SysGPS])

	words[1] = 2 << 8 // subframe 2
	require.NoError(t, decodeSFRBX(receiver.Line{Payload: sfrbxPayload(0, 7, words)}, &gpsEph, &galEph, result))

	words[1] = 3 << 8 // subframe 3
	require.NoError(t, decodeSFRBX(receiver.Line{Payload: sfrbxPayload(0, 7, words)}, &gpsEph, &galEph, result))

	store, ok := result.StoreBySystem[gnss.SysGPS]
	require.True(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestDecodeSFRBX_RoutesGalileoWordsByWordTypeAndStoresEphemerisOnCompletion(t *testing.T) {
	var gpsEph, galEph ephemerisScratch
	result := receiver.NewResult()

	for wordType := uint32(1); wordType <= 5; wordType++ {
		words := make([]uint32, 8)
		words[0] = wordType << 26
		require.NoError(t, decodeSFRBX(receiver.Line{Payload: sfrbxPayload(2, 3, words)}, &gpsEph, &galEph, result))
	}

	store, ok := result.StoreBySystem[gnss.SysGAL]
	require.True(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestDecodeSFRBX_IgnoresUnmodelledConstellations(t *testing.T) {
	var gpsEph, galEph ephemerisScratch
	result := receiver.NewResult()

	words := make([]uint32, 10)
	require.NoError(t, decodeSFRBX(receiver.Line{Payload: sfrbxPayload(6, 1, words)}, &gpsEph, &galEph, result)) // GLONASS
	assert.Empty(t, result.StoreBySystem)
}
