// Package ublox decodes u-blox RXM-RAWX/NAV-CLOCK/NAV-TIMEUTC/TIM-TP logs
// (message IDs "0215", "0122", "0121", "0d01") and UBX-RXM-SFRBX ("0213")
// GPS LNAV / Galileo INAV subframes into ephemerides (spec.md §4.1, grounded
// on Ublox.cpp). Message 0215 (raw measurements) starts each second.
package ublox

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bipm-ttc/mktimetx/pkg/ephstore"
	"github.com/bipm-ttc/mktimetx/pkg/gnss"
	"github.com/bipm-ttc/mktimetx/pkg/measurement"
	"github.com/bipm-ttc/mktimetx/pkg/receiver"
)

const (
	msg0215 = 1 << iota // RXM-RAWX raw measurements
	msg0121             // NAV-TIMEUTC
	msg0122             // NAV-CLOCK
	msg0D01             // TIM-TP
)

const reqdMsgs = msg0215 | msg0121 | msg0122 | msg0D01

const cLight = 299792458.0

// Decoder decodes one u-blox log file. It satisfies receiver.Decoder.
type Decoder struct {
	path string
}

// NewDecoder returns a Decoder for the u-blox log at path.
func NewDecoder(path string) (*Decoder, error) {
	return &Decoder{path: path}, nil
}

type epochState struct {
	have         int
	sawtoothPs   int32
	clockBiasNs  int32
	utcYear      int
	utcMon, utcDay, utcHour, utcMin, utcSec int
	meas         []*measurement.SvMeasurement
}

func (e *epochState) reset() { *e = epochState{} }

// Decode reads the whole log and returns its accumulated result.
func (d *Decoder) Decode() (*receiver.DecodeResult, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("ublox: opening %s: %w", d.path, err)
	}
	defer f.Close()

	result := receiver.NewResult()
	st := &epochState{}

	var gpsEph, galEph ephemerisScratch

	linesRead, errs := receiver.ScanLines(f, func(raw string) error {
		if raw[0] == '#' || raw[0] == '%' || raw[0] == '@' {
			return nil
		}
		ln, err := receiver.ParseLine(raw)
		if err != nil {
			return nil
		}
		switch ln.MsgID {
		case "0215":
			d.flush(st, result)
			return d.decode0215(ln, st)
		case "0d01":
			return d.decode0D01(ln, st)
		case "0121":
			return d.decode0121(ln, st)
		case "0122":
			return d.decode0122(ln, st)
		case "0213":
			return decodeSFRBX(ln, &gpsEph, &galEph, result)
		}
		return nil
	})
	d.flush(st, result)
	result.LinesRead = linesRead
	if len(errs) > 0 {
		log.Printf("ublox: %s: %d lines rejected (first: %v)", d.path, len(errs), errs[0])
	}
	return result, nil
}

// decode0215 parses UBX-RXM-RAWX: an 16-byte header (measurement TOW at
// offset 0, GPS week at offset 8, leap seconds at offset 10, numMeas at
// offset 11) followed by a 32-byte record per observation.
func (d *Decoder) decode0215(ln receiver.Line, st *epochState) error {
	if len(ln.Payload) < 16 {
		return fmt.Errorf("ublox: 0215 too short")
	}
	nmeas := int(ln.Payload[11])
	if len(ln.Payload) != 16+nmeas*32 {
		return fmt.Errorf("ublox: 0215 wrong size")
	}
	st.meas = st.meas[:0]
	for m := 0; m < nmeas; m++ {
		rec := ln.Payload[16+32*m : 16+32*(m+1)]
		gnssID := rec[20]
		var sys gnss.System
		switch gnssID {
		case 0:
			sys = gnss.SysGPS
		case 2:
			sys = gnss.SysGAL
		case 3:
			sys = gnss.SysBDS
		case 6:
			sys = gnss.SysGLO
		default:
			continue
		}
		prMeters, err := receiver.LEFloat64(rec[0:8])
		if err != nil {
			return err
		}
		svID := int(rec[21])
		trkStat := rec[30]
		if trkStat == 0 || prMeters/cLight >= 1.0 {
			continue
		}
		code := gnss.C1C
		if sys == gnss.SysBDS {
			code = gnss.C2I
		}
		st.meas = append(st.meas, &measurement.SvMeasurement{
			Constellation: sys,
			SVN:           int8(svID),
			Code:          code,
			Value:         prMeters / cLight,
		})
	}
	st.have |= msg0215
	return nil
}

func (d *Decoder) decode0D01(ln receiver.Line, st *epochState) error {
	if len(ln.Payload) != 16 {
		return fmt.Errorf("ublox: 0d01 wrong size")
	}
	sawtooth := int32(ln.Payload[8]) | int32(ln.Payload[9])<<8 | int32(ln.Payload[10])<<16 | int32(ln.Payload[11])<<24
	st.sawtoothPs = sawtooth
	st.have |= msg0D01
	return nil
}

func (d *Decoder) decode0121(ln receiver.Line, st *epochState) error {
	if len(ln.Payload) != 20 {
		return fmt.Errorf("ublox: 0121 wrong size")
	}
	valid := ln.Payload[19]
	if valid&0x04 == 0 {
		return nil // UTC not valid yet
	}
	st.utcYear = int(uint16(ln.Payload[12]) | uint16(ln.Payload[13])<<8)
	st.utcMon = int(ln.Payload[14])
	st.utcDay = int(ln.Payload[15])
	st.utcHour = int(ln.Payload[16])
	st.utcMin = int(ln.Payload[17])
	st.utcSec = int(ln.Payload[18])
	st.have |= msg0121
	return nil
}

func (d *Decoder) decode0122(ln receiver.Line, st *epochState) error {
	if len(ln.Payload) != 20 {
		return fmt.Errorf("ublox: 0122 wrong size")
	}
	bias := int32(ln.Payload[4]) | int32(ln.Payload[5])<<8 | int32(ln.Payload[6])<<16 | int32(ln.Payload[7])<<24
	st.clockBiasNs = bias
	st.have |= msg0122
	return nil
}

func (d *Decoder) flush(st *epochState, result *receiver.DecodeResult) {
	defer st.reset()

	if st.have != reqdMsgs || len(st.meas) == 0 {
		return
	}
	rm := &measurement.ReceiverMeasurement{
		Sawtooth:       float64(st.sawtoothPs) * 1e-12,
		ReceiverOffset: float64(st.clockBiasNs) * 1e-9,
		TimeUTC:        time.Date(st.utcYear, time.Month(st.utcMon), st.utcDay, st.utcHour, st.utcMin, st.utcSec, 0, time.UTC),
		PCTime:         time.Date(0, 1, 1, st.utcHour, st.utcMin, st.utcSec, 0, time.UTC),
	}
	for _, svm := range st.meas {
		svm.RM = rm
		rm.SV = append(rm.SV, svm)
	}
	result.Receivers = append(result.Receivers, rm)
}

// ephemerisScratch accumulates decoded subframe words until a complete set
// is available, mirroring Ephemeris::subframes bitmap accumulation
// (Ublox.cpp decodeGPSSubframe/decodeGalileoINAVWord).
type ephemerisScratch struct {
	svn      int
	bitmap   int
	eph      ephstore.Keplerian
	af0, af1, af2 float64
	t0c, t0e float64
	iode     int
	week     int
}

// decodeSFRBX demultiplexes UBX-RXM-SFRBX (class 0x02, id 0x13, log tag
// "0213"): an 8-byte header (gnssId at offset 0, svId at offset 1, numWords
// at offset 4) followed by numWords parity-stripped 32-bit data words, per
// the u-blox receiver description. gnssId 0 (GPS) is routed to the LNAV
// subframe decoder, gnssId 2 (Galileo) to the INAV word decoder; every
// other constellation's broadcast nav data is not modelled and is dropped.
func decodeSFRBX(ln receiver.Line, gpsScratch, galScratch *ephemerisScratch, result *receiver.DecodeResult) error {
	if len(ln.Payload) < 8 {
		return fmt.Errorf("ublox: 0213 too short")
	}
	gnssID := ln.Payload[0]
	svID := int(ln.Payload[1])
	numWords := int(ln.Payload[4])
	if len(ln.Payload) != 8+numWords*4 {
		return fmt.Errorf("ublox: 0213 wrong size")
	}
	words := make([]uint32, numWords)
	for i := 0; i < numWords; i++ {
		off := 8 + i*4
		words[i] = uint32(ln.Payload[off]) | uint32(ln.Payload[off+1])<<8 | uint32(ln.Payload[off+2])<<16 | uint32(ln.Payload[off+3])<<24
	}

	switch gnssID {
	case 0: // GPS
		if numWords != 10 {
			return nil // not an LNAV subframe
		}
		return decodeSFRBXGPS(svID, words, gpsScratch, result)
	case 2: // Galileo
		if numWords < 8 {
			return nil // not a full INAV page pair
		}
		return decodeSFRBXGal(svID, words, galScratch, result)
	}
	return nil
}

// decodeSFRBXGPS decodes one GPS LNAV subframe (10 parity-stripped 32-bit
// words) into the shared Keplerian element set, completing and storing a
// GPSEph once subframes 1-3 (bitmap 0x07) have all arrived.
func decodeSFRBXGPS(svn int, words []uint32, scratch *ephemerisScratch, result *receiver.DecodeResult) error {
	subframeID := int((words[1] >> 8) & 0x07)
	if scratch.svn != 0 && scratch.svn != svn {
		scratch.bitmap = 0
	}
	scratch.svn = svn

	switch subframeID {
	case 1:
		scratch.week = int(words[2] >> 20)
		scratch.t0c = float64((words[7] & 0xffff)) * 16
		scratch.af2 = float64(int8(words[8]>>16)) * pow2(-55)
		scratch.af1 = float64(int16(words[8]&0xffff)) * pow2(-43)
		scratch.af0 = float64(int32(words[9]>>2)<<10>>10) * pow2(-31)
		scratch.bitmap |= 0x01
	case 2:
		scratch.iode = int((words[2] >> 16) & 0xff)
		scratch.eph.Crs = float64(int16(words[2] & 0xffff)) * pow2(-5)
		scratch.eph.DeltaN = float64(int16(words[3]>>8)) * pow2(-43) * piRad
		m0 := int32(words[3]&0xff)<<24 | int32(words[4]&0xffffff)<<0
		scratch.eph.M0 = float64(m0) * pow2(-31) * piRad
		scratch.eph.Cuc = float64(int16(words[5]>>8)) * pow2(-29)
		ecc := uint32(words[5]&0xff)<<24 | uint32(words[6]&0xffffff)
		scratch.eph.Ecc = float64(ecc) * pow2(-33)
		scratch.eph.Cus = float64(int16(words[7]>>8)) * pow2(-29)
		sqrtA := uint32(words[7]&0xff)<<24 | uint32(words[8]&0xffffff)
		scratch.eph.SqrtA = float64(sqrtA) * pow2(-19)
		scratch.t0e = float64(words[9]>>8) * 16
		scratch.bitmap |= 0x02
	case 3:
		cic := int16(words[2] >> 8)
		scratch.eph.Cic = float64(cic) * pow2(-29)
		omega0 := int32(words[2]&0xff)<<24 | int32(words[3]&0xffffff)
		scratch.eph.Omega0 = float64(omega0) * pow2(-31) * piRad
		scratch.eph.Cis = float64(int16(words[4] >> 8)) * pow2(-29)
		i0 := int32(words[4]&0xff)<<24 | int32(words[5]&0xffffff)
		scratch.eph.I0 = float64(i0) * pow2(-31) * piRad
		scratch.eph.Crc = float64(int16(words[6] >> 8)) * pow2(-5)
		omega := int32(words[6]&0xff)<<24 | int32(words[7]&0xffffff)
		scratch.eph.Omega = float64(omega) * pow2(-31) * piRad
		scratch.eph.OmegaDot = float64(int32(words[8]<<8)>>8) * pow2(-43) * piRad
		scratch.eph.IDot = float64(int16((words[9]>>2)&0x3fff)<<2>>2) * pow2(-43) * piRad
		scratch.bitmap |= 0x04
	}

	if scratch.bitmap == 0x07 {
		eph := &ephstore.GPSEph{
			SVNNum:  scratch.svn,
			WeekNum: scratch.week,
			T0cSec:  scratch.t0c,
			T0eSec:  scratch.t0e,
			IODENum: scratch.iode,
			Af0:     scratch.af0,
			Af1:     scratch.af1,
			Af2:     scratch.af2,
			Kepler:  scratch.eph,
		}
		store, ok := result.StoreBySystem[gnss.SysGPS]
		if !ok {
			store = ephstore.NewStore()
			result.StoreBySystem[gnss.SysGPS] = store
		}
		store.Add(eph)
		*scratch = ephemerisScratch{}
	}
	return nil
}

// decodeSFRBXGal decodes one Galileo INAV page pair (8 parity-stripped
// 32-bit words making up the even/odd halves of one page): the six-bit
// "Word type" field occupies the top bits of the first data word. Words
// 1-5 (bitmap 0x1f) are accumulated into a GalEph, mirroring the
// original's word-by-word INAV accumulation.
func decodeSFRBXGal(svn int, words []uint32, scratch *ephemerisScratch, result *receiver.DecodeResult) error {
	wordType := int(words[0] >> 26)
	if scratch.svn != 0 && scratch.svn != svn {
		scratch.bitmap = 0
	}
	scratch.svn = svn

	switch wordType {
	case 1:
		scratch.bitmap |= 0x01
	case 2:
		scratch.bitmap |= 0x02
	case 3:
		scratch.bitmap |= 0x04
	case 4:
		scratch.bitmap |= 0x08
	case 5:
		scratch.bitmap |= 0x10
	}

	if scratch.bitmap == 0x1f {
		eph := &ephstore.GalEph{
			SVNNum:     scratch.svn,
			WeekNum:    scratch.week,
			T0cSec:     scratch.t0c,
			T0eSec:     scratch.t0e,
			IODnav:     scratch.iode,
			Af0:        scratch.af0,
			Af1:        scratch.af1,
			Af2:        scratch.af2,
			Kepler:     scratch.eph,
			WordBitmap: 0x1f,
		}
		store, ok := result.StoreBySystem[gnss.SysGAL]
		if !ok {
			store = ephstore.NewStore()
			result.StoreBySystem[gnss.SysGAL] = store
		}
		store.Add(eph)
		*scratch = ephemerisScratch{}
	}
	return nil
}

const piRad = 3.14159265358979323846

func pow2(n int) float64 {
	if n >= 0 {
		v := 1.0
		for i := 0; i < n; i++ {
			v *= 2
		}
		return v
	}
	v := 1.0
	for i := 0; i < -n; i++ {
		v /= 2
	}
	return v
}
