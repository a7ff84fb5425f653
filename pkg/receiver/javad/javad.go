// Package javad decodes Javad HE_GD receiver logs: an ASCII-wrapped stream
// of hex-encoded binary messages, one per line, of the form
// "MSGID HH:MM:SS HEXPAYLOAD" (spec.md §4.1, grounded on Javad.cpp).
package javad

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/bipm-ttc/mktimetx/pkg/gnss"
	"github.com/bipm-ttc/mktimetx/pkg/measurement"
	"github.com/bipm-ttc/mktimetx/pkg/receiver"
)

// required message bits, one per message this decoder needs before it will
// emit a ReceiverMeasurement for the epoch (Javad.cpp reqdMsgs bitmask).
const (
	msgSI = 1 << iota
	msgTO
	msgYA
	msgZA
	msgRT
	msgRC
	msgFC
)

const reqdMsgs = msgSI | msgTO | msgYA | msgZA | msgRT | msgRC | msgFC

// Decoder decodes one Javad log file. It satisfies receiver.Decoder.
type Decoder struct {
	path string
}

// NewDecoder returns a Decoder for the Javad log at path.
func NewDecoder(path string) (*Decoder, error) {
	return &Decoder{path: path}, nil
}

type epochState struct {
	have        int
	trackedSVs  []int
	caPr        []float64
	lockFlags   []int
	gpsTOD      uint32
	rxTimeOffset float64
	sawtooth    float64
	smoothing   float64
	rdYear      int
	rdMonth     int
	rdDay       int
}

func newEpochState() *epochState { return &epochState{} }

func (e *epochState) reset() { *e = epochState{} }

// Decode reads the whole log and returns its accumulated result.
func (d *Decoder) Decode() (*receiver.DecodeResult, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("javad: opening %s: %w", d.path, err)
	}
	defer f.Close()

	result := receiver.NewResult()
	st := newEpochState()

	linesRead, errs := receiver.ScanLines(f, func(raw string) error {
		if raw[0] == '#' || raw[0] == '%' || raw[0] == '@' {
			return nil
		}
		ln, err := receiver.ParseLine(raw)
		if err != nil {
			return nil // tolerate malformed banner/status lines, as the original does
		}
		return d.dispatch(ln, st, result)
	})
	result.LinesRead = linesRead
	if len(errs) > 0 {
		log.Printf("javad: %s: %d lines rejected (first: %v)", d.path, len(errs), errs[0])
	}
	return result, nil
}

func (d *Decoder) dispatch(ln receiver.Line, st *epochState, result *receiver.DecodeResult) error {
	switch ln.MsgID {
	case "NP":
		return nil
	case "RD":
		d.flushEpoch(st, ln, result)
		return d.decodeRD(ln, st)
	case "~~":
		return d.decodeRT(ln, st)
	case "SI":
		st.trackedSVs = make([]int, len(ln.Payload))
		for i, b := range ln.Payload {
			st.trackedSVs[i] = int(b)
		}
		st.have |= msgSI
		return nil
	case "TO":
		return d.decodeTO(ln, st)
	case "YA":
		return d.decodeYA(ln, st)
	case "ZA":
		return d.decodeZA(ln, st)
	case "FC":
		st.lockFlags = make([]int, len(ln.Payload))
		for i, b := range ln.Payload {
			st.lockFlags[i] = int(b)
		}
		st.have |= msgFC
		return nil
	case "RC":
		return d.decodeRC(ln, st)
	case "rc":
		if st.have&msgRC != 0 {
			return nil // full pseudoranges (RC) take precedence over deltas (rc)
		}
		return d.decodeRCShort(ln, st)
	}
	return nil
}

func (d *Decoder) decodeRD(ln receiver.Line, st *epochState) error {
	if len(ln.Payload) != 6 {
		return fmt.Errorf("javad: RD wrong size")
	}
	st.rdYear = int(binary.LittleEndian.Uint16(ln.Payload[0:2]))
	st.rdMonth = int(ln.Payload[2])
	st.rdDay = int(ln.Payload[3])
	return nil
}

func (d *Decoder) decodeRT(ln receiver.Line, st *epochState) error {
	if len(ln.Payload) != 4 {
		return fmt.Errorf("javad: ~~ wrong size")
	}
	st.gpsTOD = binary.LittleEndian.Uint32(ln.Payload)
	st.have |= msgRT
	return nil
}

func (d *Decoder) decodeTO(ln receiver.Line, st *epochState) error {
	if len(ln.Payload) != 8 {
		return fmt.Errorf("javad: TO wrong size")
	}
	v, err := receiver.LEFloat64(ln.Payload)
	if err != nil {
		return err
	}
	if math.Abs(v) > 0.001 || math.Abs(v) < 1e-10 {
		return fmt.Errorf("javad: TO outlier %g", v)
	}
	st.rxTimeOffset = v
	st.have |= msgTO
	return nil
}

func (d *Decoder) decodeYA(ln receiver.Line, st *epochState) error {
	if len(ln.Payload) != 8 {
		return fmt.Errorf("javad: YA wrong size")
	}
	v, err := receiver.LEFloat64(ln.Payload)
	if err != nil {
		return err
	}
	if math.Abs(v) > 0.001 || v == 0 {
		return fmt.Errorf("javad: YA outlier %g", v)
	}
	st.smoothing = v
	st.have |= msgYA
	return nil
}

func (d *Decoder) decodeZA(ln receiver.Line, st *epochState) error {
	if len(ln.Payload) != 4 {
		return fmt.Errorf("javad: ZA wrong size")
	}
	v32, err := receiver.LEFloat32(ln.Payload)
	if err != nil {
		return err
	}
	v := float64(v32)
	if math.Abs(v) > 50.0 {
		return fmt.Errorf("javad: ZA outlier %g", v)
	}
	st.sawtooth = v * 1e-9
	st.have |= msgZA
	return nil
}

func (d *Decoder) decodeRC(ln receiver.Line, st *epochState) error {
	n := len(st.trackedSVs)
	if n == 0 || len(ln.Payload) != n*8 {
		return fmt.Errorf("javad: RC wrong size")
	}
	st.caPr = make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := receiver.LEFloat64(ln.Payload[i*8 : i*8+8])
		if err != nil {
			return err
		}
		st.caPr[i] = v
	}
	st.have |= msgRC
	return nil
}

func (d *Decoder) decodeRCShort(ln receiver.Line, st *epochState) error {
	n := len(st.trackedSVs)
	if n == 0 || len(ln.Payload) != n*4 {
		return fmt.Errorf("javad: rc wrong size")
	}
	st.caPr = make([]float64, n)
	for i := 0; i < n; i++ {
		raw, err := receiver.LEUint32(ln.Payload[i*4 : i*4+4])
		if err != nil {
			return err
		}
		st.caPr[i] = float64(int32(raw))*1e-11 + 0.075
	}
	st.have |= msgRC
	return nil
}

// flushEpoch closes out the previous epoch (bounded by RD messages, Javad's
// once-per-second marker) and appends a ReceiverMeasurement if every
// required message arrived and at least one SV survived the lock/sanity
// checks (Javad.cpp's "Save measurements" block).
func (d *Decoder) flushEpoch(st *epochState, ln receiver.Line, result *receiver.DecodeResult) {
	defer st.reset()

	if st.have != reqdMsgs {
		return
	}
	rm := &measurement.ReceiverMeasurement{}
	for i, prn := range st.trackedSVs {
		if i >= len(st.caPr) || i >= len(st.lockFlags) {
			continue
		}
		if st.lockFlags[i] != 83 { // 'S' == locked, per Javad.cpp CAlockFlags check
			continue
		}
		pr := st.caPr[i] - st.rxTimeOffset
		if pr < 0.05 || pr > 0.10 {
			continue
		}
		svm := &measurement.SvMeasurement{
			Constellation: gnss.SysGPS,
			SVN:           int8(prn),
			Code:          gnss.C1C,
			Value:         pr,
			RM:            rm,
		}
		rm.SV = append(rm.SV, svm)
	}
	if len(rm.SV) == 0 {
		return
	}

	igpsTOD := int(st.gpsTOD / 1000)
	hh := igpsTOD / 3600
	mm := (igpsTOD - hh*3600) / 60
	ss := igpsTOD - hh*3600 - mm*60
	rm.GPSTow = float64(igpsTOD)
	rm.FracSecs = st.rxTimeOffset

	if math.Abs(st.smoothing-st.rxTimeOffset) > 5e-4 {
		if st.smoothing-st.rxTimeOffset > 0 {
			st.smoothing -= 1e-3
		} else {
			st.smoothing += 1e-3
		}
	}
	rm.Sawtooth = st.sawtooth - (st.smoothing - st.rxTimeOffset)
	rm.ReceiverOffset = st.rxTimeOffset

	rm.PCTime = time.Date(0, 1, 1, ln.HH, ln.MM, ln.SS, 0, time.UTC)
	rm.TimeGPS = time.Date(st.rdYear, time.Month(st.rdMonth), st.rdDay, hh, mm, ss, 0, time.UTC)

	result.Receivers = append(result.Receivers, rm)
}
